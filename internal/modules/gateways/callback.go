package gateways

import (
	"log/slog"
	"net/url"
)

// Signature fields that identify a specific provider's callback. A generic
// redirect claim requires the absence of every one of these: detection is by
// exclusion, because the generic shape (payment_id + status) carries no
// provider tag at all.
var providerSignatureFields = []string{
	"sign",              // cryptomus
	"merchantSignature", // montypay
	"data",              // legacy signed-callback providers
	"ss1",
	"ApiSignature", // payrexx webhook relays
}

// HasGenericCallbackShape reports whether the query looks like a
// provider-less browser redirect: payment_id+status present, no provider
// signature field present.
func HasGenericCallbackShape(q url.Values) bool {
	if q.Get("payment_id") == "" || q.Get("status") == "" {
		return false
	}
	for _, f := range providerSignatureFields {
		if q.Has(f) {
			return false
		}
	}
	return true
}

// CallbackRouter resolves which gateway an untagged inbound callback came
// from by probing active clients in priority order. With at most one
// generic-redirect gateway enabled (enforced by Config.Validate) the first
// claim is unambiguous; the priority order remains as a documented fallback.
type CallbackRouter struct {
	factory *Factory
	logger  *slog.Logger
}

func NewCallbackRouter(f *Factory, logger *slog.Logger) *CallbackRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackRouter{factory: f, logger: logger}
}

// Route returns the claiming client and the parsed callback hint.
func (r *CallbackRouter) Route(q url.Values) (Client, CallbackResult, bool) {
	for _, c := range r.factory.Active() {
		if !c.CanHandleCallback(q) {
			continue
		}
		res, ok := c.HandleCallback(q)
		if !ok {
			continue
		}
		return c, res, true
	}
	r.logger.Warn("callback matched no active gateway", "params", q.Encode())
	return nil, CallbackResult{}, false
}
