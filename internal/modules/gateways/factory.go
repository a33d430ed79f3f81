package gateways

import (
	"log/slog"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
)

// priorityOrder fixes the probing order for callback routing. Providers with
// distinguishing signature fields come before generic-redirect ones so a
// signed callback is never claimed by a generic matcher.
var priorityOrder = []Provider{
	ProviderCryptomus,
	ProviderMontyPay,
	ProviderPayrexx,
	ProviderStripe,
	ProviderBalance,
}

// Factory resolves provider identifiers to clients. The set of providers is
// closed; registration happens once from config.
type Factory struct {
	clients map[Provider]Client
}

func NewFactory(cfg Config, ledger *balance.Ledger, logger *slog.Logger) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	clients := make(map[Provider]Client)
	if cfg.Stripe.Enabled {
		clients[ProviderStripe] = NewStripeClient(cfg.Stripe, logger)
	}
	if cfg.Payrexx.Enabled {
		clients[ProviderPayrexx] = NewPayrexxClient(cfg.Payrexx, logger)
	}
	if cfg.Cryptomus.Enabled {
		clients[ProviderCryptomus] = NewCryptomusClient(cfg.Cryptomus, logger)
	}
	if cfg.MontyPay.Enabled {
		clients[ProviderMontyPay] = NewMontyPayClient(cfg.MontyPay, logger)
	}
	if cfg.BalanceEnabled {
		clients[ProviderBalance] = NewBalanceClient(ledger, logger)
	}
	return &Factory{clients: clients}, nil
}

// NewFactoryWithClients is for tests.
func NewFactoryWithClients(clients ...Client) *Factory {
	m := make(map[Provider]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Factory{clients: m}
}

func (f *Factory) Client(p Provider) (Client, error) {
	c, ok := f.clients[p]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return c, nil
}

// Active returns enabled clients in fixed priority order.
func (f *Factory) Active() []Client {
	out := make([]Client, 0, len(f.clients))
	for _, p := range priorityOrder {
		if c, ok := f.clients[p]; ok {
			out = append(out, c)
		}
	}
	return out
}
