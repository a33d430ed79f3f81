package gateways

import (
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasGenericCallbackShape(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"plain redirect", "payment_id=pay_1&status=success", true},
		{"extra params still generic", "payment_id=pay_1&status=cancel&lang=de", true},
		{"missing status", "payment_id=pay_1", false},
		{"missing payment_id", "status=success", false},
		{"cryptomus signed", "payment_id=pay_1&status=paid&sign=abc", false},
		{"montypay signed", "payment_id=pay_1&status=settled&merchantSignature=ABC", false},
		{"payrexx relay", "payment_id=pay_1&status=confirmed&ApiSignature=xyz", false},
		{"legacy data field", "payment_id=pay_1&status=ok&data=blob", false},
		{"legacy ss1 field", "payment_id=pay_1&status=ok&ss1=blob", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, HasGenericCallbackShape(q))
		})
	}
}

func TestCallbackRouterClaimsGenericRedirect(t *testing.T) {
	logger := slog.Default()
	stripe := NewStripeClient(StripeConfig{Enabled: true, SecretKey: "sk_test", GenericRedirect: true}, logger)
	crypto := NewCryptomusClient(CryptomusConfig{Enabled: true, MerchantID: "m", APIKey: "k"}, logger)
	router := NewCallbackRouter(NewFactoryWithClients(crypto, stripe), logger)

	q, _ := url.ParseQuery("payment_id=pay_42&status=success")
	client, res, ok := router.Route(q)
	require.True(t, ok)
	assert.Equal(t, ProviderStripe, client.Name())
	assert.Equal(t, "pay_42", res.PaymentPublicID)
	assert.Equal(t, "success", res.ClaimedStatus)
}

func TestCallbackRouterNoClaim(t *testing.T) {
	logger := slog.Default()
	// no generic-redirect gateway enabled
	stripe := NewStripeClient(StripeConfig{Enabled: true, SecretKey: "sk_test"}, logger)
	router := NewCallbackRouter(NewFactoryWithClients(stripe), logger)

	q, _ := url.ParseQuery("payment_id=pay_42&status=success")
	_, _, ok := router.Route(q)
	assert.False(t, ok)

	// signed callback never matches a generic matcher
	stripeGeneric := NewStripeClient(StripeConfig{Enabled: true, SecretKey: "sk_test", GenericRedirect: true}, logger)
	router = NewCallbackRouter(NewFactoryWithClients(stripeGeneric), logger)
	q, _ = url.ParseQuery("payment_id=pay_42&status=paid&sign=deadbeef")
	_, _, ok = router.Route(q)
	assert.False(t, ok)
}

func TestConfigRejectsAmbiguousRouting(t *testing.T) {
	cfg := Config{
		Stripe:  StripeConfig{Enabled: true, SecretKey: "sk", WebhookSecret: "whsec", GenericRedirect: true},
		Payrexx: PayrexxConfig{Enabled: true, Instance: "demo", APISecret: "s", GenericRedirect: true},
	}
	assert.ErrorIs(t, cfg.Validate(), ErrAmbiguousCallbackRouting)

	cfg.Payrexx.GenericRedirect = false
	assert.NoError(t, cfg.Validate())
}

func TestConfigRejectsMissingCredentials(t *testing.T) {
	assert.Error(t, Config{Stripe: StripeConfig{Enabled: true}}.Validate())
	assert.Error(t, Config{Payrexx: PayrexxConfig{Enabled: true, Instance: "demo"}}.Validate())
	assert.Error(t, Config{Cryptomus: CryptomusConfig{Enabled: true, MerchantID: "m"}}.Validate())
	assert.Error(t, Config{MontyPay: MontyPayConfig{Enabled: true, MerchantKey: "k"}}.Validate())
	assert.NoError(t, Config{BalanceEnabled: true}.Validate())
}

func TestFactoryActiveOrder(t *testing.T) {
	logger := slog.Default()
	f := NewFactoryWithClients(
		NewStripeClient(StripeConfig{Enabled: true, SecretKey: "sk"}, logger),
		NewCryptomusClient(CryptomusConfig{Enabled: true, MerchantID: "m", APIKey: "k"}, logger),
		NewMontyPayClient(MontyPayConfig{Enabled: true, MerchantKey: "mk", Secret: "s"}, logger),
	)

	active := f.Active()
	require.Len(t, active, 3)
	assert.Equal(t, ProviderCryptomus, active[0].Name())
	assert.Equal(t, ProviderMontyPay, active[1].Name())
	assert.Equal(t, ProviderStripe, active[2].Name())

	_, err := f.Client(ProviderPayrexx)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
