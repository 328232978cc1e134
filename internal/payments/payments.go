package payments

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Provider names accepted at purchase time.
const (
	ProviderMock     = "mock"
	ProviderPaystack = "paystack"
)

// Result is the only thing the escrow core needs from a payment provider:
// whether the charge succeeded and the provider's reference for it.
type Result struct {
	Succeeded bool
	Reference string
}

// Provider abstracts the upstream payment gateway. Real providers confirm
// asynchronously through the internal payment endpoint; the mock provider
// confirms inline.
type Provider interface {
	Name() string
	// Charge initiates a charge for the full escrow amount. Synchronous
	// providers return a settled Result; asynchronous ones return
	// Succeeded=false and confirm later via webhook.
	Charge(escrowID string, amountCents int64, currencyCode string) (*Result, error)
}

// MockProvider simulates a gateway that always settles immediately. Used in
// environments without a live payment integration.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Name() string {
	return ProviderMock
}

func (p *MockProvider) Charge(escrowID string, amountCents int64, currencyCode string) (*Result, error) {
	reference := "MOCK_" + uuid.New().String()

	log.Info().
		Str("escrow_id", escrowID).
		Int64("amount_cents", amountCents).
		Str("currency", currencyCode).
		Str("reference", reference).
		Msg("mock provider settled charge")

	return &Result{
		Succeeded: true,
		Reference: reference,
	}, nil
}

// Registry resolves a provider by name, defaulting to the mock provider when
// no name is supplied.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		name = ProviderMock
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider: %s", name)
	}
	return p, nil
}
