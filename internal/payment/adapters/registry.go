package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/smallbiznis/ledgerbook/internal/payment/domain"
	"go.uber.org/zap"
)

// Registry holds one webhook adapter per provider that has a signing secret
// configured. Providers without a secret are known but cannot ingest.
type Registry struct {
	known    map[string]bool
	adapters map[string]domain.PaymentAdapter
}

func NewRegistry(cfg config.PaymentConfig, log *zap.Logger, factories ...domain.AdapterFactory) (*Registry, error) {
	r := &Registry{
		known:    map[string]bool{},
		adapters: map[string]domain.PaymentAdapter{},
	}
	secrets := make(map[string]string, len(cfg.WebhookSecrets))
	for name, secret := range cfg.WebhookSecrets {
		secrets[normalize(name)] = strings.TrimSpace(secret)
	}

	for _, factory := range factories {
		if factory == nil {
			continue
		}
		name := normalize(factory.Provider())
		if name == "" {
			continue
		}
		if r.known[name] {
			return nil, fmt.Errorf("payment provider %q registered twice", name)
		}
		r.known[name] = true

		secret := secrets[name]
		if secret == "" {
			log.Info("payment provider has no webhook secret", zap.String("provider", name))
			continue
		}
		adapter, err := factory.NewAdapter(domain.AdapterConfig{Provider: name, WebhookSecret: secret})
		if err != nil {
			return nil, fmt.Errorf("payment provider %q: %w", name, err)
		}
		r.adapters[name] = adapter
	}
	return r, nil
}

// Adapter returns the configured adapter for provider.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// Providers lists the providers able to ingest webhooks, sorted.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
