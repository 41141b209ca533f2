package accounts

import (
	"wp_schema_sync/internal/model"

	"github.com/rs/zerolog/log"
)

// Registry maps a site key to its account for the duration of one batch.
type Registry struct {
	accounts map[string]model.Account
	fallback *model.Account
}

// NewRegistry indexes accounts by lower-cased, trimmed site key.
// A later row with the same key replaces the earlier one.
func NewRegistry(accounts []model.Account) *Registry {
	r := &Registry{accounts: make(map[string]model.Account, len(accounts))}
	for _, acct := range accounts {
		key := model.SiteKey(acct.Site)
		if key == "" {
			log.Debug().Str("base_url", acct.BaseURL).Msg("Skipping account without site key")
			continue
		}
		if _, exists := r.accounts[key]; exists {
			log.Warn().Str("site", key).Msg("Duplicate site in accounts sheet; last row wins")
		}
		r.accounts[key] = acct
	}
	log.Debug().Int("accounts", len(r.accounts)).Msg("Built account registry")
	return r
}

// Single returns a registry in which every row, whatever its site cell, uses acct.
func Single(acct model.Account) *Registry {
	return &Registry{
		accounts: map[string]model.Account{},
		fallback: &acct,
	}
}

// Lookup finds the account for a row's site key.
func (r *Registry) Lookup(site string) (model.Account, bool) {
	if r == nil {
		return model.Account{}, false
	}
	if r.fallback != nil {
		return *r.fallback, true
	}
	acct, ok := r.accounts[model.SiteKey(site)]
	return acct, ok
}

// Len is the number of keyed accounts.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.accounts)
}

// MultiAccount reports whether rows are dispatched by site key.
func (r *Registry) MultiAccount() bool {
	return r != nil && r.fallback == nil
}
