package models

// Scopes a service token can carry.
const (
	ScopePaymentsCharge = "payments:charge"
	ScopePaymentsLink   = "payments:link"
	ScopePaymentsRead   = "payments:read"
)

// KnownScopes lists every scope the payment routes check.
var KnownScopes = []string{ScopePaymentsCharge, ScopePaymentsLink, ScopePaymentsRead}

// IsKnownScope reports whether scope is one of KnownScopes.
func IsKnownScope(scope string) bool {
	for _, s := range KnownScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Principal is the authenticated API client behind a request.
type Principal struct {
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
