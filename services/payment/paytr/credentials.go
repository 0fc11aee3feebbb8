package paytr

import "fmt"

// Placeholder values shipped in example configuration. A credential holding
// one of these is treated as unconfigured.
const (
	PlaceholderMerchantID   = "YOUR_MERCHANT_ID"
	PlaceholderMerchantKey  = "YOUR_MERCHANT_KEY"
	PlaceholderMerchantSalt = "YOUR_MERCHANT_SALT"
)

// Credentials are loaded once at startup and only read afterwards.
type Credentials struct {
	MerchantID   string
	MerchantKey  []byte
	MerchantSalt []byte
	TestMode     bool
}

// PlaceholderCredentials returns the unconfigured credential set.
func PlaceholderCredentials() Credentials {
	return Credentials{
		MerchantID:   PlaceholderMerchantID,
		MerchantKey:  []byte(PlaceholderMerchantKey),
		MerchantSalt: []byte(PlaceholderMerchantSalt),
		TestMode:     true,
	}
}

// IsConfigured is the single place where placeholder values are recognised.
func IsConfigured(c Credentials) bool {
	switch {
	case c.MerchantID == "" || c.MerchantID == PlaceholderMerchantID:
		return false
	case len(c.MerchantKey) == 0 || string(c.MerchantKey) == PlaceholderMerchantKey:
		return false
	case len(c.MerchantSalt) == 0 || string(c.MerchantSalt) == PlaceholderMerchantSalt:
		return false
	}
	return true
}

// String never prints key material.
func (c Credentials) String() string {
	return fmt.Sprintf("{MerchantID:%s MerchantKey:[redacted] MerchantSalt:[redacted] TestMode:%t}",
		c.MerchantID, c.TestMode)
}

func (c Credentials) testModeFlag() string {
	return boolFlag(c.TestMode)
}

// CredentialsProvider is consulted on every request.
type CredentialsProvider interface {
	Credentials() Credentials
}

// StaticCredentials serves a fixed credential set.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials() Credentials {
	return Credentials(s)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
