// Package card validates payment card input and detects card brands.
package card

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Brand string

const (
	BrandVisa       Brand = "VISA"
	BrandMastercard Brand = "MASTERCARD"
	BrandTroy       Brand = "TROY"
	BrandAmex       Brand = "AMEX"
	BrandDiscover   Brand = "DISCOVER"
	BrandUnknown    Brand = "UNKNOWN"
)

const (
	minPANLength = 13
	maxPANLength = 19

	// UnknownBankLabel is shown for cards that are not in the test registry.
	UnknownBankLabel = "Unknown Card"
)

var (
	ErrInvalidNumber = errors.New("invalid card number")
	ErrInvalidExpiry = errors.New("invalid expiry date")
	ErrCardExpired   = errors.New("card expired")
	ErrInvalidCVV    = errors.New("invalid cvv")
	ErrInvalidHolder = errors.New("invalid card holder name")
)

// Info carries the card data of a single request. It must never be logged
// unmasked.
type Info struct {
	Number      string `json:"number"`
	Holder      string `json:"holder"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

// BrandInfo is derived from a card number by DetectBrand.
type BrandInfo struct {
	Brand           Brand  `json:"brand"`
	IsKnownTestCard bool   `json:"is_known_test_card"`
	DisplayBank     string `json:"display_bank"`
}

type testCard struct {
	number string
	info   BrandInfo
}

// Gateway-documented test numbers. Exact matches take precedence over BIN rules.
var knownTestCards = []testCard{
	{"4355084355084358", BrandInfo{Brand: BrandVisa, IsKnownTestCard: true, DisplayBank: "PayTR Test"}},
	{"5406675406675403", BrandInfo{Brand: BrandMastercard, IsKnownTestCard: true, DisplayBank: "PayTR Test"}},
	{"9792030394440796", BrandInfo{Brand: BrandTroy, IsKnownTestCard: true, DisplayBank: "PayTR Test"}},
}

// KnownTestCards returns the registered test numbers and their brand info.
func KnownTestCards() map[string]BrandInfo {
	out := make(map[string]BrandInfo, len(knownTestCards))
	for _, c := range knownTestCards {
		out[c.number] = c.info
	}
	return out
}

// NormalizePAN removes spaces, tabs and dashes.
func NormalizePAN(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateLuhn reports whether number passes the mod-10 checksum. Whitespace is
// ignored; any other non-digit or a length outside 13..19 fails.
func ValidateLuhn(number string) bool {
	pan := NormalizePAN(number)
	if len(pan) < minPANLength || len(pan) > maxPANLength || !isDigits(pan) {
		return false
	}

	sum := 0
	double := false
	for i := len(pan) - 1; i >= 0; i-- {
		d := int(pan[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// LuhnCheckDigit returns the digit that completes body into a valid number.
func LuhnCheckDigit(body string) byte {
	sum, double := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return '0' + byte((10-(sum%10))%10)
}

// DetectBrand resolves the brand of number. The test registry is consulted
// first; otherwise BIN prefixes are matched in a fixed order.
func DetectBrand(number string) BrandInfo {
	pan := NormalizePAN(number)
	for _, c := range knownTestCards {
		if c.number == pan {
			return c.info
		}
	}

	info := BrandInfo{Brand: BrandUnknown}
	switch {
	case strings.HasPrefix(pan, "4"):
		info.Brand = BrandVisa
	case isMastercardPrefix(pan):
		info.Brand = BrandMastercard
	case strings.HasPrefix(pan, "9792"):
		info.Brand = BrandTroy
	case strings.HasPrefix(pan, "34"), strings.HasPrefix(pan, "37"):
		info.Brand = BrandAmex
	case strings.HasPrefix(pan, "6"):
		info.Brand = BrandDiscover
	}
	return info
}

func isMastercardPrefix(pan string) bool {
	if len(pan) < 2 || pan[0] != '5' {
		return false
	}
	return pan[1] >= '1' && pan[1] <= '5'
}

// ValidateExpiry checks a two digit month and year. A card is usable through
// the last instant of its expiry month in UTC.
func ValidateExpiry(month, year string, now time.Time) error {
	if len(month) != 2 || len(year) != 2 || !isDigits(month) || !isDigits(year) {
		return fmt.Errorf("%w: expected MM and YY", ErrInvalidExpiry)
	}
	mm, _ := strconv.Atoi(month)
	yy, _ := strconv.Atoi(year)
	if mm < 1 || mm > 12 {
		return fmt.Errorf("%w: month must be 01..12", ErrInvalidExpiry)
	}

	end := time.Date(2000+yy, time.Month(mm), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0).Add(-time.Nanosecond)
	if now.UTC().After(end) {
		return ErrCardExpired
	}
	return nil
}

func ValidateCVV(cvv string) error {
	if len(cvv) < 3 || len(cvv) > 4 || !isDigits(cvv) {
		return ErrInvalidCVV
	}
	return nil
}

func ValidateHolder(name string) error {
	if len(strings.TrimSpace(name)) < 3 {
		return ErrInvalidHolder
	}
	return nil
}

// Validate runs every check a charge needs before anything is sent.
func Validate(c Info, now time.Time) error {
	if !ValidateLuhn(c.Number) {
		return ErrInvalidNumber
	}
	if err := ValidateExpiry(c.ExpiryMonth, c.ExpiryYear, now); err != nil {
		return err
	}
	if err := ValidateCVV(c.CVV); err != nil {
		return err
	}
	return ValidateHolder(c.Holder)
}

// MaskPAN keeps the first six and last four digits.
func MaskPAN(pan string) string {
	cleaned := NormalizePAN(pan)
	n := len(cleaned)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n < 10:
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	}
	return cleaned[:6] + strings.Repeat("*", n-10) + cleaned[n-4:]
}

// Masked returns a copy safe to log.
func (c Info) Masked() Info {
	return Info{
		Number:      MaskPAN(c.Number),
		Holder:      c.Holder,
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
	}
}
