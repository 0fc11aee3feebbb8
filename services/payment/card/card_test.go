package card

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPAN(r *rand.Rand, prefix string, length int) string {
	b := []byte(prefix)
	for len(b) < length-1 {
		b = append(b, byte('0'+r.Intn(10)))
	}
	return string(b) + string(LuhnCheckDigit(string(b)))
}

func TestValidateLuhn(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"visa test card", "4355084355084358", true},
		{"mastercard test card", "5406675406675403", true},
		{"troy test card", "9792030394440796", true},
		{"spaces ignored", "4355 0843 5508 4358", true},
		{"bad check digit", "4355084355084359", false},
		{"too short", "4242", false},
		{"twelve digits", "424242424242", false},
		{"twenty digits", "42424242424242424242", false},
		{"letters", "4355a84355084358", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateLuhn(tt.number))
		})
	}
}

func TestValidateLuhn_RandomMutation(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		pan := randomPAN(r, "4", 16)
		require.True(t, ValidateLuhn(pan), pan)

		pos := r.Intn(len(pan))
		orig := pan[pos]
		repl := byte('0' + r.Intn(10))
		if repl == orig {
			repl = '0' + (orig-'0'+1)%10
		}
		mutated := []byte(pan)
		mutated[pos] = repl
		// A single-digit substitution always changes the mod-10 sum.
		assert.False(t, ValidateLuhn(string(mutated)), "mutated %s -> %s", pan, mutated)
	}
}

func TestDetectBrand_KnownTestCards(t *testing.T) {
	tests := []struct {
		number string
		brand  Brand
	}{
		{"4355084355084358", BrandVisa},
		{"5406675406675403", BrandMastercard},
		{"9792030394440796", BrandTroy},
	}
	for _, tt := range tests {
		info := DetectBrand(tt.number)
		assert.Equal(t, tt.brand, info.Brand, tt.number)
		assert.True(t, info.IsKnownTestCard, tt.number)
		assert.Equal(t, "PayTR Test", info.DisplayBank)
	}
}

func TestDetectBrand_Prefixes(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	visa := randomPAN(r, "4", 16)
	info := DetectBrand(visa)
	assert.Equal(t, BrandVisa, info.Brand)
	assert.False(t, info.IsKnownTestCard)
	assert.Empty(t, info.DisplayBank)

	tests := []struct {
		prefix string
		want   Brand
	}{
		{"51", BrandMastercard},
		{"55", BrandMastercard},
		{"56", BrandUnknown},
		{"9792", BrandTroy},
		{"9791", BrandUnknown},
		{"34", BrandAmex},
		{"37", BrandAmex},
		{"6011", BrandDiscover},
		{"1", BrandUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectBrand(randomPAN(r, tt.prefix, 16)).Brand, tt.prefix)
	}
}

func TestKnownTestCards_ReturnsCopy(t *testing.T) {
	cards := KnownTestCards()
	require.Len(t, cards, 3)
	delete(cards, "4355084355084358")
	assert.True(t, DetectBrand("4355084355084358").IsKnownTestCard)
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateExpiry("10", "26", now))
	assert.NoError(t, ValidateExpiry("01", "30", now))
	assert.ErrorIs(t, ValidateExpiry("09", "26", now), ErrCardExpired)
	assert.ErrorIs(t, ValidateExpiry("12", "25", now), ErrCardExpired)
	assert.ErrorIs(t, ValidateExpiry("13", "27", now), ErrInvalidExpiry)
	assert.ErrorIs(t, ValidateExpiry("00", "27", now), ErrInvalidExpiry)
	assert.ErrorIs(t, ValidateExpiry("1", "27", now), ErrInvalidExpiry)
	assert.ErrorIs(t, ValidateExpiry("ab", "27", now), ErrInvalidExpiry)

	endOfMonth := time.Date(2026, time.October, 31, 23, 59, 59, 0, time.UTC)
	assert.NoError(t, ValidateExpiry("10", "26", endOfMonth))
	assert.ErrorIs(t, ValidateExpiry("10", "26", endOfMonth.Add(time.Second)), ErrCardExpired)
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)
	good := Info{Number: "4355084355084358", Holder: "PAYTR TEST", ExpiryMonth: "12", ExpiryYear: "30", CVV: "000"}
	require.NoError(t, Validate(good, now))

	bad := good
	bad.Number = "4242"
	assert.ErrorIs(t, Validate(bad, now), ErrInvalidNumber)

	bad = good
	bad.CVV = "12"
	assert.ErrorIs(t, Validate(bad, now), ErrInvalidCVV)

	bad = good
	bad.Holder = " a "
	assert.ErrorIs(t, Validate(bad, now), ErrInvalidHolder)
}

func TestMaskPAN(t *testing.T) {
	assert.Equal(t, "435508******4358", MaskPAN("4355084355084358"))
	assert.Equal(t, "435508******4358", MaskPAN("4355-0843-5508-4358"))
	assert.Equal(t, "****", MaskPAN("4242"))
	assert.Equal(t, "***4567", MaskPAN("1234567"))
	assert.Equal(t, "", MaskPAN(""))

	masked := Info{Number: "4355084355084358", CVV: "000"}.Masked()
	assert.Empty(t, masked.CVV)
	assert.Equal(t, "435508******4358", masked.Number)
}
