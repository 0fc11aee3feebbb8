package paytr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paytr-payment-api/services/payment/card"
)

func testCredentials() Credentials {
	return Credentials{
		MerchantID:   "123456",
		MerchantKey:  []byte("merchant-key"),
		MerchantSalt: []byte("merchant-salt"),
		TestMode:     true,
	}
}

func testCharge() *ChargeRequest {
	return &ChargeRequest{
		Card: card.Info{
			Number:      "4355084355084358",
			Holder:      "PAYTR TEST",
			ExpiryMonth: "12",
			ExpiryYear:  "30",
			CVV:         "000",
		},
		AmountMinorUnits: 10000,
		Currency:         "TL",
		Customer:         Customer{Email: "buyer@example.com", Name: "Test Buyer"},
		Basket:           Basket{{Name: "Ticket", PriceMinorUnits: 10000, Quantity: 1}},
		MerchantOID:      "PTR1700000000000000000abcdef",
		ClientIP:         "10.0.0.1",
	}
}

func TestBuildCanonicalString_Charge(t *testing.T) {
	got, err := BuildCanonicalString(testCharge(), testCredentials())
	require.NoError(t, err)

	want := "123456" + "10.0.0.1" + "PTR1700000000000000000abcdef" + "buyer@example.com" + "10000" +
		`[["Ticket","100.00",1]]` + "1" + "merchant-salt"
	assert.Equal(t, want, got)
}

func TestBuildCanonicalString_Link(t *testing.T) {
	req := &LinkRequest{
		AmountMinorUnits: 2550,
		Currency:         "TL",
		Customer:         Customer{Email: "buyer@example.com"},
		Basket:           Basket{{Name: "A", PriceMinorUnits: 1275, Quantity: 2}},
		MerchantOID:      "PTR1",
		ClientIP:         "10.0.0.2",
		TimeoutSeconds:   600,
	}
	creds := testCredentials()
	creds.TestMode = false

	got, err := BuildCanonicalString(req, creds)
	require.NoError(t, err)
	want := "123456" + "10.0.0.2" + "PTR1" + "buyer@example.com" + "2550" + "TL" +
		`[["A","12.75",2]]` + "600" + "0" + "merchant-salt"
	assert.Equal(t, want, got)
}

func TestBuildCanonicalString_Status(t *testing.T) {
	got, err := BuildCanonicalString(&StatusRequest{MerchantOID: "PTR42"}, testCredentials())
	require.NoError(t, err)
	assert.Equal(t, "123456PTR421merchant-salt", got)
}

type bogusOperation struct{}

func (bogusOperation) Kind() OperationKind { return "bogus" }

func TestBuildCanonicalString_Malformed(t *testing.T) {
	_, err := BuildCanonicalString(bogusOperation{}, testCredentials())
	assert.Equal(t, KindSignature, KindOf(err))

	var nilCharge *ChargeRequest
	_, err = BuildCanonicalString(nilCharge, testCredentials())
	assert.Equal(t, KindSignature, KindOf(err))

	_, err = BuildCanonicalString(nil, testCredentials())
	assert.Equal(t, KindSignature, KindOf(err))
}

func TestSign_MatchesHMAC(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("merchant-key"))
	mac.Write([]byte("payload"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign("payload", []byte("merchant-key")))
}

func TestSign_PlaceholderKeyStillSigns(t *testing.T) {
	token := Sign("payload", []byte(PlaceholderMerchantKey))
	assert.NotEmpty(t, token)
}

func TestSignOperation_Deterministic(t *testing.T) {
	creds := testCredentials()
	first, err := SignOperation(testCharge(), creds)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := SignOperation(testCharge(), creds)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSignOperation_FieldChangesToken(t *testing.T) {
	creds := testCredentials()
	r := rand.New(rand.NewSource(1))
	seen := make(map[string]struct{})

	for i := 0; i < 2000; i++ {
		req := testCharge()
		req.MerchantOID = fmt.Sprintf("PTR%d", r.Int63())
		req.AmountMinorUnits = r.Int63n(1_000_000) + 1
		req.Customer.Email = fmt.Sprintf("u%d@example.com", r.Intn(1_000_000))

		base, err := SignOperation(req, creds)
		require.NoError(t, err)

		mutations := []func(*ChargeRequest){
			func(c *ChargeRequest) { c.MerchantOID += "x" },
			func(c *ChargeRequest) { c.AmountMinorUnits++ },
			func(c *ChargeRequest) { c.Customer.Email = "x" + c.Customer.Email },
			func(c *ChargeRequest) { c.ClientIP = "10.0.0.9" },
			func(c *ChargeRequest) { c.Basket = Basket{{Name: "Other", PriceMinorUnits: 1, Quantity: 1}} },
		}
		for _, mutate := range mutations {
			changed := *req
			mutate(&changed)
			sig, err := SignOperation(&changed, creds)
			require.NoError(t, err)
			assert.NotEqual(t, base.Token, sig.Token)
		}

		_, dup := seen[base.Token]
		assert.False(t, dup)
		seen[base.Token] = struct{}{}
	}
}

func TestSignOperation_CredentialsChangeToken(t *testing.T) {
	creds := testCredentials()
	base, err := SignOperation(&StatusRequest{MerchantOID: "PTR1"}, creds)
	require.NoError(t, err)

	other := creds
	other.TestMode = false
	sig, err := SignOperation(&StatusRequest{MerchantOID: "PTR1"}, other)
	require.NoError(t, err)
	assert.NotEqual(t, base.Token, sig.Token)

	other = creds
	other.MerchantKey = []byte("another-key")
	sig, err = SignOperation(&StatusRequest{MerchantOID: "PTR1"}, other)
	require.NoError(t, err)
	assert.Equal(t, base.CanonicalString, sig.CanonicalString)
	assert.NotEqual(t, base.Token, sig.Token)
}
