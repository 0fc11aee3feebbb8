package paytr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	token, err := ParseToken("success:ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", token)

	token, err = ParseToken("\ufeffsuccess:ABC123\r\nextra line")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", token)
}

func TestParseToken_Failures(t *testing.T) {
	tests := []string{
		"failed:invalid_hash",
		"FAILED",
		"",
		"success:",
		"success",
		"<html>502 Bad Gateway</html>",
		"ok:ABC",
	}
	for _, body := range tests {
		_, err := ParseToken(body)
		require.Error(t, err, body)
		var gerr *GatewayError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, KindGateway, gerr.Kind)
	}

	_, err := ParseToken("failed:invalid_hash")
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "failed:invalid_hash", gerr.RawMessage)
}

func TestParseChargeResponse(t *testing.T) {
	req := testCharge()
	res, err := ParseChargeResponse("success:TX987", req)
	require.NoError(t, err)
	assert.Equal(t, &ChargeResult{
		MerchantOID:      req.MerchantOID,
		TransactionID:    "TX987",
		Bank:             "PayTR Test",
		AmountMinorUnits: 10000,
	}, res)
}

func TestParseLinkResponse(t *testing.T) {
	res, err := ParseLinkResponse("success:ABC123", "https://www.paytr.com/link/", &LinkRequest{MerchantOID: "PTR1"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", res.Token)
	assert.Equal(t, "https://www.paytr.com/link/ABC123", res.PaymentURL)
	assert.False(t, res.Simulated)
}

func TestParseStatusResponse(t *testing.T) {
	req := &StatusRequest{MerchantOID: "PTR1"}
	tests := []struct {
		body string
		want StatusResult
	}{
		{"success:success|10000|card|TL", StatusResult{MerchantOID: "PTR1", Status: StatusSuccess, AmountMinorUnits: 10000, PaymentType: "card", Currency: "TL"}},
		{"success:failed|2500|eft|USD", StatusResult{MerchantOID: "PTR1", Status: StatusFailed, AmountMinorUnits: 2500, PaymentType: "eft", Currency: "USD"}},
		{"success:waiting", StatusResult{MerchantOID: "PTR1", Status: StatusPending}},
		{"success:success|10000", StatusResult{MerchantOID: "PTR1", Status: StatusSuccess, AmountMinorUnits: 10000}},
		{"success:success|10000|card|TL|extra|fields", StatusResult{MerchantOID: "PTR1", Status: StatusSuccess, AmountMinorUnits: 10000, PaymentType: "card", Currency: "TL"}},
	}
	for _, tt := range tests {
		res, err := ParseStatusResponse(tt.body, req)
		require.NoError(t, err, tt.body)
		assert.Equal(t, tt.want, *res, tt.body)
	}
}

func TestParseStatusResponse_Failures(t *testing.T) {
	req := &StatusRequest{MerchantOID: "PTR1"}
	for _, body := range []string{"failed:not_found", "success:success|ten|card|TL", "garbage"} {
		_, err := ParseStatusResponse(body, req)
		assert.Equal(t, KindGateway, KindOf(err), body)
	}
}
