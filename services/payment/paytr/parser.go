package paytr

import (
	"strconv"
	"strings"

	"paytr-payment-api/services/payment/card"
)

const (
	successPrefix    = "success:"
	statusFieldCount = 4
)

// firstLine trims a UTF-8 BOM and surrounding whitespace and returns the
// first line of body.
func firstLine(body string) string {
	body = strings.TrimPrefix(body, "\ufeff")
	body = strings.TrimSpace(body)
	if i := strings.IndexAny(body, "\r\n"); i >= 0 {
		body = body[:i]
	}
	return body
}

// successRemainder returns the text after "success:". Anything else, including
// "failed:..." replies, is a GATEWAY_ERROR carrying the full response.
func successRemainder(body string) (string, error) {
	line := firstLine(body)
	if !strings.HasPrefix(line, successPrefix) {
		return "", GatewayFailure(strings.TrimSpace(body))
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, successPrefix))
	if rest == "" {
		return "", GatewayFailure(strings.TrimSpace(body))
	}
	return rest, nil
}

// ParseToken extracts the opaque token of a charge or link reply.
func ParseToken(body string) (string, error) {
	return successRemainder(body)
}

// ParseChargeResponse turns a live charge reply into a ChargeResult for req.
func ParseChargeResponse(body string, req *ChargeRequest) (*ChargeResult, error) {
	token, err := ParseToken(body)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		MerchantOID:      req.MerchantOID,
		TransactionID:    token,
		Bank:             bankLabel(card.DetectBrand(req.Card.Number)),
		AmountMinorUnits: req.AmountMinorUnits,
	}, nil
}

// ParseLinkResponse builds the payment URL from the returned token; the
// gateway does not send the URL itself.
func ParseLinkResponse(body, linkBaseURL string, req *LinkRequest) (*LinkResult, error) {
	token, err := ParseToken(body)
	if err != nil {
		return nil, err
	}
	return &LinkResult{
		MerchantOID: req.MerchantOID,
		Token:       token,
		PaymentURL:  strings.TrimRight(linkBaseURL, "/") + "/" + token,
	}, nil
}

// ParseStatusResponse reads "success:status|amount|paymentType|currency".
// Missing trailing fields are empty and extra trailing fields are ignored.
func ParseStatusResponse(body string, req *StatusRequest) (*StatusResult, error) {
	rest, err := successRemainder(body)
	if err != nil {
		return nil, err
	}

	fields := strings.Split(rest, "|")
	for len(fields) < statusFieldCount {
		fields = append(fields, "")
	}

	var amount int64
	if raw := strings.TrimSpace(fields[1]); raw != "" {
		amount, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, GatewayFailure(strings.TrimSpace(body))
		}
	}

	return &StatusResult{
		MerchantOID:      req.MerchantOID,
		Status:           parseStatus(fields[0]),
		AmountMinorUnits: amount,
		PaymentType:      strings.TrimSpace(fields[2]),
		Currency:         strings.TrimSpace(fields[3]),
	}, nil
}

func parseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func bankLabel(info card.BrandInfo) string {
	if info.DisplayBank != "" {
		return info.DisplayBank
	}
	return card.UnknownBankLabel
}
