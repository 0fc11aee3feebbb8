package paytr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CanonicalSignature is the signed string and its token.
type CanonicalSignature struct {
	CanonicalString string
	Token           string
}

var errNilOperation = errors.New("nil operation")

// BuildCanonicalString concatenates the fields of op in the order the remote
// verifier expects. There are no separators, integers are decimal, booleans are
// "0"/"1" and the basket is its stable JSON form.
func BuildCanonicalString(op Operation, creds Credentials) (string, error) {
	var sb strings.Builder
	switch o := op.(type) {
	case *ChargeRequest:
		if o == nil {
			return "", SignatureError(errNilOperation)
		}
		basket, err := basketJSON(o.Basket)
		if err != nil {
			return "", err
		}
		sb.WriteString(creds.MerchantID)
		sb.WriteString(o.ClientIP)
		sb.WriteString(o.MerchantOID)
		sb.WriteString(o.Customer.Email)
		sb.WriteString(strconv.FormatInt(o.AmountMinorUnits, 10))
		sb.WriteString(basket)
		sb.WriteString(creds.testModeFlag())
	case *LinkRequest:
		if o == nil {
			return "", SignatureError(errNilOperation)
		}
		basket, err := basketJSON(o.Basket)
		if err != nil {
			return "", err
		}
		sb.WriteString(creds.MerchantID)
		sb.WriteString(o.ClientIP)
		sb.WriteString(o.MerchantOID)
		sb.WriteString(o.Customer.Email)
		sb.WriteString(strconv.FormatInt(o.AmountMinorUnits, 10))
		sb.WriteString(o.Currency)
		sb.WriteString(basket)
		sb.WriteString(strconv.Itoa(o.TimeoutSeconds))
		sb.WriteString(creds.testModeFlag())
	case *StatusRequest:
		if o == nil {
			return "", SignatureError(errNilOperation)
		}
		sb.WriteString(creds.MerchantID)
		sb.WriteString(o.MerchantOID)
		sb.WriteString(creds.testModeFlag())
	default:
		return "", SignatureError(fmt.Errorf("unsupported operation %T", op))
	}
	sb.Write(creds.MerchantSalt)
	return sb.String(), nil
}

func basketJSON(b Basket) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", SignatureError(fmt.Errorf("encode basket: %w", err))
	}
	return string(raw), nil
}

// Sign returns base64(HMAC-SHA256(key, canonical)). It works with any key,
// placeholder keys included.
func Sign(canonical string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignOperation builds the canonical string for op and signs it.
func SignOperation(op Operation, creds Credentials) (CanonicalSignature, error) {
	canonical, err := BuildCanonicalString(op, creds)
	if err != nil {
		return CanonicalSignature{}, err
	}
	return CanonicalSignature{
		CanonicalString: canonical,
		Token:           Sign(canonical, creds.MerchantKey),
	}, nil
}
