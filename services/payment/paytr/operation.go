package paytr

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"paytr-payment-api/services/payment/card"
)

type OperationKind string

const (
	OperationCharge OperationKind = "charge"
	OperationLink   OperationKind = "link"
	OperationStatus OperationKind = "status"
)

// DefaultCurrency is used when a request leaves the currency empty.
const DefaultCurrency = "TL"

// Operation is one of *ChargeRequest, *LinkRequest or *StatusRequest.
type Operation interface {
	Kind() OperationKind
}

type Customer struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type BasketItem struct {
	Name            string `json:"name"`
	PriceMinorUnits int64  `json:"price"`
	Quantity        int    `json:"quantity"`
}

// Basket serialises to the gateway's [[name, "price", quantity], ...] form.
// Element order is fixed so the JSON is byte-stable for signing.
type Basket []BasketItem

func (b Basket) MarshalJSON() ([]byte, error) {
	rows := make([][3]interface{}, 0, len(b))
	for _, item := range b {
		rows = append(rows, [3]interface{}{item.Name, FormatMajorUnits(item.PriceMinorUnits), item.Quantity})
	}
	return json.Marshal(rows)
}

// FormatMajorUnits renders 10050 as "100.50".
func FormatMajorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

type CallbackURLs struct {
	OK   string `json:"ok_url"`
	Fail string `json:"fail_url"`
}

type ChargeRequest struct {
	Card             card.Info
	AmountMinorUnits int64
	Currency         string
	Customer         Customer
	Basket           Basket
	// MerchantOID is minted by the builder when empty. Retries of the same
	// attempt must reuse it.
	MerchantOID      string
	Callbacks        CallbackURLs
	ClientIP         string
	InstallmentCount int
	// Non3D passes the 3-D Secure bypass flag through unchanged.
	Non3D bool
}

func (*ChargeRequest) Kind() OperationKind { return OperationCharge }

type LinkRequest struct {
	AmountMinorUnits int64
	Currency         string
	Customer         Customer
	Basket           Basket
	MerchantOID      string
	Callbacks        CallbackURLs
	ClientIP         string
	TimeoutSeconds   int
}

func (*LinkRequest) Kind() OperationKind { return OperationLink }

type StatusRequest struct {
	MerchantOID string
}

func (*StatusRequest) Kind() OperationKind { return OperationStatus }
