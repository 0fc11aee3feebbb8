package models

// BasketItem is one basket line; Price is in minor units.
type BasketItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type CustomerInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// ChargePaymentRequest is the JSON body of POST /api/payments/charge.
type ChargePaymentRequest struct {
	CardHolder       string       `json:"card_holder"`
	CardNumber       string       `json:"card_number"`
	ExpiryMonth      string       `json:"expiry_month"`
	ExpiryYear       string       `json:"expiry_year"`
	CVV              string       `json:"cvv"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency,omitempty"`
	Customer         CustomerInfo `json:"customer"`
	Basket           []BasketItem `json:"basket"`
	MerchantOID      string       `json:"merchant_oid,omitempty"`
	InstallmentCount int          `json:"installment_count,omitempty"`
	Non3D            bool         `json:"non_3d,omitempty"`
}

// LinkPaymentRequest is the JSON body of POST /api/payments/link.
type LinkPaymentRequest struct {
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency,omitempty"`
	Customer       CustomerInfo `json:"customer"`
	Basket         []BasketItem `json:"basket"`
	MerchantOID    string       `json:"merchant_oid,omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`
}

type WatchResponse struct {
	JobID       string `json:"job_id"`
	MerchantOID string `json:"merchant_oid"`
}

type HealthStatus struct {
	Status  string      `json:"status"`
	Gateway string      `json:"gateway"`
	DB      string      `json:"database,omitempty"`
	Queue   interface{} `json:"queue,omitempty"`
}
