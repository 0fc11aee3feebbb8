package paytr

// Result is one of *ChargeResult, *LinkResult or *StatusResult. Simulated and
// live calls return the same concrete types.
type Result interface {
	IsSimulated() bool
}

type ChargeResult struct {
	MerchantOID      string `json:"merchant_oid"`
	TransactionID    string `json:"transaction_id"`
	AuthCode         string `json:"auth_code"`
	Bank             string `json:"bank"`
	AmountMinorUnits int64  `json:"amount"`
	Simulated        bool   `json:"simulated"`
}

func (r *ChargeResult) IsSimulated() bool { return r.Simulated }

type LinkResult struct {
	MerchantOID string `json:"merchant_oid"`
	Token       string `json:"token"`
	PaymentURL  string `json:"payment_url"`
	Simulated   bool   `json:"simulated"`
}

func (r *LinkResult) IsSimulated() bool { return r.Simulated }

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPending Status = "PENDING"
)

type StatusResult struct {
	MerchantOID      string `json:"merchant_oid"`
	Status           Status `json:"status"`
	AmountMinorUnits int64  `json:"amount"`
	PaymentType      string `json:"payment_type"`
	Currency         string `json:"currency"`
	Simulated        bool   `json:"simulated"`
}

func (r *StatusResult) IsSimulated() bool { return r.Simulated }
