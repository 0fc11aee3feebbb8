package paytr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"paytr-payment-api/services/payment/card"
	"paytr-payment-api/utils"
)

const (
	merchantOIDPrefix   = "PTR"
	merchantOIDSuffix   = 6
	defaultLinkTimeout  = 30 * 60
	maxMerchantOIDChars = 64
)

var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrMissingEmail       = errors.New("customer email is required")
	ErrEmptyBasket        = errors.New("basket must contain at least one item")
	ErrMissingMerchantOID = errors.New("merchant oid is required")
	ErrInvalidMerchantOID = errors.New("merchant oid must be alphanumeric and at most 64 characters")
)

// NewMerchantOID mints a reference for a new transaction attempt: prefix,
// nanosecond timestamp and a random suffix.
func NewMerchantOID() string {
	return fmt.Sprintf("%s%d%s", merchantOIDPrefix, time.Now().UnixNano(), utils.GenerateRandomString(merchantOIDSuffix))
}

// Payload is a signed, transport-ready request.
type Payload struct {
	Operation   OperationKind
	URL         string
	MerchantOID string
	Form        url.Values
	Signature   CanonicalSignature
	// Request is the prepared operation that was signed.
	Request Operation
}

// Body returns the form-encoded request body.
func (p *Payload) Body() string {
	return p.Form.Encode()
}

type BuilderConfig struct {
	Endpoints          Endpoints
	IPResolver         IPResolver
	Callbacks          CallbackURLs
	LinkTimeoutSeconds int
	Now                func() time.Time
}

// Builder validates requests, fills defaults, signs and assembles payloads.
type Builder struct {
	endpoints   Endpoints
	ipResolver  IPResolver
	callbacks   CallbackURLs
	linkTimeout int
	now         func() time.Time
	log         *zap.Logger
}

func NewBuilder(cfg BuilderConfig, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = NewEndpoints("", "")
	}
	if cfg.IPResolver == nil {
		cfg.IPResolver = ContextIPResolver
	}
	if cfg.LinkTimeoutSeconds <= 0 {
		cfg.LinkTimeoutSeconds = defaultLinkTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{
		endpoints:   cfg.Endpoints,
		ipResolver:  cfg.IPResolver,
		callbacks:   cfg.Callbacks,
		linkTimeout: cfg.LinkTimeoutSeconds,
		now:         cfg.Now,
		log:         log,
	}
}

func (b *Builder) Endpoints() Endpoints {
	return b.endpoints
}

// ValidateMerchantOID accepts 1 to 64 ASCII letters and digits.
func ValidateMerchantOID(oid string) error {
	if oid == "" {
		return ErrMissingMerchantOID
	}
	if len(oid) > maxMerchantOIDChars {
		return ErrInvalidMerchantOID
	}
	for i := 0; i < len(oid); i++ {
		c := oid[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return ErrInvalidMerchantOID
		}
	}
	return nil
}

func (b *Builder) validateOrder(amount int64, customer Customer, basket Basket) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(customer.Email) == "" {
		return ErrMissingEmail
	}
	if len(basket) == 0 {
		return ErrEmptyBasket
	}
	return nil
}

func (b *Builder) fillCallbacks(c CallbackURLs) CallbackURLs {
	if c.OK == "" {
		c.OK = b.callbacks.OK
	}
	if c.Fail == "" {
		c.Fail = b.callbacks.Fail
	}
	return c
}

// PrepareCharge validates req and returns a copy with defaults filled in,
// minting a merchant oid when none was supplied.
func (b *Builder) PrepareCharge(req ChargeRequest) (*ChargeRequest, error) {
	req.Card.Number = card.NormalizePAN(req.Card.Number)
	if err := card.Validate(req.Card, b.now()); err != nil {
		return nil, ValidationError(err)
	}
	if err := b.validateOrder(req.AmountMinorUnits, req.Customer, req.Basket); err != nil {
		return nil, ValidationError(err)
	}
	if req.MerchantOID == "" {
		req.MerchantOID = NewMerchantOID()
	} else if err := ValidateMerchantOID(req.MerchantOID); err != nil {
		return nil, ValidationError(err)
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if req.InstallmentCount < 0 {
		req.InstallmentCount = 0
	}
	req.Callbacks = b.fillCallbacks(req.Callbacks)
	return &req, nil
}

func (b *Builder) PrepareLink(req LinkRequest) (*LinkRequest, error) {
	if err := b.validateOrder(req.AmountMinorUnits, req.Customer, req.Basket); err != nil {
		return nil, ValidationError(err)
	}
	if req.MerchantOID == "" {
		req.MerchantOID = NewMerchantOID()
	} else if err := ValidateMerchantOID(req.MerchantOID); err != nil {
		return nil, ValidationError(err)
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = b.linkTimeout
	}
	req.Callbacks = b.fillCallbacks(req.Callbacks)
	return &req, nil
}

func (b *Builder) PrepareStatus(req StatusRequest) (*StatusRequest, error) {
	if err := ValidateMerchantOID(req.MerchantOID); err != nil {
		return nil, ValidationError(err)
	}
	return &req, nil
}

func (b *Builder) resolveIP(ctx context.Context, current string) string {
	if current != "" {
		return current
	}
	ip, err := b.ipResolver.ClientIP(ctx)
	if err != nil || ip == "" {
		b.log.Debug("client ip unavailable, using loopback", zap.Error(err))
		return LoopbackIP
	}
	return ip
}

// BuildCharge prepares, signs and assembles a direct charge.
func (b *Builder) BuildCharge(ctx context.Context, req ChargeRequest, creds Credentials) (*Payload, error) {
	prepared, err := b.PrepareCharge(req)
	if err != nil {
		return nil, err
	}
	prepared.ClientIP = b.resolveIP(ctx, prepared.ClientIP)

	sig, err := SignOperation(prepared, creds)
	if err != nil {
		return nil, err
	}
	basket, err := basketJSON(prepared.Basket)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("merchant_id", creds.MerchantID)
	form.Set("user_ip", prepared.ClientIP)
	form.Set("merchant_oid", prepared.MerchantOID)
	form.Set("email", prepared.Customer.Email)
	form.Set("payment_type", "card")
	form.Set("payment_amount", strconv.FormatInt(prepared.AmountMinorUnits, 10))
	form.Set("currency", prepared.Currency)
	form.Set("installment_count", strconv.Itoa(prepared.InstallmentCount))
	form.Set("test_mode", creds.testModeFlag())
	form.Set("non_3d", boolFlag(prepared.Non3D))
	form.Set("merchant_ok_url", prepared.Callbacks.OK)
	form.Set("merchant_fail_url", prepared.Callbacks.Fail)
	form.Set("user_name", prepared.Customer.Name)
	form.Set("user_address", prepared.Customer.Address)
	form.Set("user_phone", prepared.Customer.Phone)
	form.Set("user_basket", basket)
	form.Set("cc_owner", prepared.Card.Holder)
	form.Set("card_number", prepared.Card.Number)
	form.Set("expiry_month", prepared.Card.ExpiryMonth)
	form.Set("expiry_year", prepared.Card.ExpiryYear)
	form.Set("cvv", prepared.Card.CVV)
	form.Set("paytr_token", sig.Token)

	return &Payload{
		Operation:   OperationCharge,
		URL:         b.endpoints.Charge,
		MerchantOID: prepared.MerchantOID,
		Form:        form,
		Signature:   sig,
		Request:     prepared,
	}, nil
}

// BuildLink prepares, signs and assembles a payment-link creation.
func (b *Builder) BuildLink(ctx context.Context, req LinkRequest, creds Credentials) (*Payload, error) {
	prepared, err := b.PrepareLink(req)
	if err != nil {
		return nil, err
	}
	prepared.ClientIP = b.resolveIP(ctx, prepared.ClientIP)

	sig, err := SignOperation(prepared, creds)
	if err != nil {
		return nil, err
	}
	basket, err := basketJSON(prepared.Basket)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("merchant_id", creds.MerchantID)
	form.Set("user_ip", prepared.ClientIP)
	form.Set("merchant_oid", prepared.MerchantOID)
	form.Set("email", prepared.Customer.Email)
	form.Set("price", strconv.FormatInt(prepared.AmountMinorUnits, 10))
	form.Set("currency", prepared.Currency)
	form.Set("user_basket", basket)
	form.Set("timeout_limit", strconv.Itoa(prepared.TimeoutSeconds))
	form.Set("test_mode", creds.testModeFlag())
	form.Set("user_name", prepared.Customer.Name)
	form.Set("callback_link", prepared.Callbacks.OK)
	form.Set("fail_link", prepared.Callbacks.Fail)
	form.Set("paytr_token", sig.Token)

	return &Payload{
		Operation:   OperationLink,
		URL:         b.endpoints.Link,
		MerchantOID: prepared.MerchantOID,
		Form:        form,
		Signature:   sig,
		Request:     prepared,
	}, nil
}

// BuildStatus assembles a status inquiry. No card data is involved.
func (b *Builder) BuildStatus(req StatusRequest, creds Credentials) (*Payload, error) {
	prepared, err := b.PrepareStatus(req)
	if err != nil {
		return nil, err
	}
	sig, err := SignOperation(prepared, creds)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("merchant_id", creds.MerchantID)
	form.Set("merchant_oid", prepared.MerchantOID)
	form.Set("test_mode", creds.testModeFlag())
	form.Set("paytr_token", sig.Token)

	return &Payload{
		Operation:   OperationStatus,
		URL:         b.endpoints.Status,
		MerchantOID: prepared.MerchantOID,
		Form:        form,
		Signature:   sig,
		Request:     prepared,
	}, nil
}
