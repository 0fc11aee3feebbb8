package paytr

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"paytr-payment-api/services/payment/card"
	"paytr-payment-api/utils"
)

const (
	simulatedIDPrefix = "SIM"
	DefaultSimDelay   = time.Second
	DefaultSimJitter  = time.Second
)

type SimulatorConfig struct {
	// Delay is the minimum artificial latency; Jitter adds a random amount on top.
	Delay       time.Duration
	Jitter      time.Duration
	LinkBaseURL string
}

// DefaultSimulatorConfig gives one to two seconds of latency.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Delay:       DefaultSimDelay,
		Jitter:      DefaultSimJitter,
		LinkBaseURL: DefaultLinkBaseURL,
	}
}

// Simulator answers in place of the gateway when no live credentials are
// configured. Its results have the same types as live results, with
// Simulated set. It keeps no state between calls.
type Simulator struct {
	config SimulatorConfig
	log    *zap.Logger
}

func NewSimulator(config SimulatorConfig, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}
	if config.LinkBaseURL == "" {
		config.LinkBaseURL = DefaultLinkBaseURL
	}
	return &Simulator{config: config, log: log}
}

func (s *Simulator) wait(ctx context.Context) error {
	d := s.config.Delay
	if s.config.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.config.Jitter)))
	}
	if d == 0 {
		if err := ctx.Err(); err != nil {
			return NetworkError("simulated request cancelled", err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return NetworkError("simulated request cancelled", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func simulatedID() string {
	return fmt.Sprintf("%s%d%s", simulatedIDPrefix, time.Now().UnixNano(), utils.GenerateRandomString(8))
}

// SimulateCharge never declines on brand; unknown cards get a generic bank label.
func (s *Simulator) SimulateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	info := card.DetectBrand(req.Card.Number)
	s.log.Info("simulated charge",
		zap.String("merchant_oid", req.MerchantOID),
		zap.String("card", card.MaskPAN(req.Card.Number)),
		zap.String("brand", string(info.Brand)),
		zap.Bool("known_test_card", info.IsKnownTestCard),
	)
	return &ChargeResult{
		MerchantOID:      req.MerchantOID,
		TransactionID:    simulatedID(),
		AuthCode:         utils.GenerateNumericCode(6),
		Bank:             bankLabel(info),
		AmountMinorUnits: req.AmountMinorUnits,
		Simulated:        true,
	}, nil
}

func (s *Simulator) SimulateLink(ctx context.Context, req *LinkRequest) (*LinkResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	token := simulatedID()
	s.log.Info("simulated payment link", zap.String("merchant_oid", req.MerchantOID))
	return &LinkResult{
		MerchantOID: req.MerchantOID,
		Token:       token,
		PaymentURL:  strings.TrimRight(s.config.LinkBaseURL, "/") + "/" + token,
		Simulated:   true,
	}, nil
}

// SimulateStatus reports every inquiry as a successful card payment. The
// amount is unknown without shared state and is reported as zero.
func (s *Simulator) SimulateStatus(ctx context.Context, req *StatusRequest) (*StatusResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.log.Info("simulated status inquiry", zap.String("merchant_oid", req.MerchantOID))
	return &StatusResult{
		MerchantOID: req.MerchantOID,
		Status:      StatusSuccess,
		PaymentType: "card",
		Currency:    DefaultCurrency,
		Simulated:   true,
	}, nil
}
