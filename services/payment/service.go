package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"paytr-payment-api/models"
	"paytr-payment-api/services/payment/card"
	"paytr-payment-api/services/payment/paytr"
)

type Config struct {
	Endpoints          paytr.Endpoints
	Callbacks          paytr.CallbackURLs
	LinkTimeoutSeconds int
	// Timeout bounds each live gateway call.
	Timeout   time.Duration
	Simulator paytr.SimulatorConfig
	// RequireLive turns unconfigured credentials into ENV_ERROR instead of
	// simulated results.
	RequireLive bool
	// MaxRequestsPerSecond caps outbound gateway calls; 0 means no cap.
	MaxRequestsPerSecond float64
}

type Option func(*Service)

func WithTransport(t paytr.Transport) Option {
	return func(s *Service) { s.transport = t }
}

func WithIPResolver(r paytr.IPResolver) Option {
	return func(s *Service) { s.ipResolver = r }
}

func WithRecorder(r AttemptRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service decides between the live gateway and the simulator on every call
// and maps every failure onto the paytr error kinds.
type Service struct {
	credentials paytr.CredentialsProvider
	builder     *paytr.Builder
	simulator   *paytr.Simulator
	transport   paytr.Transport
	ipResolver  paytr.IPResolver
	recorder    AttemptRecorder
	timeout     time.Duration
	requireLive bool
	limiter     *rate.Limiter
	statusGroup singleflight.Group
	log         *zap.Logger
	now         func() time.Time
}

var _ Gateway = (*Service)(nil)

func NewService(credentials paytr.CredentialsProvider, cfg Config, opts ...Option) *Service {
	s := &Service{
		credentials: credentials,
		timeout:     cfg.Timeout,
		requireLive: cfg.RequireLive,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		s.timeout = paytr.DefaultTimeout
	}
	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(cfg.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}
	if s.transport == nil {
		s.transport = paytr.NewHTTPTransport(s.timeout)
	}
	if cfg.Endpoints == (paytr.Endpoints{}) {
		cfg.Endpoints = paytr.NewEndpoints("", "")
	}
	if cfg.Simulator.LinkBaseURL == "" {
		cfg.Simulator.LinkBaseURL = cfg.Endpoints.LinkBaseURL
	}

	s.builder = paytr.NewBuilder(paytr.BuilderConfig{
		Endpoints:          cfg.Endpoints,
		IPResolver:         s.ipResolver,
		Callbacks:          cfg.Callbacks,
		LinkTimeoutSeconds: cfg.LinkTimeoutSeconds,
		Now:                s.now,
	}, s.log)
	s.simulator = paytr.NewSimulator(cfg.Simulator, s.log.Named("simulator"))
	return s
}

// Live reports whether the current credentials reach the real gateway.
func (s *Service) Live() bool {
	return paytr.IsConfigured(s.credentials.Credentials())
}

// mode returns the credentials for this call and whether to simulate.
func (s *Service) mode() (paytr.Credentials, bool, error) {
	creds := s.credentials.Credentials()
	if paytr.IsConfigured(creds) {
		return creds, false, nil
	}
	if s.requireLive {
		return creds, false, paytr.EnvError()
	}
	return creds, true, nil
}

// Charge executes a direct card charge.
func (s *Service) Charge(ctx context.Context, req paytr.ChargeRequest) (*paytr.ChargeResult, error) {
	creds, simulate, err := s.mode()
	if err != nil {
		s.log.Error("charge refused: live gateway required", zap.Error(err))
		return nil, err
	}

	prepared, err := s.builder.PrepareCharge(req)
	if err != nil {
		s.log.Info("charge rejected by validation",
			zap.String("card", card.MaskPAN(req.Card.Number)),
			zap.Error(err),
		)
		return nil, err
	}
	log := s.log.With(zap.String("merchant_oid", prepared.MerchantOID), zap.Bool("simulated", simulate))
	attempt := s.newAttempt(ctx, paytr.OperationCharge, prepared.MerchantOID, prepared.AmountMinorUnits, prepared.Currency, simulate)

	if simulate {
		attempt.advance(ctx, models.AttemptSubmitted)
		res, err := s.simulator.SimulateCharge(ctx, prepared)
		if err != nil {
			attempt.fail(ctx, err)
			return nil, err
		}
		attempt.advance(ctx, models.AttemptSucceeded)
		return res, nil
	}

	payload, err := s.builder.BuildCharge(ctx, *prepared, creds)
	if err != nil {
		attempt.fail(ctx, err)
		log.Error("failed to build charge", zap.Error(err))
		return nil, err
	}
	attempt.advance(ctx, models.AttemptSigned)

	log.Info("sending charge to gateway",
		zap.String("card", card.MaskPAN(prepared.Card.Number)),
		zap.Int64("amount", prepared.AmountMinorUnits),
	)
	attempt.advance(ctx, models.AttemptSubmitted)
	body, err := s.submit(ctx, payload)
	if err != nil {
		s.submitFailed(ctx, attempt, err)
		log.Warn("charge transport failure", zap.Error(err))
		return nil, err
	}

	res, err := paytr.ParseChargeResponse(body, payload.Request.(*paytr.ChargeRequest))
	if err != nil {
		attempt.fail(ctx, err)
		log.Warn("charge declined by gateway", zap.Error(err))
		return nil, err
	}
	attempt.advance(ctx, models.AttemptSucceeded)
	log.Info("charge accepted", zap.String("transaction_id", res.TransactionID))
	return res, nil
}

// CreateLink creates a hosted payment link.
func (s *Service) CreateLink(ctx context.Context, req paytr.LinkRequest) (*paytr.LinkResult, error) {
	creds, simulate, err := s.mode()
	if err != nil {
		s.log.Error("link refused: live gateway required", zap.Error(err))
		return nil, err
	}

	prepared, err := s.builder.PrepareLink(req)
	if err != nil {
		s.log.Info("link rejected by validation", zap.Error(err))
		return nil, err
	}
	log := s.log.With(zap.String("merchant_oid", prepared.MerchantOID), zap.Bool("simulated", simulate))
	attempt := s.newAttempt(ctx, paytr.OperationLink, prepared.MerchantOID, prepared.AmountMinorUnits, prepared.Currency, simulate)

	if simulate {
		attempt.advance(ctx, models.AttemptSubmitted)
		res, err := s.simulator.SimulateLink(ctx, prepared)
		if err != nil {
			attempt.fail(ctx, err)
			return nil, err
		}
		attempt.advance(ctx, models.AttemptSucceeded)
		return res, nil
	}

	payload, err := s.builder.BuildLink(ctx, *prepared, creds)
	if err != nil {
		attempt.fail(ctx, err)
		log.Error("failed to build link request", zap.Error(err))
		return nil, err
	}
	attempt.advance(ctx, models.AttemptSigned)

	attempt.advance(ctx, models.AttemptSubmitted)
	body, err := s.submit(ctx, payload)
	if err != nil {
		s.submitFailed(ctx, attempt, err)
		log.Warn("link transport failure", zap.Error(err))
		return nil, err
	}

	res, err := paytr.ParseLinkResponse(body, s.builder.Endpoints().LinkBaseURL, payload.Request.(*paytr.LinkRequest))
	if err != nil {
		attempt.fail(ctx, err)
		log.Warn("link rejected by gateway", zap.Error(err))
		return nil, err
	}
	attempt.advance(ctx, models.AttemptSucceeded)
	log.Info("payment link created", zap.String("payment_url", res.PaymentURL))
	return res, nil
}

// submitFailed settles an attempt whose submit failed. Unless the request
// provably never left, the gateway may have processed it, so the attempt stays
// SUBMITTED for a status inquiry to resolve.
func (s *Service) submitFailed(ctx context.Context, a *Attempt, err error) {
	if errors.Is(err, errNotSent) {
		a.fail(ctx, err)
		return
	}
	a.unresolved(ctx, err)
}

// CheckStatus asks the gateway about merchantOID. It is a read and does not
// move any attempt state.
func (s *Service) CheckStatus(ctx context.Context, merchantOID string) (*paytr.StatusResult, error) {
	creds, simulate, err := s.mode()
	if err != nil {
		return nil, err
	}
	req := paytr.StatusRequest{MerchantOID: merchantOID}

	if simulate {
		prepared, err := s.builder.PrepareStatus(req)
		if err != nil {
			return nil, err
		}
		return s.simulator.SimulateStatus(ctx, prepared)
	}

	payload, err := s.builder.BuildStatus(req, creds)
	if err != nil {
		return nil, err
	}

	// Concurrent inquiries for one oid share a single gateway call. The shared
	// call is detached from any one caller; each caller still stops waiting
	// when its own context ends.
	ch := s.statusGroup.DoChan(merchantOID, func() (interface{}, error) {
		body, err := s.submit(context.WithoutCancel(ctx), payload)
		if err != nil {
			s.log.Warn("status transport failure", zap.String("merchant_oid", merchantOID), zap.Error(err))
			return nil, err
		}
		res, err := paytr.ParseStatusResponse(body, payload.Request.(*paytr.StatusRequest))
		if err != nil {
			s.log.Warn("status inquiry rejected", zap.String("merchant_oid", merchantOID), zap.Error(err))
			return nil, err
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, paytr.NetworkError("timeout", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			s.log.Debug("status inquiry shared", zap.String("merchant_oid", merchantOID))
		}
		res := *r.Val.(*paytr.StatusResult)
		return &res, nil
	}
}

// errNotSent marks submit failures where nothing reached the gateway.
var errNotSent = errors.New("request not sent")

type transportReply struct {
	status int
	body   string
	err    error
}

// submit posts payload under the configured timeout. It returns as soon as ctx
// ends even if the transport does not.
func (s *Service) submit(ctx context.Context, payload *paytr.Payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", paytr.NetworkError("rate limited", errors.Join(errNotSent, err))
		}
	}

	start := s.now()
	done := make(chan transportReply, 1)
	go func() {
		status, body, err := s.transport.PostForm(ctx, payload.URL, payload.Body())
		done <- transportReply{status: status, body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", paytr.NetworkError("timeout", ctx.Err())
	case r := <-done:
		s.log.Debug("gateway replied",
			zap.String("operation", string(payload.Operation)),
			zap.Int("status", r.status),
			zap.Duration("elapsed", s.now().Sub(start)),
		)
		if r.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", paytr.NetworkError("timeout", ctxErr)
			}
			return "", paytr.NetworkError("", r.err)
		}
		if r.status < 200 || r.status > 299 {
			return "", paytr.NetworkError(fmt.Sprintf("http status %d", r.status), nil)
		}
		return r.body, nil
	}
}
