// Package gateway implements the resource-server middleware (§4.4): the
// three-branch dispatcher that turns a protected handler into a
// pay-once-redeem-many endpoint — issuing 402 challenges, mediating
// settlement against a facilitator, and verifying zero-knowledge
// presentations before invoking the wrapped handler.
package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/x402zk/credential-gateway/pkg/config"
	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/proofabi"
	"github.com/x402zk/credential-gateway/pkg/ratelimit"
	"github.com/x402zk/credential-gateway/pkg/suite"
)

// contextKey is an unexported type for context values this package sets,
// preventing collisions with keys set by other packages.
type contextKey string

const (
	tierContextKey        contextKey = "zkcred_tier"
	originTokenContextKey contextKey = "zkcred_origin_token"
	requestIDContextKey   contextKey = "zkcred_request_id"
)

// TierFromContext extracts the verified tier a downstream handler was
// authorized at, set by the credential-verification branch on success.
func TierFromContext(ctx context.Context) (int, bool) {
	tier, ok := ctx.Value(tierContextKey).(int)
	return tier, ok
}

// OriginTokenFromContext extracts the rate-limit key the request was
// gated under.
func OriginTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(originTokenContextKey).(string)
	return token, ok
}

// RequestIDFromContext extracts the correlation id Protect assigned to
// this request, for handlers that want to echo it into their own logs.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}

// FacilitatorClient is the narrow interface the middleware needs against
// the facilitator's /settle endpoint; production wiring uses an
// *http.Client-backed implementation (HTTPFacilitatorClient in
// facilitatorclient.go), tests
// substitute a fake.
type FacilitatorClient interface {
	Settle(ctx context.Context, body []byte) (status int, respBody []byte, err error)
}

// Middleware wraps protected handlers per §4.4.
type Middleware struct {
	cfg         *config.GatewayConfig
	facilitator FacilitatorClient
	verifier    proofabi.Verifier
	limiter     *ratelimit.Limiter
	facPubkey   curve.Point
	logger      *log.Logger
	now         func() time.Time
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithLogger overrides the middleware's default logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// WithClock overrides the middleware's time source (tests only).
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.now = now }
}

// New constructs a Middleware. verifier may be nil only when
// cfg.SkipProofVerification is true.
func New(cfg *config.GatewayConfig, facilitator FacilitatorClient, verifier proofabi.Verifier, opts ...Option) (*Middleware, error) {
	m := &Middleware{
		cfg:         cfg,
		facilitator: facilitator,
		verifier:    verifier,
		limiter:     ratelimit.New(cfg.RateLimitMaxRequestsPerToken, cfg.RateLimitWindowSeconds),
		logger:      log.New(log.Writer(), "[Gateway] ", log.LstdFlags),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !cfg.SkipProofVerification {
		if cfg.FacilitatorPubkey == "" {
			return nil, errConfig("FacilitatorPubkey is required unless SkipProofVerification is set")
		}
		_, pointHex, err := suite.SplitPrefixed(cfg.FacilitatorPubkey)
		if err != nil {
			return nil, err
		}
		pubkey, err := suite.DecodePoint(pointHex)
		if err != nil {
			return nil, err
		}
		m.facPubkey = pubkey
	}
	m.limiter.StartPruning(60 * time.Second)
	return m, nil
}

// Close stops the middleware's background rate-limit pruning goroutine.
func (m *Middleware) Close() {
	m.limiter.Stop()
}

func errConfig(msg string) error {
	return &configError{msg: msg}
}

type configError struct{ msg string }

func (e *configError) Error() string { return "gateway: " + e.msg }

// Protect wraps handler with the three-branch dispatcher of §4.4: payment
// mediation, credential verification, or a 402 discovery challenge.
func (m *Middleware) Protect(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey, reqID))
		m.logger.Printf("request_id=%s method=%s path=%s", reqID, r.Method, r.URL.Path)

		body, ok := m.readBody(w, r)
		if !ok {
			return
		}

		switch {
		case body.hasPayment():
			m.handlePaymentMediation(w, r, body)
		case body.hasPresentation():
			m.handleCredentialVerification(w, r, body, handler)
		default:
			m.writeDiscoveryChallenge(w, r)
		}
	}
}
