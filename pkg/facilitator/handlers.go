package facilitator

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x402zk/credential-gateway/pkg/paybackend"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// Handlers exposes the facilitator's HTTP surface (§6 "HTTP surface
// (facilitator)"): /health, /info, /.well-known/zk-credential-keys, /settle,
// and /metrics.
type Handlers struct {
	issuer *Issuer
	logger *log.Logger

	registry       *prometheus.Registry
	settledTotal   *prometheus.CounterVec
	settleFailures *prometheus.CounterVec
}

// NewHandlers wires an Issuer to its HTTP surface. Like ratelimit.Limiter,
// each Handlers owns a private prometheus.Registry so constructing more than
// one in a process never collides on metric names.
func NewHandlers(issuer *Issuer, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[Facilitator] ", log.LstdFlags)
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Handlers{
		issuer:   issuer,
		logger:   logger,
		registry: reg,
		settledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_facilitator_settlements_total",
			Help: "Settlements processed, by tier.",
		}, []string{"tier"}),
		settleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_facilitator_settle_failures_total",
			Help: "Settlement failures, by error kind.",
		}, []string{"kind"}),
	}
}

// Registry exposes this Handlers' metric registry for mounting under
// /metrics.
func (h *Handlers) Registry() *prometheus.Registry {
	return h.registry
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, kind wire.ErrorKind, message string) {
	writeJSON(w, wire.HTTPStatus(kind), wire.ErrorResponse{Error: kind, Message: message})
}

// HandleHealth serves GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{Status: "ok", Service: h.issuer.ServiceID})
}

// HandleInfo serves GET /info.
func (h *Handlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.issuer.GetInfo()
	if err != nil {
		h.logger.Printf("get_info failed: %v", err)
		writeError(w, wire.ErrPaymentProcessingError, "facilitator key derivation failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleJWKS serves GET /.well-known/zk-credential-keys.
func (h *Handlers) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	jwks, err := h.issuer.JWKS()
	if err != nil {
		h.logger.Printf("jwks derivation failed: %v", err)
		writeError(w, wire.ErrPaymentProcessingError, "facilitator key derivation failed")
		return
	}
	writeJSON(w, http.StatusOK, jwks)
}

// HandleSettle serves POST /settle. The request body's payment field is
// scheme-agnostic at the wire level (interface{}); this handler re-marshals
// it into the EIP-3009 shape this facilitator's payment backend expects.
// The facilitator never logs the decoded payment or commitment (Invariant
// "no commitment-to-payer logging").
func (h *Handlers) HandleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, wire.ErrInvalidProof, "method not allowed")
		return
	}

	var req wire.SettlementRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, wire.ErrInvalidProof, "malformed settlement request")
		return
	}
	if req.Extensions.ZKCredential.Commitment == "" {
		writeError(w, wire.ErrInvalidProof, "missing extensions.zk_credential.commitment")
		return
	}
	h.logger.Printf("request_id=%s settle received", req.RequestID)

	paymentBytes, err := json.Marshal(req.Payment)
	if err != nil {
		writeError(w, wire.ErrInvalidProof, "malformed payment payload")
		return
	}
	var payment paybackend.Payment
	if err := json.Unmarshal(paymentBytes, &payment); err != nil {
		writeError(w, wire.ErrInvalidProof, "payment payload does not match expected scheme")
		return
	}

	resp, err := h.issuer.Settle(r.Context(), req, payment)
	if err != nil {
		var issuerErr *IssuerError
		if errors.As(err, &issuerErr) {
			h.settleFailures.WithLabelValues(string(issuerErr.Kind)).Inc()
			writeError(w, issuerErr.Kind, issuerErr.Message)
			return
		}
		h.settleFailures.WithLabelValues("internal").Inc()
		h.logger.Printf("settle failed: %v", err)
		writeError(w, wire.ErrPaymentProcessingError, "internal error")
		return
	}

	h.settledTotal.WithLabelValues(strconv.Itoa(resp.Extensions.ZKCredential.Credential.Tier)).Inc()
	writeJSON(w, http.StatusOK, resp)
}

// Mux builds the facilitator's http.ServeMux.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/info", h.HandleInfo)
	mux.HandleFunc("/.well-known/zk-credential-keys", h.HandleJWKS)
	mux.HandleFunc("/settle", h.HandleSettle)
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	return mux
}
