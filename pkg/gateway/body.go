package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/x402zk/credential-gateway/pkg/wire"
)

// requestBody is the decoded, discriminated body of a protected request
// (§4.4's three-branch dispatch).
type requestBody struct {
	raw wire.RequestBody
}

func (b requestBody) hasPayment() bool {
	return b.raw.Payment != nil
}

func (b requestBody) hasPresentation() bool {
	return b.raw.ZKCredential != nil
}

func (b requestBody) commitment() string {
	if b.raw.Extensions == nil || b.raw.Extensions.ZKCredential == nil {
		return ""
	}
	return b.raw.Extensions.ZKCredential.Commitment
}

// readBody reads and decodes the request body. An empty body (no bytes at
// all) is treated as "neither branch" — the discovery challenge — rather
// than a decode error, since a bare GET has no body.
func (m *Middleware) readBody(w http.ResponseWriter, r *http.Request) (requestBody, bool) {
	if r.Body == nil {
		return requestBody{}, true
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, wire.ErrCredentialMissing, "failed to read request body")
		return requestBody{}, false
	}
	if len(data) == 0 {
		return requestBody{}, true
	}

	var parsed wire.RequestBody
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&parsed); err != nil {
		// Malformed JSON on an otherwise payment/credential-bearing request
		// is surfaced via the 402 challenge, not a 400: the client may be
		// retrying a GET whose framework attached an empty/garbage body.
		return requestBody{}, true
	}
	return requestBody{raw: parsed}, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, kind wire.ErrorKind, message string) {
	writeJSON(w, wire.HTTPStatus(kind), wire.ErrorResponse{Error: kind, Message: message})
}
