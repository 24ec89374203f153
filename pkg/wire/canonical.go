// Canonical JSON hashing for wire envelopes, adapted from the teacher
// repo's RFC8785-like commitment package: deterministic key order so a
// settlement request or presentation envelope hashes the same way on every
// call site. No package in this module calls it; request correlation ids
// come from uuid. It hashes whatever value it is given.
package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalizeJSON returns raw's bytes with map keys sorted for a stable
// encoding; array order is preserved.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// HashCanonical canonically encodes v and returns the hex-encoded SHA-256
// digest, for request tracing — not a commitment-to-payment record.
func HashCanonical(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
