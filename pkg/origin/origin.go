// Package origin derives the canonical, server-side origin id bound into
// every proof: a hash of the request's "scheme://host[:port]/path" after a
// fixed normalization. Client and server MUST derive origin ids the same
// way or a proof's origin binding silently fails to match.
package origin

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/x402zk/credential-gateway/pkg/field"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Canonicalize lowercases scheme and host, elides the scheme's default port,
// strips a single trailing slash (except for the root path), and drops the
// query string entirely. Path case is preserved.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("origin: parse url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && port == defaultPorts[scheme] {
		port = ""
	}

	hostport := host
	if port != "" {
		hostport = host + ":" + port
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	return scheme + "://" + hostport + path, nil
}

// ID returns the canonical origin id: stringToField(Canonicalize(rawURL)).
func ID(rawURL string) (field.Element, error) {
	canon, err := Canonicalize(rawURL)
	if err != nil {
		return field.Element{}, err
	}
	return field.StringToField(canon), nil
}
