// Package origin validates browser Origin headers against the service's
// allow-list.
package origin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Wildcard in an allow-list accepts every well-formed origin.
const Wildcard = "*"

// Null is the opaque origin sent by sandboxed frames and file:// pages.
const Null = "null"

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port], default ports
// dropped) and the host[:port] part used for same-host comparisons. "null" is
// accepted and returned with an empty host.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == Null {
		return Null, "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = normalizeAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// ParseList parses a comma-separated allow-list. Entries are normalized;
// "*" and "null" are kept verbatim. Duplicates are dropped.
func ParseList(raw string) ([]string, error) {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		switch entry {
		case "":
			continue
		case Wildcard:
			out = append(out, entry)
			continue
		}

		normalized, _, ok := NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalized)
	}
	return lo.Uniq(out), nil
}

// Policy decides which browser origins may reach the service.
type Policy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewPolicy builds a policy from normalized allow-list entries. An empty
// list restricts browsers to the host they are talking to.
func NewPolicy(allowedOrigins []string) Policy {
	return Policy{
		allowAll: lo.Contains(allowedOrigins, Wildcard),
		allowed:  lo.Keyify(allowedOrigins),
	}
}

// AllowsAny reports whether the policy accepts every origin.
func (p Policy) AllowsAny() bool { return p.allowAll }

// Check normalizes originHeader and reports whether it may access
// requestHost. The normalized value is returned for echoing in CORS
// headers.
func (p Policy) Check(originHeader, requestHost string) (normalized string, ok bool) {
	normalized, host, valid := NormalizeHeader(originHeader)
	if !valid {
		return "", false
	}
	return normalized, p.allows(normalized, host, requestHost)
}

func (p Policy) allows(normalizedOrigin, originHost, requestHost string) bool {
	if p.allowAll {
		return true
	}
	if len(p.allowed) > 0 {
		_, ok := p.allowed[normalizedOrigin]
		return ok
	}

	// Same host:port only. Scheme is ignored since a TLS-terminating proxy
	// may forward the request as plain HTTP.
	var scheme string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		return false
	}
	reqHost, ok := normalizeAuthority(strings.TrimSpace(requestHost), scheme)
	return ok && reqHost == originHost
}

// normalizeAuthority lower-cases host[:port], validates the port, brackets
// IPv6 literals and drops the scheme's default port.
func normalizeAuthority(authority, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}
	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits host[:port]. IPv6 hostnames come back unbracketed;
// the port is not validated.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		hostname, port, _ = strings.Cut(rawHost, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		// Unbracketed IPv6 literals are not valid in an authority.
		return "", "", false
	}
}
