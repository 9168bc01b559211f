// Package sanitize holds input cleaning helpers shared by the HTTP handlers.
package sanitize

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxConversationIDLength = 100
	MaxMessageLength        = 10000
)

var (
	conversationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	suspiciousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)data:text/html`),
		regexp.MustCompile(`(?i)eval\s*\(`),
	}

	sensitivePatterns = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`), "sk-***"},
		{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`), "${1}***"},
		{regexp.MustCompile(`(?i)("?(?:password|secret|token|api_key)"?\s*[:=]\s*"?)[^"\s,}]+`), "${1}***"},
	}
)

// String drops control characters except newline, carriage return and tab,
// trims surrounding whitespace and caps the result at maxLen runes.
func String(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimSpace(cleaned)
	return Truncate(cleaned, maxLen, "")
}

// ConversationID reports whether id is an acceptable client conversation id.
func ConversationID(id string) bool {
	if id == "" || len(id) > MaxConversationIDLength {
		return false
	}
	return conversationIDPattern.MatchString(id)
}

// ContainsMarkup reports whether s carries script injection markers such as
// <script or javascript: URLs.
func ContainsMarkup(s string) bool {
	for _, re := range suspiciousPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Truncate shortens s to at most maxLen runes including suffix.
func Truncate(s string, maxLen int, suffix string) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	keep := maxLen - utf8.RuneCountInString(suffix)
	if keep <= 0 {
		return string([]rune(suffix)[:maxLen])
	}
	return string([]rune(s)[:keep]) + suffix
}

// MaskSensitive hides API keys, bearer tokens and password-like values so the
// text can be logged.
func MaskSensitive(s string) string {
	for _, p := range sensitivePatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

// ParseTrustedProxies reads a list of CIDR ranges or bare addresses.
func ParseTrustedProxies(list []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(list))
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// ClientIP returns the socket peer address. Forwarding headers are read only
// when the peer is one of the trusted proxies; X-Forwarded-For is walked from
// the right and the first untrusted hop wins.
func ClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := RemoteHost(r)
	if !isTrusted(peer, trusted) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return peer
}

// RemoteHost is r.RemoteAddr without the port.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	if len(trusted) == 0 {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
