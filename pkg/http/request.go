package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds the CIDR ranges of reverse proxies whose forwarding headers are trusted
type IPConfig struct {
	TrustedProxies []string
}

// ExtractClientIP returns the request origin recorded on sessions and audit rows.
// X-Forwarded-For and X-Real-IP are only honoured when the direct peer is a
// trusted proxy; otherwise the peer address is used.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)
	if config == nil || !inAnyCIDR(peer, config.TrustedProxies) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return peer
}

func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func inAnyCIDR(ip string, cidrs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// maxClientAgentLen bounds the stored User-Agent string
const maxClientAgentLen = 512

// ClientAgent returns the request's User-Agent, truncated for storage
func ClientAgent(r *http.Request) string {
	ua := strings.TrimSpace(r.Header.Get("User-Agent"))
	if len(ua) > maxClientAgentLen {
		return ua[:maxClientAgentLen]
	}
	return ua
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// It returns "" when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
