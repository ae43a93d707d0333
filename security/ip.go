package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP from a request. With trustProxy set it
// consults X-Forwarded-For and X-Real-IP; trustedProxyCount says how many
// rightmost entries of X-Forwarded-For were appended by proxies we control,
// which is what stops header spoofing in multi-proxy setups.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipFromForwardedFor picks the client entry out of an X-Forwarded-For list.
// The header reads "client, proxy1, proxy2, ..." with our own proxies
// rightmost, so the client sits at len-trusted-1. A short list falls back to
// the leftmost entry.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	if trustedProxyCount < 1 {
		trustedProxyCount = 1
	}
	idx := len(ips) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}

	candidate := strings.TrimSpace(ips[idx])
	if net.ParseIP(candidate) != nil {
		return candidate
	}
	return ""
}
