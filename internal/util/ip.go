package util

import "net"

// IsLoopbackHostname reports whether a hostname (as returned by
// url.URL.Hostname, without port) is localhost or a loopback address.
// Loopback redirect URIs may use plain http per RFC 8252 section 7.3.
func IsLoopbackHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}

	// url.Hostname strips brackets from IPv6 literals, but accept both forms
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		hostname = hostname[1 : len(hostname)-1]
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
