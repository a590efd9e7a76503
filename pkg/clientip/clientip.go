// Package clientip resolves the address of the client behind an HTTP request.
//
// Forwarding headers are only honoured when the direct peer is a trusted
// proxy. Without trusted proxies the TCP peer address is used as is.
package clientip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Headers checked, in order, when the peer is trusted.
var Headers = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// Resolver extracts client addresses.
type Resolver struct {
	trusted []netip.Prefix
}

// New creates a Resolver trusting forwarding headers from the given CIDR
// prefixes or single addresses. Invalid entries are skipped.
func New(trustedProxies ...string) *Resolver {
	r := &Resolver{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			r.trusted = append(r.trusted, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(raw); err == nil {
			r.trusted = append(r.trusted, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return r
}

// FromRequest returns the normalized client address, or "" when none is valid.
func (r *Resolver) FromRequest(req *http.Request) string {
	peer := parse(hostOnly(req.RemoteAddr))
	if !peer.IsValid() {
		return ""
	}
	if !r.isTrusted(peer) {
		return peer.String()
	}

	for _, h := range Headers {
		value := req.Header.Get(h)
		if value == "" {
			continue
		}
		// The first valid X-Forwarded-For entry is the originating client.
		for part := range strings.SplitSeq(value, ",") {
			if a := parse(part); a.IsValid() {
				return a.String()
			}
		}
	}
	return peer.String()
}

func (r *Resolver) isTrusted(a netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Middleware stores the client address in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := WithContext(req.Context(), r.FromRequest(req))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

type contextKey struct{}

// WithContext returns ctx carrying ip.
func WithContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

// FromContext returns the address stored by Middleware.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func parse(raw string) netip.Addr {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	a, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap().WithZone("")
}
