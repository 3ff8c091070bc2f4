package httputil

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/contextkeys"
)

// TrustedProxies is the set of reverse proxies allowed to report the client
// address through X-Forwarded-For or X-Real-IP
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses CIDRs or bare IP addresses
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			tp.prefixes = append(tp.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		addr = addr.Unmap()
		tp.prefixes = append(tp.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return tp, nil
}

// Contains reports whether ip belongs to a trusted proxy
func (tp *TrustedProxies) Contains(ip string) bool {
	if tp == nil || len(tp.prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for r. Forwarding headers are only
// consulted when the socket peer is a trusted proxy. X-Forwarded-For is
// walked from the right and the first hop that is not a trusted proxy wins.
func (tp *TrustedProxies) Resolve(r *http.Request) string {
	peer := remoteHost(r)
	if !tp.Contains(peer) {
		return peer
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				// a garbled hop ends the chain we can vouch for
				break
			}
			if !tp.Contains(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if _, err := netip.ParseAddr(realIP); err == nil {
			return realIP
		}
	}
	return peer
}

// ClientIPMiddleware resolves the client address once per request and
// stores it for ClientIP
func ClientIPMiddleware(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.Resolve(r)
			next.ServeHTTP(w, r.WithContext(contextkeys.WithClientIP(r.Context(), ip)))
		})
	}
}
