// Package auth implements the three gates spec.md §6 puts in front of
// a client session: an IP allow/deny list, a JWT bearer token, and a
// per-user allowlist of the token's subject claim. The bearer-token
// extraction (Authorization: Bearer <token>, checked with a
// constant-time comparison of the raw bytes before we even bother
// parsing it) is grounded on
// C360Studio-semstreams/input/websocket's authenticateRequest; token
// verification itself uses github.com/golang-jwt/jwt/v5, the standard
// ecosystem JWT library, since nothing in the retrieved pack imports
// one.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Gate holds the configured secret, IP rules, and user allowlist for
// one daemon instance.
type Gate struct {
	secret     []byte
	allowedIPs []*net.IPNet
	deniedIPs  []*net.IPNet
	users      map[string]bool // empty means "any authenticated subject"
}

// New builds a Gate. allowedCIDRs/deniedCIDRs entries that fail to
// parse as CIDR are treated as a single host and widened to a /32
// (or /128) so operators can list bare IPs in config.yaml.
func New(secret string, allowedCIDRs, deniedCIDRs, users []string) (*Gate, error) {
	g := &Gate{secret: []byte(secret), users: make(map[string]bool, len(users))}
	for _, u := range users {
		g.users[u] = true
	}

	var err error
	if g.allowedIPs, err = parseNets(allowedCIDRs); err != nil {
		return nil, fmt.Errorf("allowed_ips: %w", err)
	}
	if g.deniedIPs, err = parseNets(deniedCIDRs); err != nil {
		return nil, fmt.Errorf("denied_ips: %w", err)
	}
	return g, nil
}

func parseNets(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP or CIDR %q", e)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// AllowIP reports whether remoteAddr (host:port, as seen from
// http.Request.RemoteAddr) is permitted. A configured deny list wins
// over an allow list; an empty allow list permits everything not
// denied.
func (g *Gate) AllowIP(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range g.deniedIPs {
		if n.Contains(ip) {
			return false
		}
	}
	if len(g.allowedIPs) == 0 {
		return true
	}
	for _, n := range g.allowedIPs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Authenticate extracts and validates the bearer token from an
// incoming HTTP request (the WebSocket upgrade request), returning the
// token's subject claim. It fails closed: a missing header, a
// malformed token, a bad signature, or a subject outside the
// configured allowlist are all rejected identically.
func (g *Gate) Authenticate(r *http.Request) (subject string, ok bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || subtle.ConstantTimeCompare([]byte(header[:len(prefix)]), []byte(prefix)) != 1 {
		return "", false
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, isHMAC := t.Method.(*jwt.SigningMethodHMAC); !isHMAC {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", false
	}
	if len(g.users) > 0 && !g.users[sub] {
		return "", false
	}
	return sub, true
}
