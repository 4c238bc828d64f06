package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAllowIPEmptyAllowListPermitsAnyNonDenied(t *testing.T) {
	g, err := New("secret", nil, []string{"10.0.0.5"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !g.AllowIP("192.168.1.1:5555") {
		t.Fatal("expected an unlisted IP to be allowed when allow list is empty")
	}
	if g.AllowIP("10.0.0.5:1234") {
		t.Fatal("expected a denied IP to be rejected even with an empty allow list")
	}
}

func TestAllowIPDenyWinsOverAllow(t *testing.T) {
	g, err := New("secret", []string{"10.0.0.0/24"}, []string{"10.0.0.5"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if g.AllowIP("10.0.0.5:1234") {
		t.Fatal("expected deny list to win over a matching allow list entry")
	}
	if !g.AllowIP("10.0.0.6:1234") {
		t.Fatal("expected a different address in the allowed CIDR to pass")
	}
	if g.AllowIP("10.0.1.6:1234") {
		t.Fatal("expected an address outside the allow CIDR to be rejected")
	}
}

func TestAllowIPRejectsUnparseableHost(t *testing.T) {
	g, err := New("secret", nil, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if g.AllowIP("not-an-ip") {
		t.Fatal("expected an unparseable remote address to be rejected")
	}
}

func TestAuthenticateAcceptsValidTokenInAllowlist(t *testing.T) {
	g, err := New("secret", nil, nil, []string{"alice"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "alice"))

	sub, ok := g.Authenticate(req)
	if !ok || sub != "alice" {
		t.Fatalf("authenticate = (%q, %v), want (alice, true)", sub, ok)
	}
}

func TestAuthenticateRejectsSubjectOutsideAllowlist(t *testing.T) {
	g, err := New("secret", nil, nil, []string{"alice"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "mallory"))

	if _, ok := g.Authenticate(req); ok {
		t.Fatal("expected a subject outside the allowlist to be rejected")
	}
}

func TestAuthenticateRejectsBadSignature(t *testing.T) {
	g, err := New("secret", nil, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", "alice"))

	if _, ok := g.Authenticate(req); ok {
		t.Fatal("expected a token signed with the wrong secret to be rejected")
	}
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	g, err := New("secret", nil, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	if _, ok := g.Authenticate(req); ok {
		t.Fatal("expected a missing Authorization header to be rejected")
	}
}

func TestNewRejectsInvalidCIDR(t *testing.T) {
	if _, err := New("secret", []string{"not-an-ip-or-cidr"}, nil, nil); err == nil {
		t.Fatal("expected an invalid allow_ips entry to error")
	}
}
