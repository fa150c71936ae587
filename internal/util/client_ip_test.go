package util

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func mustTrusted(t *testing.T, entries ...string) *TrustedProxies {
	t.Helper()
	trusted, err := NewTrustedProxies(entries)
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}
	return trusted
}

func TestTrustedProxiesContains(t *testing.T) {
	trusted := mustTrusted(t, "10.1.2.3/8", "2001:db8::/32", " 192.168.1.10 ")

	cases := []struct {
		addr string
		want bool
	}{
		{"10.200.0.1", true},
		{"11.0.0.1", false},
		{"192.168.1.10", true},
		{"192.168.1.11", false},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
		{"::ffff:10.0.0.1", true},
	}
	for _, tc := range cases {
		if got := trusted.Contains(netip.MustParseAddr(tc.addr)); got != tc.want {
			t.Fatalf("Contains(%s) = %v, want %v", tc.addr, got, tc.want)
		}
	}
	if trusted.Contains(netip.Addr{}) {
		t.Fatalf("zero addr should never be trusted")
	}
	var none *TrustedProxies
	if none.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatalf("nil set should trust nothing")
	}
}

func TestNewTrustedProxiesInput(t *testing.T) {
	for _, bad := range []string{"10.0.0.0/33", "not-an-ip", "300.1.1.1"} {
		if _, err := NewTrustedProxies([]string{bad}); err == nil {
			t.Fatalf("entry %q: expected parse error", bad)
		}
	}
	if empty, err := NewTrustedProxies([]string{" ", ""}); err != nil || empty != nil {
		t.Fatalf("blank entries = %v, %v; want nil, nil", empty, err)
	}
}

func TestClientIPResolution(t *testing.T) {
	trusted := mustTrusted(t, "10.0.0.0/8", "2001:db8::/32")

	cases := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		want       string
	}{
		{name: "untrusted peer ignores headers", remoteAddr: "198.51.100.10:1234", xff: "203.0.113.5", xrip: "203.0.113.6", want: "198.51.100.10"},
		{name: "peer without port", remoteAddr: "198.51.100.4", want: "198.51.100.4"},
		{name: "unparseable peer returned trimmed", remoteAddr: " pipe ", want: "pipe"},
		{name: "ipv6 peer untrusted", remoteAddr: "[2001:db9::5]:8080", xff: "203.0.113.5", want: "2001:db9::5"},
		{name: "ipv6 trusted proxy forwards", remoteAddr: "[2001:db8::1]:443", xff: "203.0.113.5", want: "203.0.113.5"},
		{name: "spoofed leftmost hop ignored", remoteAddr: "10.0.0.20:1", xff: "1.1.1.1, 203.0.113.5", want: "203.0.113.5"},
		{name: "junk hops skipped", remoteAddr: "10.0.0.20:1", xff: "203.0.113.5, junk, 10.0.0.10", want: "203.0.113.5"},
		{name: "all hops trusted returns leftmost", remoteAddr: "10.0.0.20:1", xff: "10.0.0.5", want: "10.0.0.5"},
		{name: "mapped peer and hop unmapped", remoteAddr: "[::ffff:10.0.0.1]:443", xff: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "real ip when chain unusable", remoteAddr: "10.0.0.20:1", xff: "junk", xrip: "::ffff:203.0.113.7", want: "203.0.113.7"},
		{name: "no headers returns trusted peer", remoteAddr: "10.0.0.20:1", want: "10.0.0.20"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "http://example.com/posts", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}
