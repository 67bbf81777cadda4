package logx

import "testing"

func TestAnonymizeIP(t *testing.T) {
	tests := map[string]string{
		"203.0.113.57:4242":         "203.0.113.0",
		"198.51.100.9":              "198.51.100.0",
		"[2001:db8:1:2:3:4:5:6]:80": "2001:db8:1:2::",
		"127.0.0.1:9000":            "127.0.0.1",
		"not-an-ip":                 "unknown_ip",
	}

	for in, want := range tests {
		if got := anonymizeIP(in); got != want {
			t.Errorf("anonymizeIP(%q) = %q, want %q", in, got, want)
		}
	}
}
