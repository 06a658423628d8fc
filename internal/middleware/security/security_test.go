package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d, err := NewDetector()
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct public peer ignores headers", "203.0.113.9:5000", "198.51.100.1", "", "203.0.113.9"},
		{"trusted proxy forwards first hop", "10.0.0.2:5000", "198.51.100.1, 10.0.0.3", "", "198.51.100.1"},
		{"trusted proxy with real ip", "127.0.0.1:5000", "", "198.51.100.7", "198.51.100.7"},
		{"trusted proxy with garbage header", "192.168.1.1:5000", "not-an-ip", "", "192.168.1.1"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromTrustedProxy(t *testing.T) {
	d, err := NewDetector("203.0.113.0/24")
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	r.RemoteAddr = "203.0.113.4:1234"
	if !d.FromTrustedProxy(r) {
		t.Error("extra CIDR should be trusted")
	}
	r.RemoteAddr = "198.51.100.4:1234"
	if d.FromTrustedProxy(r) {
		t.Error("public peer should not be trusted")
	}
	if got := d.GetMetrics().UntrustedIdentity; got != 1 {
		t.Errorf("UntrustedIdentity = %d, want 1", got)
	}

	if _, err := NewDetector("not-a-cidr"); err == nil {
		t.Error("NewDetector() should reject an invalid CIDR")
	}
}

func TestMustNewDetector(t *testing.T) {
	if d := MustNewDetector("203.0.113.0/24"); d == nil {
		t.Fatal("MustNewDetector() returned nil")
	}
	defer func() {
		if recover() == nil {
			t.Error("MustNewDetector() should panic on an invalid CIDR")
		}
	}()
	MustNewDetector("not-a-cidr")
}

func TestDetector_Middleware(t *testing.T) {
	d := MustNewDetector()
	h := d.Middleware(d.ExtractClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method, target, agent string
		want                  int
		suspicious            bool
	}{
		{http.MethodGet, "/api/v1/budgets", "casa-app/1.0", http.StatusNoContent, false},
		{http.MethodGet, "/.env", "", http.StatusNoContent, true},
		{http.MethodGet, "/api/v1/budgets", "sqlmap/1.7", http.StatusNoContent, true},
		{"TRACE", "/", "", http.StatusMethodNotAllowed, true},
	}
	for _, tt := range tests {
		before := d.GetMetrics().SuspiciousRequests
		r := httptest.NewRequest(tt.method, tt.target, nil)
		r.Header.Set("User-Agent", tt.agent)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
		}
		if flagged := d.GetMetrics().SuspiciousRequests > before; flagged != tt.suspicious {
			t.Errorf("%s %s (%s): flagged = %v, want %v", tt.method, tt.target, tt.agent, flagged, tt.suspicious)
		}
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing %s", name)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}
