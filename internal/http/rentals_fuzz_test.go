package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func FuzzParseIntQuery(f *testing.F) {
	seeds := []string{
		"limit=10&offset=0",
		"limit=abc",
		"offset=-5",
		"limit=99999999999999999999",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		req := httptest.NewRequest(http.MethodGet, "/api/rentals", nil)
		req.URL.RawQuery = raw
		v, err := parseIntQuery(req, "limit", 100)
		if err != nil && v != 0 {
			t.Fatalf("expected zero value on error, got %d", v)
		}
	})
}

func FuzzCreateRentalBody(f *testing.F) {
	seeds := []string{
		`{"customer_id":1,"film_id":1,"staff_id":1}`,
		`{"customer_id":0}`,
		`{"customer_id":`,
		`[]`,
		``,
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	srv, _, _ := newFakeServer(f)
	f.Fuzz(func(t *testing.T, body string) {
		req := httptest.NewRequest(http.MethodPost, "/api/rentals", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code >= http.StatusInternalServerError {
			t.Fatalf("unexpected status %d for body %q", rec.Code, body)
		}
	})
}
