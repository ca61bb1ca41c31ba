package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	applog "valuta/internal/log"
	"valuta/internal/metrics"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf, Format: "json"})
	m := metrics.New(prometheus.NewRegistry())
	mw := NewMiddleware(func(*http.Request) string { return "198.51.100.1" }, logger, m)

	var seen string
	h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		applog.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":"`+seen+`"`) {
		t.Errorf("handler log missing request id: %s", out)
	}
	if !strings.Contains(out, `"status_code":418`) {
		t.Errorf("completion log missing status: %s", out)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "418")); got != 1 {
		t.Errorf("http requests metric = %v, want 1", got)
	}
}

func TestRequestIDFrom(t *testing.T) {
	valid := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, valid)
	if got := RequestIDFrom(r); got != valid {
		t.Errorf("RequestIDFrom() = %q, want incoming %q", got, valid)
	}

	r.Header.Set(RequestIDHeader, "<script>")
	if got := RequestIDFrom(r); got == "<script>" {
		t.Error("RequestIDFrom() must not echo malformed IDs")
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
