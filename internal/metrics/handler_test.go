package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return w.Code, string(body)
}

// ワーカーの/metricsには削除件数が出る
func TestSetupMetricsRoute_ExposesPurgeCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSignupsPurged(3)

	status, body := scrape(t, SetupMetricsRoute(reg), "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "teeup_signups_purged_total 3") {
		t.Errorf("body should report 3 purged signups:\n%s", body)
	}
}

func TestSetupMetricsRoute_OnlyServesMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	if status, _ := scrape(t, SetupMetricsRoute(reg), "/signups"); status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestHandler_ReportsRejectionReasons(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSignupRejected("full")
	c.RecordSignupRejected("full")
	c.RecordSignupDeleted(true)

	_, body := scrape(t, Handler(reg), "/")
	if !strings.Contains(body, `teeup_signup_rejected_total{reason="full"} 2`) {
		t.Errorf("missing rejection count:\n%s", body)
	}
	if !strings.Contains(body, `teeup_signup_deleted_total{already_absent="true"} 1`) {
		t.Errorf("missing delete count:\n%s", body)
	}
}
