package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveActionIncrementsCounterAndHistogram(t *testing.T) {
	c := New()
	c.ObserveAction("Response", "success", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `dispatchd_actions_total{kind="Response",outcome="success"} 1`) {
		t.Errorf("expected actions_total sample in output, got:\n%s", body)
	}
	if !strings.Contains(body, "dispatchd_action_duration_seconds") {
		t.Errorf("expected action_duration_seconds histogram in output")
	}
}

func TestObserveProxyFallback(t *testing.T) {
	c := New()
	c.ObserveProxyFallback("exploratory", "timeout")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `dispatchd_proxy_fallback_total{mode="exploratory",outcome="timeout"} 1`) {
		t.Errorf("expected proxy_fallback_total sample in output, got:\n%s", body)
	}
}

func TestNewCollectorsAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.ObserveAction("Forward", "success", time.Millisecond)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "dispatchd_actions_total") {
		t.Errorf("expected b's registry to be unaffected by a's observation")
	}
}
