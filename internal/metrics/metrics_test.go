package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/coachdesk/internal/model"
)

// findMetric は収集結果から名前とラベルが一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestRecordMutation_CountsByOperationAndOutcome は操作・結果別に集計されることを検証する。
func TestRecordMutation_CountsByOperationAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMutation("toggle_task", OutcomeSuccess, 10*time.Millisecond)
	c.RecordMutation("toggle_task", OutcomeSuccess, 20*time.Millisecond)
	c.RecordMutation("toggle_task", OutcomeNotFound, time.Millisecond)

	m := findMetric(t, reg, "coachdesk_mutations_total", map[string]string{"operation": "toggle_task", "outcome": "success"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("success count = %v, want 2", v)
	}
	m = findMetric(t, reg, "coachdesk_mutations_total", map[string]string{"operation": "toggle_task", "outcome": "not_found"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("not_found count = %v, want 1", v)
	}

	h := findMetric(t, reg, "coachdesk_mutation_duration_seconds", map[string]string{"operation": "toggle_task"})
	if n := h.GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("histogram sample count = %d, want 3", n)
	}
}

// TestRecordRevalidation は304とそれ以外が区別されることを検証する。
func TestRecordRevalidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRevalidation(true)
	c.RecordRevalidation(true)
	c.RecordRevalidation(false)

	m := findMetric(t, reg, "coachdesk_view_revalidations_total", map[string]string{"result": "not_modified"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("not_modified = %v, want 2", v)
	}
}

// TestRecordHTTPStatus はステータスコード別に集計されることを検証する。
func TestRecordHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordHTTPStatus(200)

	m := findMetric(t, reg, "coachdesk_http_status_total", map[string]string{"status_code": "200"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("200 count = %v, want 2", v)
	}
}

// TestRecordSessionsCleaned は削除件数が加算されることを検証する。
func TestRecordSessionsCleaned(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsCleaned(3)
	c.RecordSessionsCleaned(0)

	m := findMetric(t, reg, "coachdesk_auth_sessions_cleaned_total", nil)
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("cleaned = %v, want 3", v)
	}
}

// TestHandler_ServesMetrics はハンドラーがテキスト形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordMutation("create_roadmap", OutcomeSuccess, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `coachdesk_mutations_total{operation="create_roadmap",outcome="success"} 1`) {
		t.Errorf("unexpected body:\n%s", body)
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}

// TestOutcomeOf はエラー種別から結果ラベルへの変換を検証する。
func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"成功", nil, OutcomeSuccess},
		{"対象なし", model.NewTaskNotFoundError("t1"), OutcomeNotFound},
		{"検証失敗", model.NewValidationError("title cannot be blank"), OutcomeValidationFailed},
		{"アクセス拒否", model.NewForbiddenError("/student/dashboard"), OutcomeForbidden},
		{"永続化失敗", model.NewPersistenceError("toggle task"), OutcomePersistenceFailure},
		{"想定外のエラー", errors.New("boom"), OutcomePersistenceFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeOf(tt.err); got != tt.want {
				t.Errorf("OutcomeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
