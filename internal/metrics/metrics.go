// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/coachdesk/internal/model"
)

// 変更操作の結果ラベル
const (
	OutcomeSuccess            = "success"
	OutcomeIgnored            = "ignored"
	OutcomeNotFound           = "not_found"
	OutcomeValidationFailed   = "validation_failed"
	OutcomeForbidden          = "forbidden"
	OutcomePersistenceFailure = "persistence_failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordMutation(operation, outcome string, duration time.Duration)
	RecordRevalidation(notModified bool)
	RecordHTTPStatus(statusCode int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	mutations       *prometheus.CounterVec
	mutationLatency *prometheus.HistogramVec
	revalidations   *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachdesk_mutations_total",
			Help: "変更操作の実行回数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		mutationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coachdesk_mutation_duration_seconds",
			Help:    "変更操作の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		revalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachdesk_view_revalidations_total",
			Help: "If-None-Matchによる画面データ再検証の回数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coachdesk_auth_sessions_cleaned_total",
			Help: "削除された期限切れログインセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.mutations,
		c.mutationLatency,
		c.revalidations,
		c.httpStatus,
		c.sessionsCleaned,
	)

	return c
}

// RecordMutation は変更操作の結果と処理時間を記録する。
func (c *Collector) RecordMutation(operation, outcome string, duration time.Duration) {
	c.mutations.WithLabelValues(operation, outcome).Inc()
	c.mutationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRevalidation は画面データの再検証を記録する。
// notModifiedは304を返したかどうか。
func (c *Collector) RecordRevalidation(notModified bool) {
	result := "modified"
	if notModified {
		result = "not_modified"
	}
	c.revalidations.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordMutation(string, string, time.Duration) {}
func (Nop) RecordRevalidation(bool)                      {}
func (Nop) RecordHTTPStatus(int)                         {}
func (Nop) RecordSessionsCleaned(int64)                  {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// OutcomeOf は変更操作のエラーを結果ラベルに変換する。
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return OutcomePersistenceFailure
	}
	switch {
	case apiErr.IsNotFound():
		return OutcomeNotFound
	case apiErr.Code == model.ErrCodeValidationFailed:
		return OutcomeValidationFailed
	case apiErr.Code == model.ErrCodeForbidden:
		return OutcomeForbidden
	default:
		return OutcomePersistenceFailure
	}
}
