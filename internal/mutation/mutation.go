// Package mutation は変更操作に共通する計測とエラー変換を提供する。
package mutation

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/coachdesk/internal/metrics"
	"github.com/hitoshi/coachdesk/internal/model"
)

// Tracker は変更操作の結果をメトリクスとログに記録する。
type Tracker struct {
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewTracker はTrackerを生成する。collectorがnilの場合は記録しない。
func NewTracker(collector metrics.MetricsCollector, logger *slog.Logger) *Tracker {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{metrics: collector, logger: logger}
}

// Op は実行中の1回の変更操作。
type Op struct {
	tracker *Tracker
	name    string
	start   time.Time
	ignored bool
}

// Begin は操作nameの計測を開始する。nameはメトリクスのラベルにも使う（例: "toggle_task"）。
func (t *Tracker) Begin(name string) *Op {
	return &Op{tracker: t, name: name, start: time.Now()}
}

// Ignore は入力が空のため何もしなかったことを記録する。
func (o *Op) Ignore() {
	o.ignored = true
}

// End は操作の結果を記録する。deferで呼び出すことを想定する。
func (o *Op) End(err error) {
	outcome := metrics.OutcomeOf(err)
	if err == nil && o.ignored {
		outcome = metrics.OutcomeIgnored
	}
	o.tracker.metrics.RecordMutation(o.name, outcome, time.Since(o.start))
}

// Persistence はインフラ層のエラーをログに残し、利用者向けのPERSISTENCE_FAILUREに変換する。
func (o *Op) Persistence(err error) error {
	o.tracker.logger.Error("変更操作の永続化に失敗しました",
		slog.String("operation", o.name),
		slog.String("error", err.Error()),
	)
	return model.NewPersistenceError(strings.ReplaceAll(o.name, "_", " "))
}
