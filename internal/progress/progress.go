// Package progress はタスク集合から進捗を導出する。
// 進捗は保存せず、読み取りのたびに再計算する。
package progress

import (
	"math"

	"github.com/hitoshi/coachdesk/internal/model"
)

// Progress はロードマップの進捗を表す。
type Progress struct {
	Completed int
	Total     int
	Percent   int // 0-100
}

// Compute はタスク集合の完了数・総数・達成率を返す。
// 達成率は四捨五入（0.5は切り上げ）し、総数0のときは0とする。
func Compute(tasks []model.Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.IsCompleted {
			p.Completed++
		}
	}
	p.Percent = Percent(p.Completed, p.Total)
	return p
}

// Percent は完了数と総数から達成率を求める。
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
