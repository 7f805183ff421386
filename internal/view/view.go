// Package view は生徒単位の画面データの鮮度管理を提供する。
//
// 変更操作のたびに生徒のview_versionを進め、読み取り系APIはその値と本文の指紋をETagとして返す。
// クライアントはIf-None-Matchで再検証し、変化がなければ304を受け取る。
// 世代の更新に失敗しても本文の指紋が変わるため、変更後のデータに304を返すことはない。
package view

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
)

// VersionBumper は世代番号を進めるインターフェース。
type VersionBumper interface {
	BumpViewVersion(ctx context.Context, studentID string) (int64, error)
}

// Refresher は変更後に生徒の画面データを古いものとして印を付ける。
type Refresher struct {
	bumper VersionBumper
	logger *slog.Logger
}

// NewRefresher はRefresherを生成する。
func NewRefresher(bumper VersionBumper, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{bumper: bumper, logger: logger}
}

// MarkStale は生徒studentIDの画面データの世代番号を進める。
// 変更自体は既に確定しているため、失敗はログに残すだけで呼び出し元には返さない。
func (r *Refresher) MarkStale(ctx context.Context, studentID string) {
	if r == nil || r.bumper == nil || studentID == "" {
		return
	}
	if _, err := r.bumper.BumpViewVersion(ctx, studentID); err != nil {
		r.logger.Warn("画面データの世代更新に失敗しました",
			slog.String("student_id", studentID),
			slog.String("error", err.Error()),
		)
	}
}

// ETag は対象、世代番号、レスポンス本文から弱いETagを組み立てる。
// scopeは同じ生徒の別リソース（ダッシュボード、セッション詳細など）を区別する。
func ETag(scope string, version int64, body []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(body)
	return fmt.Sprintf(`W/"%s-%s-%016x"`, scope, strconv.FormatInt(version, 10), h.Sum64())
}

// Matches はIf-None-Matchヘッダーの値がetagに一致するかを判定する。
// カンマ区切りの複数値と "*" に対応する。
func Matches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag || "W/"+candidate == etag {
			return true
		}
	}
	return false
}
