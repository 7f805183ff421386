// Package timecode はノートのタイムスタンプ（VOD先頭からの秒数）と
// 表示用の "M:SS" 文字列を相互変換する。
//
// 入力の揺れでノートの並び順が壊れないよう、変換は決して失敗しない。
// 解析できない値や負の値は0として扱う。
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxSeconds は表現できる最大の合計秒数。notes.timestamp_seconds（INTEGER）に収まる値で飽和させる。
const MaxSeconds = math.MaxInt32

// Encode は分と秒から合計秒数を求める。
// 負の値は0に、MaxSecondsを超える値はMaxSecondsに丸める。
func Encode(minutes, seconds int) int {
	if minutes < 0 {
		minutes = 0
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= MaxSeconds || minutes > (MaxSeconds-seconds)/60 {
		return MaxSeconds
	}
	return minutes*60 + seconds
}

// Format は合計秒数を "M:SS" 形式に変換する。
// 分は先頭ゼロなし、秒は2桁ゼロ埋め。負の値は0として扱う。
func Format(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// Parse は "mins:secs" 形式の文字列を合計秒数に変換する。
// secsは省略可能で、欠落・非数値の場合は0とみなす。
// minsが欠落・非数値・負の場合も0とみなすため、エラーは返さない。
// "1:75" のように60以上の秒はそのまま加算する。結果はMaxSecondsで頭打ちになる。
func Parse(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	minsPart, secsPart, _ := strings.Cut(s, ":")
	return Encode(parseNonNegative(minsPart), parseNonNegative(secsPart))
}

// parseNonNegative は整数トークンを解析する。解析できない場合は0を返す。
// intに収まらない正の値はmath.MaxIntとして返し、Encodeで飽和させる。
func parseNonNegative(token string) int {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return n
	}
	if err != nil || n < 0 {
		return 0
	}
	return n
}
