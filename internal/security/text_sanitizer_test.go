package security

import "testing"

// TestTextSanitizer_Sanitize はタグ除去とエンティティ復元を検証する。
func TestTextSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキストはそのまま", "Watch your crosshair placement", "Watch your crosshair placement"},
		{"タグは除去される", "Hold <b>A main</b> longer", "Hold A main longer"},
		{"scriptは中身ごと除去", "ok<script>alert(1)</script>", "ok"},
		{"アンパサンドは元に戻る", "smokes & flashes", "smokes & flashes"},
		{"不等号は元に戻る", "util < aim", "util < aim"},
		{"前後の空白を除去", "  why peek here?  ", "why peek here?"},
		{"イベント属性付きタグ", `<img src=x onerror="alert(1)">rotate`, "rotate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestTextSanitizer_Idempotent は2回適用しても結果が変わらないことを検証する。
func TestTextSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	inputs := []string{
		"Hold <b>A main</b>",
		"smokes & flashes",
		"<p>line</p>",
	}
	for _, in := range inputs {
		once := sanitizer.Sanitize(in)
		twice := sanitizer.Sanitize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

var _ TextSanitizer = (*textSanitizer)(nil)
