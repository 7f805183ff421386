package vod

import "testing"

// TestIsMedal はMedalリンクの判定を検証する。
func TestIsMedal(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"https://medal.tv/clips/abc123", true},
		{"https://medal.tv/games/valorant/clip/xyz", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsMedal(tt.link); got != tt.want {
			t.Errorf("IsMedal(%q) = %v, want %v", tt.link, got, tt.want)
		}
	}
}

// TestMedalEmbedURL は埋め込みURLの導出規則を検証する。
func TestMedalEmbedURL(t *testing.T) {
	tests := []struct {
		name   string
		link   string
		invite string
		want   string
		wantOK bool
	}{
		{
			name:   "埋め込み形式はそのまま",
			link:   "https://medal.tv/games/valorant/clip/jKz1?invite=abc",
			want:   "https://medal.tv/games/valorant/clip/jKz1?invite=abc",
			wantOK: true,
		},
		{
			name:   "clips形式を変換",
			link:   "https://medal.tv/clips/abc123",
			invite: "cr-test",
			want:   "https://medal.tv/games/valorant/clip/abc123?invite=cr-test",
			wantOK: true,
		},
		{
			name:   "招待コード省略時は既定値",
			link:   "https://medal.tv/clips/Q9w8/vpx",
			want:   "https://medal.tv/games/valorant/clip/Q9w8?invite=" + DefaultInviteCode,
			wantOK: true,
		},
		{
			name: "クリップIDなし",
			link: "https://medal.tv/users/someone",
		},
		{
			name: "Medal以外",
			link: "https://example.com/clips/abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MedalEmbedURL(tt.link, tt.invite)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("MedalEmbedURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestResolve は再生情報の種別判定を検証する。
func TestResolve(t *testing.T) {
	if p := Resolve("", ""); p.Kind != PlayerNone {
		t.Errorf("empty link kind = %q, want none", p.Kind)
	}
	if p := Resolve("https://cdn.example.com/vod.mp4", ""); p.Kind != PlayerGeneric || p.Link != "https://cdn.example.com/vod.mp4" {
		t.Errorf("generic player = %+v", p)
	}

	p := Resolve("https://medal.tv/clips/abc123", "cr-x")
	if p.Kind != PlayerMedal {
		t.Fatalf("kind = %q, want medal", p.Kind)
	}
	if p.EmbedURL != "https://medal.tv/games/valorant/clip/abc123?invite=cr-x" {
		t.Errorf("EmbedURL = %q", p.EmbedURL)
	}

	fallback := Resolve("https://medal.tv/users/someone", "")
	if fallback.Kind != PlayerMedal || fallback.EmbedURL != "" || fallback.Link == "" {
		t.Errorf("medal fallback = %+v", fallback)
	}
}
