// Package vod はセッションの録画リンクから再生方法を決定する。
package vod

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultInviteCode はMedal埋め込みURLに付与する招待コードの既定値。
const DefaultInviteCode = "cr-MSw2akUsNDg4MjU5MDk5"

// PlayerKind は再生方法の種別。
type PlayerKind string

const (
	// PlayerMedal はMedalのiframe埋め込み（または元リンクへのフォールバック）。
	PlayerMedal PlayerKind = "medal"
	// PlayerGeneric は汎用プレイヤーにリンクをそのまま渡す。
	PlayerGeneric PlayerKind = "generic"
	// PlayerNone は録画なし。
	PlayerNone PlayerKind = "none"
)

// Player はクライアントに返す再生情報。
// Medalリンクで埋め込みURLを導出できない場合、EmbedURLは空でLinkのみを持つ。
type Player struct {
	Kind     PlayerKind `json:"kind"`
	Link     string     `json:"link,omitempty"`
	EmbedURL string     `json:"embed_url,omitempty"`
}

var clipIDPattern = regexp.MustCompile(`clips/([a-zA-Z0-9]+)`)

// IsMedal はリンクがMedalの動画かを判定する。
func IsMedal(link string) bool {
	return strings.Contains(link, "medal.tv")
}

// MedalEmbedURL はMedalリンクから埋め込みURLを導出する。
// 既に埋め込み形式（medal.tv/games/.../clip/...）のリンクはそのまま返す。
// "clips/<id>" 形式の場合は埋め込み形式へ変換する。
// どちらにも当てはまらない場合はfalseを返す。
func MedalEmbedURL(link, inviteCode string) (string, bool) {
	if !IsMedal(link) {
		return "", false
	}
	if strings.Contains(link, "medal.tv/games/") && strings.Contains(link, "/clip/") {
		return link, true
	}

	m := clipIDPattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	if inviteCode == "" {
		inviteCode = DefaultInviteCode
	}
	return fmt.Sprintf("https://medal.tv/games/valorant/clip/%s?invite=%s", m[1], inviteCode), true
}

// Resolve はリンクから再生情報を決定する。
func Resolve(link, inviteCode string) Player {
	link = strings.TrimSpace(link)
	if link == "" {
		return Player{Kind: PlayerNone}
	}
	if !IsMedal(link) {
		return Player{Kind: PlayerGeneric, Link: link}
	}

	embed, _ := MedalEmbedURL(link, inviteCode)
	return Player{Kind: PlayerMedal, Link: link, EmbedURL: embed}
}
