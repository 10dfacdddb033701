package security

import (
	"html"
	"net/url"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizer はユーザーが入力またはIdPから受け取ったプロフィール値を
// 保存前に無害化するインターフェースを定義する。
type ProfileSanitizer interface {
	// SanitizeName は表示名からHTMLタグと制御文字を除去し、前後の空白を取り除く。
	// script, styleタグは内容ごと除去される。
	SanitizeName(raw string) string

	// SanitizePhotoURL はプロフィール画像URLを検証し、安全な場合のみ正規化したURLを返す。
	// httpsかつSSRFガードを通過しないURLは空文字列になる。
	SanitizePhotoURL(raw string) string
}

// profileSanitizer はProfileSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type profileSanitizer struct {
	policy *bluemonday.Policy
	guard  SSRFGuardService
}

// NewProfileSanitizer はProfileSanitizerの新しいインスタンスを生成する。
// 表示名はプレーンテキストとして保持するため、全タグを拒否するStrictPolicyを使用する。
func NewProfileSanitizer(guard SSRFGuardService) *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
		guard:  guard,
	}
}

// SanitizeName は表示名を無害化する。
// StrictPolicyの出力はHTMLエスケープ済みのため、保存用にアンエスケープする。
// 表示時のエスケープはテンプレート側で行う。
func (s *profileSanitizer) SanitizeName(raw string) string {
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
	return strings.TrimSpace(cleaned)
}

// SanitizePhotoURL はプロフィール画像URLを検証する。
func (s *profileSanitizer) SanitizePhotoURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if err := s.guard.ValidateURL(raw); err != nil {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.String()
}

// compile-time interface check
var _ ProfileSanitizer = (*profileSanitizer)(nil)
