// Package model はドメインモデルを定義する。
package model

import "time"

// AuthProvider はユーザーが認証に使用したプロバイダーを表す。
type AuthProvider string

const (
	// AuthProviderPassword はメールアドレスとパスワードによる認証。
	AuthProviderPassword AuthProvider = "password"
	// AuthProviderGoogle はGoogleアカウントによる認証。
	AuthProviderGoogle AuthProvider = "google"
)

// Identity はIdPが検証したユーザーのクレームを表す。
// リクエスト内で生成された後は変更しない。
type Identity struct {
	SubjectID     string // IdPが払い出す不変のユーザーID
	Email         string
	DisplayName   string // 任意
	EmailVerified bool
	AuthProvider  AuthProvider
	PictureURL    string // 任意
}

// Theme は画面テーマを表す。
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid はテーマが許可された値かを返す。
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Preferences はユーザーの表示設定を表す。
type Preferences struct {
	Theme         Theme `json:"theme"`
	Notifications bool  `json:"notifications"`
}

// DefaultPreferences は新規ユーザーに適用するデフォルト設定を返す。
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, Notifications: true}
}

// UserRecord はユーザードキュメントストアに永続化されるプロフィールを表す。
// ログイン経路によっては一部フィールドが存在しないため、任意項目はポインタで保持する。
type UserRecord struct {
	UID           string       `json:"uid"`
	Email         string       `json:"email"`
	Name          string       `json:"name"`
	AuthProvider  AuthProvider `json:"auth_provider,omitempty"`
	PhotoURL      string       `json:"photo_url,omitempty"`
	EmailVerified bool         `json:"email_verified,omitempty"`
	CreatedAt     *time.Time   `json:"created_at,omitempty"`
	LastLogin     *time.Time   `json:"last_login,omitempty"`
	UpdatedAt     *time.Time   `json:"updated_at,omitempty"`
	Preferences   *Preferences `json:"preferences,omitempty"`

	// LoginCount は外部で書き込まれた場合のみ存在する。このアプリケーションは更新しない。
	LoginCount int `json:"login_count,omitempty"`
}

// UserRecordPatch はユーザードキュメントへの部分更新を表す。
// nilでないフィールドのみがトップレベル単位でマージされ、それ以外の既存フィールドは保持される。
type UserRecordPatch struct {
	UID           *string       `json:"uid,omitempty"`
	Email         *string       `json:"email,omitempty"`
	Name          *string       `json:"name,omitempty"`
	AuthProvider  *AuthProvider `json:"auth_provider,omitempty"`
	PhotoURL      *string       `json:"photo_url,omitempty"`
	EmailVerified *bool         `json:"email_verified,omitempty"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`
	LastLogin     *time.Time    `json:"last_login,omitempty"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
	Preferences   *Preferences  `json:"preferences,omitempty"`
}

// IsEmpty はパッチが書き込むフィールドを持たない場合にtrueを返す。
func (p UserRecordPatch) IsEmpty() bool {
	return p == UserRecordPatch{}
}

// Ptr は値のポインタを返す。パッチの構築に使用する。
func Ptr[T any](v T) *T {
	return &v
}
