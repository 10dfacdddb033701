package model

import (
	"errors"
	"fmt"
)

// 認証・永続化の失敗種別。
// 呼び出し側は errors.Is で判定し、HTTPステータスへ変換する。
var (
	// ErrUnauthenticated はトークンやセッションが欠落・不正・期限切れであることを示す。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrIdentityNotFound はセッションもトークンも存在しないことを示す。
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrInvalidSession はセッションCookieの検証に失敗したことを示す。
	ErrInvalidSession = errors.New("invalid session")
	// ErrStoreFailure はユーザードキュメントストアの呼び出しに失敗したことを示す。
	ErrStoreFailure = errors.New("store failure")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidToken   = "INVALID_TOKEN"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidTheme   = "INVALID_THEME"
	ErrCodeNameTooLong    = "NAME_TOO_LONG"
	ErrCodeStoreFailure   = "STORE_FAILURE"
	ErrCodeCSRFFailed     = "CSRF_FAILED"
	ErrCodeRateLimited    = "RATE_LIMITED"
)

// NewUnauthorizedError は認証が必要なエンドポイントへの未認証アクセスエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "Please log in and try again.",
	}
}

// NewInvalidTokenError はBearerトークンの欠落・検証失敗エラーを生成する。
// どの検証で失敗したかは返さない。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "Sign in again to obtain a fresh ID token.",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Send a JSON object body.",
	}
}

// NewInvalidThemeError はテーマが許可値以外の場合のエラーを生成する。
func NewInvalidThemeError(theme string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTheme,
		Message:  fmt.Sprintf("Invalid theme: %s", theme),
		Category: "validation",
		Action:   "Theme must be either light or dark.",
	}
}

// NewNameTooLongError は表示名が上限を超えた場合のエラーを生成する。
func NewNameTooLongError(max int) *APIError {
	return &APIError{
		Code:     ErrCodeNameTooLong,
		Message:  fmt.Sprintf("Name must be at most %d characters", max),
		Category: "validation",
		Action:   "Shorten the display name.",
	}
}

// NewStoreFailureError はユーザードキュメントの更新に失敗した場合のエラーを生成する。
func NewStoreFailureError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeStoreFailure,
		Message:  message,
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewCSRFError はCSRFトークン検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitedError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}
