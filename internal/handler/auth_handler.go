// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdemo/internal/auth"
	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/middleware"
	"github.com/hitoshi/authdemo/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// いずれもIDトークンを検証し、ユーザードキュメントを更新した上で検証済みIdentityを返す。
type AuthServiceInterface interface {
	Login(ctx context.Context, idToken string) (*model.Identity, error)
	Signup(ctx context.Context, idToken string) (*model.Identity, error)
	GoogleLogin(ctx context.Context, idToken string) (*model.Identity, error)
}

// SessionIssuer はセッションCookieの発行と破棄を行う。
type SessionIssuer interface {
	Start(w http.ResponseWriter, identity *model.Identity) error
	End(w http.ResponseWriter)
}

// messageResponse は成功時のレスポンスボディ。
type messageResponse struct {
	Message string `json:"message"`
}

// AuthHandler はログイン・サインアップ・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionIssuer
	metrics  metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions SessionIssuer, m metrics.MetricsCollector) *AuthHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		metrics:  m,
	}
}

// Login はメールアドレス/パスワードで取得したIDトークンでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, auth.OperationLogin, h.service.Login, "Login successful")
}

// Signup は新規登録直後のIDトークンでユーザードキュメントを作成する。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, auth.OperationSignup, h.service.Signup, "Signup successful")
}

// GoogleLogin はGoogleアカウントで取得したIDトークンでログインする。
// POST /auth/google-login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, auth.OperationGoogleLogin, h.service.GoogleLogin, "Google login successful")
}

// Logout はセッションCookieを破棄する。セッションの有無にかかわらず成功する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(w)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
}

type authenticateFunc func(ctx context.Context, idToken string) (*model.Identity, error)

// authenticate はBearerトークンの取り出し、サービス呼び出し、セッション発行の共通フロー。
// ユーザードキュメントの更新に成功した場合のみセッションを発行する。
func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request, operation string, fn authenticateFunc, message string) {
	token, ok := auth.BearerToken(r)
	if !ok {
		h.metrics.RecordAuthAttempt(operation, metrics.OutcomeUnauthenticated)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return
	}

	identity, err := fn(r.Context(), token)
	if err != nil {
		writeAuthError(w, operation, err)
		return
	}

	if err := h.sessions.Start(w, identity); err != nil {
		slog.Error("failed to issue session",
			slog.String("operation", operation),
			slog.String("user_id", identity.SubjectID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	h.metrics.RecordSessionIssued(operation)

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: message})
}

// writeAuthError は認証サービスのエラーをHTTPレスポンスに変換する。
// どの検証で失敗したかはレスポンスに含めない。
func writeAuthError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
	case errors.Is(err, model.ErrStoreFailure):
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreFailureError("Failed to save user record"))
	default:
		slog.Error("unexpected auth error",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
	}
}

// compile-time interface check
var (
	_ AuthServiceInterface = (*auth.Service)(nil)
	_ SessionIssuer        = (*auth.SessionManager)(nil)
)
