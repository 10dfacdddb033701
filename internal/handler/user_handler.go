package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authdemo/internal/middleware"
	"github.com/hitoshi/authdemo/internal/model"
	"github.com/hitoshi/authdemo/internal/user"
)

// maxRequestBodySize はAPIリクエストボディの上限（1MiB）。
const maxRequestBodySize = 1 << 20

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// GetRecord はユーザードキュメントを取得する。失敗時や未作成の場合はnilを返す。
	GetRecord(ctx context.Context, uid string) *model.UserRecord
	// UpdateProfile は表示名をマージし、保存した名前を返す。
	UpdateProfile(ctx context.Context, uid, name string) (string, error)
	// UpdatePreferences は表示設定をマージし、保存した設定を返す。
	UpdatePreferences(ctx context.Context, uid string, theme *string, notifications *bool) (model.Preferences, error)
}

// UserHandler はプロフィールと表示設定のAPIハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

type updatePreferencesRequest struct {
	Theme         *string `json:"theme"`
	Notifications *bool   `json:"notifications"`
}

// meResponse は現在の認証主体とユーザードキュメントを表す。
type meResponse struct {
	UID           string             `json:"uid"`
	Email         string             `json:"email"`
	Name          string             `json:"name,omitempty"`
	AuthProvider  model.AuthProvider `json:"auth_provider"`
	EmailVerified bool               `json:"email_verified"`
	PhotoURL      string             `json:"photo_url,omitempty"`
	CreatedAt     *time.Time         `json:"created_at,omitempty"`
	LastLogin     *time.Time         `json:"last_login,omitempty"`
	Preferences   *model.Preferences `json:"preferences,omitempty"`
}

// UpdateProfile は表示名を更新する。
// POST /api/update-profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.service.UpdateProfile(r.Context(), identity.SubjectID, req.Name); err != nil {
		writeUserError(w, err, "Failed to update profile")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Profile updated successfully"})
}

// UpdatePreferences は表示設定を更新する。
// POST /api/update-preferences
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updatePreferencesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.service.UpdatePreferences(r.Context(), identity.SubjectID, req.Theme, req.Notifications); err != nil {
		writeUserError(w, err, "Failed to update preferences")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Preferences updated successfully"})
}

// Me は現在の認証主体とユーザードキュメントの内容を返す。
// GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	resp := meResponse{
		UID:           identity.SubjectID,
		Email:         identity.Email,
		Name:          identity.DisplayName,
		AuthProvider:  identity.AuthProvider,
		EmailVerified: identity.EmailVerified,
		PhotoURL:      identity.PictureURL,
	}
	if rec := h.service.GetRecord(r.Context(), identity.SubjectID); rec != nil {
		if rec.Name != "" {
			resp.Name = rec.Name
		}
		if rec.PhotoURL != "" {
			resp.PhotoURL = rec.PhotoURL
		}
		resp.CreatedAt = rec.CreatedAt
		resp.LastLogin = rec.LastLogin
		resp.Preferences = rec.Preferences
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// decodeJSONBody はリクエストボディをJSONオブジェクトとしてデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		reason := "body must be a JSON object"
		if errors.As(err, &maxErr) {
			reason = "body is too large"
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(reason))
		return false
	}
	return true
}

// writeUserError はユーザーサービスのエラーをHTTPレスポンスに変換する。
func writeUserError(w http.ResponseWriter, err error, storeFailureMessage string) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
	case errors.Is(err, model.ErrStoreFailure):
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreFailureError(storeFailureMessage))
	default:
		slog.Error("unexpected user service error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// compile-time interface check
var _ UserServiceInterface = (*user.Service)(nil)
