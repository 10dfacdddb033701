package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdemo/internal/middleware"
	"github.com/hitoshi/authdemo/internal/view"
)

// PageRenderer はHTMLページを描画する。
type PageRenderer interface {
	Render(w io.Writer, page string, data view.PageData) error
}

// PageHandler はHTMLページのハンドラー。
type PageHandler struct {
	renderer PageRenderer
	users    UserServiceInterface
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(renderer PageRenderer, users UserServiceInterface) *PageHandler {
	return &PageHandler{renderer: renderer, users: users}
}

// Public は誰でも閲覧できるトップページを表示する。
// GET /
func (h *PageHandler) Public(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	h.render(w, r, view.PagePublic, view.PageData{Identity: identity})
}

// Dashboard はログインユーザーのダッシュボードを表示する。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderPrivate(w, r, view.PageDashboard)
}

// Profile はプロフィール編集ページを表示する。
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	h.renderPrivate(w, r, view.PageProfile)
}

// renderPrivate はユーザードキュメントを読み込んでページを描画する。
// ドキュメントの取得に失敗した場合もユーザーデータなしで描画する。
func (h *PageHandler) renderPrivate(w http.ResponseWriter, r *http.Request, page string) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.render(w, r, page, view.PageData{
		Identity: identity,
		Record:   h.users.GetRecord(r.Context(), identity.SubjectID),
	})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, page string, data view.PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.Render(w, page, data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
