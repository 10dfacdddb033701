package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/authdemo/internal/auth"
)

// newProtectedRouter は Identity -> RequireAPI -> CSRF のチェーンを持つchi.Routerを生成する。
func newProtectedRouter(resolver IdentityResolver) chi.Router {
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware(false))
	r.Use(NewIdentityMiddleware(resolver, &mockSessionStarter{}, nil))
	r.Use(NewCSRFMiddleware(CSRFConfig{}))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)
	r.With(RequireAPI).Post("/api/update-profile", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	r.With(RequirePage).Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r
}

// TestMiddlewareChain_AuthenticatedPOST_WithCSRFToken は
// 認証済みかつCSRFトークン付きのPOSTが通ることを検証する。
func TestMiddlewareChain_AuthenticatedPOST_WithCSRFToken(t *testing.T) {
	r := newProtectedRouter(resolved(auth.SourceSession, "user-chain-test"))

	req := httptest.NewRequest(http.MethodPost, "/api/update-profile", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
	req.Header.Set(CSRFHeaderName, "tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestMiddlewareChain_AuthenticatedPOST_WithoutCSRFToken_Returns403 は
// 認証済みでもCSRFトークンがなければ拒否されることを検証する。
func TestMiddlewareChain_AuthenticatedPOST_WithoutCSRFToken_Returns403(t *testing.T) {
	r := newProtectedRouter(resolved(auth.SourceSession, "user-chain-test"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/update-profile", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// TestMiddlewareChain_Anonymous_APIReturns401_PageRedirects は
// 未認証のAPIは401、ページはトップへのリダイレクトになることを検証する。
func TestMiddlewareChain_Anonymous_APIReturns401_PageRedirects(t *testing.T) {
	r := newProtectedRouter(&mockResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/update-profile", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
	req.Header.Set(CSRFHeaderName, "tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("api status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if w.Code != http.StatusFound {
		t.Errorf("page status = %d, want %d", w.Code, http.StatusFound)
	}
}

// TestMiddlewareChain_CSRFTokenEndpoint はCSRFトークン取得エンドポイントがchi.Routerで動作することを検証する。
func TestMiddlewareChain_CSRFTokenEndpoint(t *testing.T) {
	r := newProtectedRouter(&mockResolver{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestMiddlewareChain_Panic_Returns500JSON はpanicが統一フォーマットの500に変換されることを検証する。
func TestMiddlewareChain_Panic_Returns500JSON(t *testing.T) {
	r := newProtectedRouter(&mockResolver{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// TestSecurityHeadersMiddleware はセキュリティヘッダーが付与されることを検証する。
func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		hsts     bool
		wantHSTS bool
	}{
		{"without hsts", false, false},
		{"with hsts", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewSecurityHeadersMiddleware(tt.hsts)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			h := w.Header()
			if h.Get("X-Content-Type-Options") != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", h.Get("X-Content-Type-Options"))
			}
			if h.Get("X-Frame-Options") != "DENY" {
				t.Errorf("X-Frame-Options = %q, want DENY", h.Get("X-Frame-Options"))
			}
			if h.Get("Cross-Origin-Opener-Policy") != "same-origin-allow-popups" {
				t.Errorf("Cross-Origin-Opener-Policy = %q, want same-origin-allow-popups", h.Get("Cross-Origin-Opener-Policy"))
			}
			if got := h.Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

// TestRecoveryMiddleware_AbortHandler_Repanics はhttp.ErrAbortHandlerが握りつぶされないことを検証する。
func TestRecoveryMiddleware_AbortHandler_Repanics(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered = %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
