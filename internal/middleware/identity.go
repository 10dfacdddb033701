package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authdemo/internal/auth"
	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/model"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityResolver はリクエストから認証主体を解決する。
type IdentityResolver interface {
	Resolve(r *http.Request) auth.Resolution
}

// SessionStarter はレスポンスにセッションCookieを発行する。
type SessionStarter interface {
	Start(w http.ResponseWriter, identity *model.Identity) error
}

// NewIdentityMiddleware はリクエストの認証主体を解決してコンテキストに格納するミドルウェアを返す。
// 未認証でもリクエストは拒否しない。拒否はRequireAPI/RequirePageが行う。
// Bearerトークンで解決した場合は、以降のリクエストのためにセッションCookieを発行する。
func NewIdentityMiddleware(resolver IdentityResolver, sessions SessionStarter, m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if m == nil {
		m = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolver.Resolve(r)
			if !res.Authenticated() {
				next.ServeHTTP(w, r)
				return
			}

			if res.Source == auth.SourceToken {
				if err := sessions.Start(w, res.Identity); err != nil {
					slog.Error("failed to issue session from bearer token",
						slog.String("user_id", res.Identity.SubjectID),
						slog.String("error", err.Error()),
					)
				} else {
					m.RecordSessionIssued(string(auth.SourceToken))
				}
			}

			annotateUserID(r.Context(), res.Identity.SubjectID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), res.Identity)))
		})
	}
}

// RequireAPI は認証主体がないリクエストを401 JSONで拒否する。
func RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePage は認証主体がないリクエストを公開トップページへリダイレクトする。
func RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext はコンテキストから認証主体を取得する。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストに認証主体を設定する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext はコンテキストから認証済みユーザーのIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", errors.New("user ID not found in context")
	}
	return identity.SubjectID, nil
}
