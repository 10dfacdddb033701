package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/authdemo/internal/model"
)

// Source はIdentityをどの資格情報から解決したかを表す。
type Source string

const (
	SourceNone    Source = ""
	SourceSession Source = "session"
	SourceToken   Source = "token"
)

// Resolution はリクエストの認証主体の解決結果。
type Resolution struct {
	Identity *model.Identity
	Source   Source
}

// Authenticated は認証主体が解決できた場合にtrueを返す。
func (r Resolution) Authenticated() bool {
	return r.Identity != nil
}

// Resolver はセッションCookie、次いでBearerトークンの順でリクエストの認証主体を解決する。
// 解決に失敗してもエラーは返さず、匿名として扱う。
type Resolver struct {
	sessions *SessionManager
	verifier TokenVerifier
}

// NewResolver はResolverを生成する。
func NewResolver(sessions *SessionManager, verifier TokenVerifier) *Resolver {
	return &Resolver{sessions: sessions, verifier: verifier}
}

// Resolve はリクエストの認証主体を解決する。
// 有効なセッションがあればVerifierを呼ばずにその内容を返す。
// 期限切れや改ざんされたセッションは存在しないものとして扱い、Bearerトークンの確認に進む。
// セッションの発行は呼び出し側が行う。
func (r *Resolver) Resolve(req *http.Request) Resolution {
	identity, err := r.sessions.Load(req)
	if err == nil {
		return Resolution{Identity: identity, Source: SourceSession}
	}
	if errors.Is(err, model.ErrInvalidSession) {
		slog.Debug("ignoring invalid session cookie",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	token, ok := BearerToken(req)
	if !ok {
		return Resolution{}
	}

	identity, err = r.verifier.VerifyToken(req.Context(), token)
	if err != nil {
		slog.Warn("bearer token rejected",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return Resolution{}
	}
	return Resolution{Identity: identity, Source: SourceToken}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがない、スキームが異なる、トークンが空または空白を含む場合はfalseを返す。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
