package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/authdemo/internal/model"
)

const (
	// SessionCookieName はセッションCookieの名前。
	SessionCookieName = "session"

	// sessionIssuer はセッショントークンのiss。
	sessionIssuer = "authdemo"
)

// sessionClaims はセッションCookieに保持するIdentityのサブセットと有効期限。
type sessionClaims struct {
	jwt.RegisteredClaims
	Email         string             `json:"email"`
	Name          string             `json:"name,omitempty"`
	Provider      model.AuthProvider `json:"provider"`
	Picture       string             `json:"picture,omitempty"`
	EmailVerified bool               `json:"email_verified,omitempty"`
}

// SessionCodec はIdentityをHS256署名付きトークンとして符号化・復号する。
// 有効期限は発行時刻からの固定期間で、延長しない。
type SessionCodec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionCodec はSessionCodecを生成する。
func NewSessionCodec(secret string, maxAge time.Duration) *SessionCodec {
	return &SessionCodec{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// MaxAge はセッションの有効期間を返す。
func (c *SessionCodec) MaxAge() time.Duration {
	return c.maxAge
}

// Issue はIdentityからセッショントークンを発行し、トークンと有効期限を返す。
func (c *SessionCodec) Issue(identity *model.Identity) (string, time.Time, error) {
	if identity == nil || identity.SubjectID == "" {
		return "", time.Time{}, errors.New("cannot issue session without subject")
	}

	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(c.maxAge)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    sessionIssuer,
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:         identity.Email,
		Name:          identity.DisplayName,
		Provider:      identity.AuthProvider,
		Picture:       identity.PictureURL,
		EmailVerified: identity.EmailVerified,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Decode はセッショントークンを検証し、埋め込まれたIdentityを返す。
// 改ざん・期限切れ・形式不正はすべてmodel.ErrInvalidSessionとして返す。
func (c *SessionCodec) Decode(value string) (*model.Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(value, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", model.ErrInvalidSession)
	}

	provider := claims.Provider
	if provider == "" {
		provider = model.AuthProviderPassword
	}

	return &model.Identity{
		SubjectID:     claims.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		EmailVerified: claims.EmailVerified,
		AuthProvider:  provider,
		PictureURL:    claims.Picture,
	}, nil
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Name   string
	Secure bool
	Domain string
}

// SessionManager はセッションの発行・破棄・読み込みをCookie経由で行う。
// サーバー側に状態を持たないため、ログアウト時も失効リストは不要。
type SessionManager struct {
	codec  *SessionCodec
	cookie CookieConfig
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(codec *SessionCodec, cookie CookieConfig) *SessionManager {
	if cookie.Name == "" {
		cookie.Name = SessionCookieName
	}
	return &SessionManager{codec: codec, cookie: cookie}
}

// Start はIdentityのセッションを発行し、Cookieとしてレスポンスに設定する。
func (m *SessionManager) Start(w http.ResponseWriter, identity *model.Identity) error {
	value, expiresAt, err := m.codec.Issue(identity)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    value,
		Path:     "/",
		Domain:   m.cookie.Domain,
		Expires:  expiresAt,
		MaxAge:   int(m.codec.MaxAge().Seconds()),
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// End はセッションCookieを削除する。セッションの有無にかかわらず常に成功する。
func (m *SessionManager) End(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   m.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Load はリクエストのセッションCookieからIdentityを取り出す。
// Cookieがない場合はmodel.ErrIdentityNotFound、検証に失敗した場合はmodel.ErrInvalidSessionを返す。
func (m *SessionManager) Load(r *http.Request) (*model.Identity, error) {
	cookie, err := r.Cookie(m.cookie.Name)
	if err != nil || cookie.Value == "" {
		return nil, model.ErrIdentityNotFound
	}
	return m.codec.Decode(cookie.Value)
}
