// Package auth はIDトークン検証、セッション管理、リクエストの認証主体の解決を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authdemo/internal/model"
)

const (
	// firebaseIssuerPrefix はFirebase IDトークンのissの接頭辞。後ろにプロジェクトIDが続く。
	firebaseIssuerPrefix = "https://securetoken.google.com/"

	// googleSignInProvider はGoogleアカウントでのサインインを示すsign_in_providerの値。
	googleSignInProvider = "google.com"

	// maxSubjectLength はFirebaseのUIDの最大長。
	maxSubjectLength = 128

	// tokenClockSkew はIdPとのクロックずれとして許容する時間。
	tokenClockSkew = 30 * time.Second
)

// TokenVerifier はIdPが発行したIDトークンを検証するインターフェース。
// 検証に失敗した場合はmodel.ErrUnauthenticatedをラップしたエラーを返す。
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*model.Identity, error)
}

// firebaseClaims はFirebase IDトークンのペイロード。
type firebaseClaims struct {
	jwt.RegisteredClaims
	AuthTime      *jwt.NumericDate `json:"auth_time"`
	Email         string           `json:"email"`
	EmailVerified bool             `json:"email_verified"`
	Name          string           `json:"name"`
	Picture       string           `json:"picture"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
}

// FirebaseVerifier はFirebase AuthenticationのIDトークンをRS256署名とクレームで検証する。
type FirebaseVerifier struct {
	projectID string
	keys      KeySource
	now       func() time.Time
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(projectID string, keys KeySource) *FirebaseVerifier {
	return &FirebaseVerifier{
		projectID: projectID,
		keys:      keys,
		now:       time.Now,
	}
}

// VerifyToken はIDトークンを検証し、クレームをIdentityに変換する。
// 署名、aud、iss、exp、iat、auth_time、sub、emailを検証する。
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, idToken string) (*model.Identity, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty id token", model.ErrUnauthenticated)
	}

	var claims firebaseClaims
	_, err := jwt.ParseWithClaims(idToken, &claims,
		func(token *jwt.Token) (any, error) {
			kid, _ := token.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid header")
			}
			return v.keys.PublicKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(firebaseIssuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(tokenClockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
	}

	if claims.Subject == "" || len(claims.Subject) > maxSubjectLength {
		return nil, fmt.Errorf("%w: invalid subject", model.ErrUnauthenticated)
	}
	// auth_timeはユーザーがIdPで認証した時刻。未来の値は受け付けない。
	if claims.AuthTime == nil || claims.AuthTime.After(v.now().Add(tokenClockSkew)) {
		return nil, fmt.Errorf("%w: invalid auth_time", model.ErrUnauthenticated)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email", model.ErrUnauthenticated)
	}

	provider := model.AuthProviderPassword
	if claims.Firebase.SignInProvider == googleSignInProvider {
		provider = model.AuthProviderGoogle
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

// compile-time interface check
var _ TokenVerifier = (*FirebaseVerifier)(nil)
