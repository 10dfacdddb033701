package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authdemo/internal/model"
)

const (
	testProjectID = "demo-project"
	testKID       = "test-kid-1"
	testSecret    = "test-secret-key-that-is-32-bytes!"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testCertPEM string
)

// signingKey はテスト全体で共有するRSA鍵と自己署名証明書を返す。
func signingKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(1),
			Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(24 * time.Hour),
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		if err != nil {
			panic(err)
		}
		testKey = key
		testCertPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	})
	return testKey, testCertPEM
}

// testIdP は証明書エンドポイントとIDトークン発行を模擬する。
type testIdP struct {
	key    *rsa.PrivateKey
	server *httptest.Server
	hits   atomic.Int32
}

func newTestIdP(t *testing.T) *testIdP {
	t.Helper()
	key, certPEM := signingKey(t)
	idp := &testIdP{key: key}
	idp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idp.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=600, must-revalidate, no-transform")
		_ = json.NewEncoder(w).Encode(map[string]string{testKID: certPEM})
	}))
	t.Cleanup(idp.server.Close)
	return idp
}

func (p *testIdP) keySource() *GoogleCertKeySource {
	return NewGoogleCertKeySource(p.server.URL, p.server.Client())
}

func (p *testIdP) verifier() *FirebaseVerifier {
	return NewFirebaseVerifier(testProjectID, p.keySource())
}

// validClaims はFirebaseのパスワード認証で発行されるIDトークン相当のクレームを返す。
func validClaims(uid, email string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            "https://securetoken.google.com/" + testProjectID,
		"aud":            testProjectID,
		"sub":            uid,
		"user_id":        uid,
		"iat":            now.Add(-time.Minute).Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"auth_time":      now.Add(-time.Minute).Unix(),
		"email":          email,
		"email_verified": false,
		"firebase": map[string]any{
			"sign_in_provider": "password",
		},
	}
}

// sign はクレームをRS256で署名する。kidが空の場合はヘッダーに含めない。
func (p *testIdP) sign(t *testing.T, claims jwt.MapClaims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(p.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*model.Identity, error)
	calls    atomic.Int32
}

func (m *mockVerifier) VerifyToken(ctx context.Context, idToken string) (*model.Identity, error) {
	m.calls.Add(1)
	if m.verifyFn != nil {
		return m.verifyFn(ctx, idToken)
	}
	return nil, model.ErrUnauthenticated
}

// verifierFor は指定トークンに対してのみIdentityを返すモックを生成する。
func verifierFor(token string, identity *model.Identity) *mockVerifier {
	return &mockVerifier{
		verifyFn: func(_ context.Context, idToken string) (*model.Identity, error) {
			if idToken != token {
				return nil, model.ErrUnauthenticated
			}
			copied := *identity
			return &copied, nil
		},
	}
}

type mockStore struct {
	getFn    func(ctx context.Context, uid string) (*model.UserRecord, error)
	upsertFn func(ctx context.Context, uid string, patch model.UserRecordPatch) error

	mu      sync.Mutex
	patches []model.UserRecordPatch
}

func (m *mockStore) Get(ctx context.Context, uid string) (*model.UserRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, uid)
	}
	return nil, nil
}

func (m *mockStore) Upsert(ctx context.Context, uid string, patch model.UserRecordPatch) error {
	m.mu.Lock()
	m.patches = append(m.patches, patch)
	m.mu.Unlock()
	if m.upsertFn != nil {
		return m.upsertFn(ctx, uid, patch)
	}
	return nil
}

func (m *mockStore) lastPatch(t *testing.T) model.UserRecordPatch {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.patches) == 0 {
		t.Fatal("expected at least one upsert, got none")
	}
	return m.patches[len(m.patches)-1]
}

// --- compile-time interface checks ---
var _ TokenVerifier = (*mockVerifier)(nil)
