package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultGoogleCertsURL はFirebase IDトークンの署名検証用X.509証明書の公開URL。
	DefaultGoogleCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	// defaultKeyCacheTTL はCache-Controlヘッダーがない場合の公開鍵キャッシュ期間。
	defaultKeyCacheTTL = time.Hour

	// minKeyRefreshInterval は未知のkidによる再取得の最小間隔。
	minKeyRefreshInterval = time.Minute
)

// ErrKeyNotFound は指定されたkidの公開鍵が存在しないことを示す。
var ErrKeyNotFound = errors.New("signing key not found")

// KeySource はIDトークン署名検証用の公開鍵を提供するインターフェース。
type KeySource interface {
	// PublicKey はkidに対応するRSA公開鍵を返す。
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// GoogleCertKeySource はGoogleが公開するX.509証明書から公開鍵を取得し、
// Cache-Controlのmax-ageに従ってキャッシュする。
type GoogleCertKeySource struct {
	certsURL string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
}

// NewGoogleCertKeySource はGoogleCertKeySourceを生成する。
// certsURLが空の場合はDefaultGoogleCertsURLを使用する。
func NewGoogleCertKeySource(certsURL string, client *http.Client) *GoogleCertKeySource {
	if certsURL == "" {
		certsURL = DefaultGoogleCertsURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleCertKeySource{
		certsURL: certsURL,
		client:   client,
		now:      time.Now,
	}
}

// PublicKey はkidに対応する公開鍵を返す。
// キャッシュが期限切れの場合、またはkidが未知で前回取得から一定時間経過している場合は再取得する。
func (s *GoogleCertKeySource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.keys == nil || !now.Before(s.expiresAt) {
		if err := s.refresh(ctx, now); err != nil {
			return nil, err
		}
	}

	key, ok := s.keys[kid]
	if !ok && now.Sub(s.fetchedAt) >= minKeyRefreshInterval {
		// 鍵ローテーション直後は新しいkidがキャッシュにない
		if err := s.refresh(ctx, now); err != nil {
			return nil, err
		}
		key, ok = s.keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// refresh は証明書一覧を取得してキャッシュを置き換える。呼び出し側でロックを保持すること。
func (s *GoogleCertKeySource) refresh(ctx context.Context, now time.Time) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.certsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read certs response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certs request failed with status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("failed to decode certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, cert := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		if err != nil {
			slog.Warn("skipping unparsable signing certificate",
				slog.String("kid", kid),
				slog.String("error", err.Error()),
			)
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return fmt.Errorf("no usable signing certificates at %s", s.certsURL)
	}

	ttl, ok := parseMaxAge(resp.Header.Get("Cache-Control"))
	if !ok {
		ttl = defaultKeyCacheTTL
	}

	s.keys = keys
	s.fetchedAt = now
	s.expiresAt = now.Add(ttl)

	slog.Debug("signing certificates refreshed",
		slog.Int("count", len(keys)),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// parseMaxAge はCache-Controlヘッダーからmax-ageを取り出す。
func parseMaxAge(header string) (time.Duration, bool) {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		value, found := strings.CutPrefix(strings.ToLower(directive), "max-age=")
		if !found {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

// compile-time interface check
var _ KeySource = (*GoogleCertKeySource)(nil)
