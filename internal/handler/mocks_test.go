package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/authdemo/internal/middleware"
	"github.com/hitoshi/authdemo/internal/model"
	"github.com/hitoshi/authdemo/internal/view"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn       func(ctx context.Context, idToken string) (*model.Identity, error)
	signupFn      func(ctx context.Context, idToken string) (*model.Identity, error)
	googleLoginFn func(ctx context.Context, idToken string) (*model.Identity, error)
}

func (m *mockAuthService) Login(ctx context.Context, idToken string) (*model.Identity, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, idToken)
	}
	return nil, nil
}

func (m *mockAuthService) Signup(ctx context.Context, idToken string) (*model.Identity, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, idToken)
	}
	return nil, nil
}

func (m *mockAuthService) GoogleLogin(ctx context.Context, idToken string) (*model.Identity, error) {
	if m.googleLoginFn != nil {
		return m.googleLoginFn(ctx, idToken)
	}
	return nil, nil
}

type mockSessionIssuer struct {
	startFn func(w http.ResponseWriter, identity *model.Identity) error
	started []*model.Identity
	ended   int
}

func (m *mockSessionIssuer) Start(w http.ResponseWriter, identity *model.Identity) error {
	if m.startFn != nil {
		if err := m.startFn(w, identity); err != nil {
			return err
		}
	}
	m.started = append(m.started, identity)
	return nil
}

func (m *mockSessionIssuer) End(w http.ResponseWriter) {
	m.ended++
}

type mockUserService struct {
	getRecordFn         func(ctx context.Context, uid string) *model.UserRecord
	updateProfileFn     func(ctx context.Context, uid, name string) (string, error)
	updatePreferencesFn func(ctx context.Context, uid string, theme *string, notifications *bool) (model.Preferences, error)
}

func (m *mockUserService) GetRecord(ctx context.Context, uid string) *model.UserRecord {
	if m.getRecordFn != nil {
		return m.getRecordFn(ctx, uid)
	}
	return nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, uid, name string) (string, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, uid, name)
	}
	return name, nil
}

func (m *mockUserService) UpdatePreferences(ctx context.Context, uid string, theme *string, notifications *bool) (model.Preferences, error) {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, uid, theme, notifications)
	}
	return model.DefaultPreferences(), nil
}

type mockRenderer struct {
	renderFn func(w io.Writer, page string, data view.PageData) error
	page     string
	data     view.PageData
}

func (m *mockRenderer) Render(w io.Writer, page string, data view.PageData) error {
	m.page = page
	m.data = data
	if m.renderFn != nil {
		return m.renderFn(w, page, data)
	}
	_, err := io.WriteString(w, "<html>"+page+"</html>")
	return err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- ヘルパー ---

var testIdentity = &model.Identity{
	SubjectID:    "uid-123",
	Email:        "alice@example.com",
	DisplayName:  "Alice",
	AuthProvider: model.AuthProviderPassword,
}

// withIdentity はIdentityをコンテキストに格納したリクエストを返す。
func withIdentity(r *http.Request, identity *model.Identity) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// decodeError はエラーレスポンスのボディをデコードする。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// decodeMessage は成功レスポンスのmessageを取り出す。
func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode message response: %v", err)
	}
	return body.Message
}
