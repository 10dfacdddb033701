package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/model"
	"github.com/hitoshi/authdemo/internal/repository"
	"github.com/hitoshi/authdemo/internal/security"
)

// 認証操作名。メトリクスとログのラベルに使用する。
const (
	OperationLogin       = "login"
	OperationSignup      = "signup"
	OperationGoogleLogin = "google_login"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	StoreTimeout time.Duration             // ストア呼び出し1回あたりのタイムアウト
	Metrics      metrics.MetricsCollector  // nilの場合は記録しない
	Sanitizer    security.ProfileSanitizer // nilの場合はデフォルトのSSRFガード付きサニタイザー
}

// Service はトークン検証後のユーザードキュメント更新ポリシーを提供する。
// セッションの発行はHTTP層が行う。
type Service struct {
	verifier     TokenVerifier
	store        repository.UserRecordStore
	sanitizer    security.ProfileSanitizer
	storeTimeout time.Duration
	metrics      metrics.MetricsCollector
	tracer       trace.Tracer
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(verifier TokenVerifier, store repository.UserRecordStore, config ServiceConfig) *Service {
	m := config.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	sanitizer := config.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewProfileSanitizer(security.NewSSRFGuard())
	}
	return &Service{
		verifier:     verifier,
		store:        store,
		sanitizer:    sanitizer,
		storeTimeout: config.StoreTimeout,
		metrics:      m,
		tracer:       otel.Tracer(tracerName),
		now:          time.Now,
	}
}

// Login はIDトークンを検証し、ユーザードキュメントに{email, name, last_login, uid}をマージする。
// トークンに表示名がない場合、nameは空文字列で上書きされる。
// created_atとpreferencesには触れない。
func (s *Service) Login(ctx context.Context, idToken string) (*model.Identity, error) {
	return s.authenticate(ctx, OperationLogin, idToken, func(_ context.Context, id *model.Identity, now time.Time) (model.UserRecordPatch, error) {
		return model.UserRecordPatch{
			UID:       model.Ptr(id.SubjectID),
			Email:     model.Ptr(id.Email),
			Name:      model.Ptr(s.sanitizer.SanitizeName(id.DisplayName)),
			LastLogin: &now,
		}, nil
	})
}

// Signup はIDトークンを検証し、created_atとデフォルト設定を含めてユーザードキュメントにマージする。
// 既存ドキュメントの有無を確認しないため、2回呼ぶとcreated_atは2回目の時刻になる。
func (s *Service) Signup(ctx context.Context, idToken string) (*model.Identity, error) {
	return s.authenticate(ctx, OperationSignup, idToken, func(_ context.Context, id *model.Identity, now time.Time) (model.UserRecordPatch, error) {
		prefs := model.DefaultPreferences()
		return model.UserRecordPatch{
			UID:         model.Ptr(id.SubjectID),
			Email:       model.Ptr(id.Email),
			Name:        model.Ptr(s.sanitizer.SanitizeName(id.DisplayName)),
			CreatedAt:   &now,
			LastLogin:   &now,
			Preferences: &prefs,
		}, nil
	})
}

// GoogleLogin はIDトークンを検証し、Googleアカウント由来のフィールドをマージする。
// 既存ドキュメントがない場合に限り、created_atとデフォルト設定も書き込む。
// 表示名と画像URLはIdP由来の値でも無害化してから保存する。
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*model.Identity, error) {
	return s.authenticate(ctx, OperationGoogleLogin, idToken, func(ctx context.Context, id *model.Identity, now time.Time) (model.UserRecordPatch, error) {
		existing, err := s.getRecord(ctx, id.SubjectID)
		if err != nil {
			return model.UserRecordPatch{}, err
		}

		patch := model.UserRecordPatch{
			UID:           model.Ptr(id.SubjectID),
			Email:         model.Ptr(id.Email),
			Name:          model.Ptr(s.googleDisplayName(id)),
			LastLogin:     &now,
			AuthProvider:  model.Ptr(model.AuthProviderGoogle),
			PhotoURL:      model.Ptr(s.sanitizer.SanitizePhotoURL(id.PictureURL)),
			EmailVerified: model.Ptr(id.EmailVerified),
		}
		if existing == nil {
			prefs := model.DefaultPreferences()
			patch.CreatedAt = &now
			patch.Preferences = &prefs
		}
		return patch, nil
	})
}

// patchBuilder は検証済みIdentityからマージするパッチを組み立てる。
type patchBuilder func(ctx context.Context, id *model.Identity, now time.Time) (model.UserRecordPatch, error)

// authenticate はトークン検証、パッチ構築、アップサートの共通フロー。
func (s *Service) authenticate(ctx context.Context, operation, idToken string, build patchBuilder) (*model.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "auth."+operation)
	defer span.End()

	identity, err := s.verifier.VerifyToken(ctx, idToken)
	if err != nil {
		s.metrics.RecordAuthAttempt(operation, metrics.OutcomeUnauthenticated)
		span.SetStatus(codes.Error, "unauthenticated")
		if !errors.Is(err, model.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.subject_id", identity.SubjectID))

	patch, err := build(ctx, identity, s.now().UTC())
	if err == nil {
		err = s.upsertRecord(ctx, identity.SubjectID, patch)
	}
	if err != nil {
		s.metrics.RecordAuthAttempt(operation, metrics.OutcomeStoreFailure)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		slog.Error("failed to persist user record",
			slog.String("operation", operation),
			slog.String("user_id", identity.SubjectID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordAuthAttempt(operation, metrics.OutcomeSuccess)
	slog.Info("user authenticated",
		slog.String("operation", operation),
		slog.String("user_id", identity.SubjectID),
		slog.String("provider", string(identity.AuthProvider)),
	)
	return identity, nil
}

// getRecord はタイムアウト付きでユーザードキュメントを取得する。
func (s *Service) getRecord(ctx context.Context, uid string) (*model.UserRecord, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	rec, err := s.store.Get(ctx, uid)
	if err != nil {
		s.metrics.RecordStoreFailure("get")
		return nil, fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}
	return rec, nil
}

// upsertRecord はタイムアウト付きでパッチをマージする。
func (s *Service) upsertRecord(ctx context.Context, uid string, patch model.UserRecordPatch) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Upsert(ctx, uid, patch); err != nil {
		s.metrics.RecordStoreFailure("upsert")
		return fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
	}
	return nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// googleDisplayName はGoogleアカウントの表示名を返す。
// 無害化後の表示名が空の場合はメールアドレスのローカル部を使用する。
func (s *Service) googleDisplayName(id *model.Identity) string {
	if name := s.sanitizer.SanitizeName(id.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(id.Email, "@")
	return local
}
