// Package user はログイン済みユーザーのプロフィールと表示設定の管理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/model"
	"github.com/hitoshi/authdemo/internal/repository"
	"github.com/hitoshi/authdemo/internal/security"
)

// MaxNameLength は表示名の最大文字数（サニタイズ後のルーン数）。
const MaxNameLength = 100

// ServiceConfig はユーザーサービスの設定。
type ServiceConfig struct {
	StoreTimeout time.Duration
	Metrics      metrics.MetricsCollector
}

// Service はユーザードキュメントの読み取りと部分更新を提供する。
// すべての書き込みはマージで行い、他のフィールドを上書きしない。
type Service struct {
	store        repository.UserRecordStore
	sanitizer    security.ProfileSanitizer
	storeTimeout time.Duration
	metrics      metrics.MetricsCollector
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.UserRecordStore, sanitizer security.ProfileSanitizer, config ServiceConfig) *Service {
	m := config.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:        store,
		sanitizer:    sanitizer,
		storeTimeout: config.StoreTimeout,
		metrics:      m,
		now:          time.Now,
	}
}

// GetRecord はユーザードキュメントを取得する。
// ページ表示用のため、取得に失敗した場合はログに記録してnilを返す。
func (s *Service) GetRecord(ctx context.Context, uid string) *model.UserRecord {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	rec, err := s.store.Get(ctx, uid)
	if err != nil {
		s.metrics.RecordStoreFailure("get")
		slog.Error("failed to load user record",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return rec
}

// UpdateProfile は表示名をサニタイズしてマージする。
// 上限を超える名前はAPIErrorを返し、ストア障害はmodel.ErrStoreFailureをラップして返す。
func (s *Service) UpdateProfile(ctx context.Context, uid, name string) (string, error) {
	cleaned := s.sanitizer.SanitizeName(name)
	if utf8.RuneCountInString(cleaned) > MaxNameLength {
		return "", model.NewNameTooLongError(MaxNameLength)
	}

	now := s.now().UTC()
	patch := model.UserRecordPatch{
		Name:      model.Ptr(cleaned),
		UpdatedAt: &now,
	}
	if err := s.upsert(ctx, uid, patch); err != nil {
		return "", err
	}

	slog.Info("profile updated", slog.String("user_id", uid))
	return cleaned, nil
}

// UpdatePreferences は表示設定をまとめて置き換える。
// 未指定の項目はデフォルト値（theme=light, notifications=true）になる。
func (s *Service) UpdatePreferences(ctx context.Context, uid string, theme *string, notifications *bool) (model.Preferences, error) {
	prefs := model.DefaultPreferences()
	if theme != nil {
		t := model.Theme(*theme)
		if !t.Valid() {
			return model.Preferences{}, model.NewInvalidThemeError(*theme)
		}
		prefs.Theme = t
	}
	if notifications != nil {
		prefs.Notifications = *notifications
	}

	now := s.now().UTC()
	patch := model.UserRecordPatch{
		Preferences: &prefs,
		UpdatedAt:   &now,
	}
	if err := s.upsert(ctx, uid, patch); err != nil {
		return model.Preferences{}, err
	}

	slog.Info("preferences updated",
		slog.String("user_id", uid),
		slog.String("theme", string(prefs.Theme)),
		slog.Bool("notifications", prefs.Notifications),
	)
	return prefs, nil
}

func (s *Service) upsert(ctx context.Context, uid string, patch model.UserRecordPatch) error {
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
