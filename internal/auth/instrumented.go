package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/model"
)

// tracerName はこのパッケージのスパンに付けるinstrumentation名。
const tracerName = "github.com/hitoshi/authdemo/internal/auth"

// InstrumentedVerifier はTokenVerifierの呼び出しにタイムアウト、レイテンシ計測、トレースを付与する。
type InstrumentedVerifier struct {
	next    TokenVerifier
	timeout time.Duration
	metrics metrics.MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedVerifier はInstrumentedVerifierを生成する。
// timeoutが0以下の場合は呼び出し元のcontextの期限のみに従う。
func NewInstrumentedVerifier(next TokenVerifier, timeout time.Duration, m metrics.MetricsCollector) *InstrumentedVerifier {
	if m == nil {
		m = metrics.Nop{}
	}
	return &InstrumentedVerifier{
		next:    next,
		timeout: timeout,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

// VerifyToken は内側のVerifierでトークンを検証する。
// タイムアウトを含むすべての失敗はmodel.ErrUnauthenticatedとして返す。
func (v *InstrumentedVerifier) VerifyToken(ctx context.Context, idToken string) (*model.Identity, error) {
	ctx, span := v.tracer.Start(ctx, "auth.VerifyToken")
	defer span.End()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	start := time.Now()
	identity, err := v.next.VerifyToken(ctx, idToken)
	v.metrics.RecordVerifyLatency(time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token verification failed")
		if !errors.Is(err, model.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("auth.provider", string(identity.AuthProvider)))
	return identity, nil
}

// compile-time interface check
var _ TokenVerifier = (*InstrumentedVerifier)(nil)
