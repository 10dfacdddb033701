package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authdemo/internal/middleware"
)

// Pinger は依存先の疎通確認を行う。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// ストアに到達できない場合は503を返す。
// GET /health
func NewHealthHandler(store Pinger, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Version: version, Store: "ok"}
		status := http.StatusOK

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.PingContext(ctx); err != nil {
				slog.Warn("health check: store unreachable", slog.String("error", err.Error()))
				resp.Status = "degraded"
				resp.Store = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		middleware.WriteJSON(w, status, resp)
	}
}
