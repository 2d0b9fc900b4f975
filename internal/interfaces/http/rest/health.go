package rest

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/dto"
	"github.com/wangmul/emotion-tracker/pkg/api"
)

const healthTimeout = 5 * time.Second

// Health handles GET /api/health with one bounded store read.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		msg := err.Error()
		if ue, ok := apperrors.As(err); ok {
			msg = ue.Message
		}
		h.logger.Warn("Health check failed", zap.Error(err))
		api.Success(w, http.StatusInternalServerError, dto.HealthResponse{OK: false, Error: msg})
		return
	}
	api.Success(w, http.StatusOK, dto.HealthResponse{OK: true})
}
