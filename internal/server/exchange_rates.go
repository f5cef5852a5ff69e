package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
)

func (s *Server) ListExchangeRates(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := s.rates.Rates(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"data": snap}
	if age, ok := s.rates.SnapshotAge(ctx); ok {
		resp["age_seconds"] = int64(age.Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

// RefreshExchangeRates forces an upstream fetch. On failure the previous
// snapshot keeps serving and the caller gets 503.
func (s *Server) RefreshExchangeRates(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := s.rates.Refresh(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := snap.Base
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionExchangeRateRefresh, "exchange_rates", &targetID, map[string]any{
			"source":     snap.Source,
			"currencies": len(snap.Rates),
			"trigger":    "admin",
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}
