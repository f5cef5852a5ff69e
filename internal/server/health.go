package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// Health reports database reachability and the age of the exchange-rate
// snapshot. Only a failed database ping makes the service unhealthy.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if err := s.pingDB(ctx); err != nil {
		s.log.Warn("health check: database ping failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	rates := gin.H{"status": "missing"}
	if s.rates != nil {
		if age, ok := s.rates.SnapshotAge(ctx); ok {
			rates = gin.H{
				"status":      "ok",
				"age_seconds": int64(age.Seconds()),
			}
			if maxAge := s.pricing.Get().ExchangeRates.MaxAge; maxAge > 0 && age > maxAge {
				rates["status"] = "stale"
			}
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{
		"status":         overall,
		"database":       dbStatus,
		"exchange_rates": rates,
	})
}

func (s *Server) pingDB(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
