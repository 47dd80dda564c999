package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/sweeper"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type DetailedHealth struct {
	Status      string                     `json:"status"`
	Components  map[string]ComponentHealth `json:"components"`
	Blacklist   string                     `json:"blacklistBackend"`
	Payout      string                     `json:"payoutProvider"`
	SweeperHold *SweeperLease              `json:"sweeperLease"`
}

type SweeperLease struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "ok"}})
}

// HealthDetailed probes the database and redis and reports the sweeper
// lease holder. It answers 503 when a dependency is down.
func (h *Handler) HealthDetailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	out := DetailedHealth{
		Status:     "ok",
		Components: map[string]ComponentHealth{},
		Blacklist:  h.BlacklistBackend,
		Payout:     h.PayoutProvider,
	}
	probe := func(name string, p Pinger) {
		if err := p.Ping(ctx); err != nil {
			out.Status = "degraded"
			out.Components[name] = ComponentHealth{Status: "down", Error: err.Error()}
			return
		}
		out.Components[name] = ComponentHealth{Status: "up"}
	}
	probe("database", h.Users)
	if h.Redis != nil {
		probe("redis", h.Redis)
	}

	if lease, err := h.Leases.Get(ctx, sweeper.LeaseName); err == nil {
		out.SweeperHold = &SweeperLease{Holder: lease.Holder, ExpiresAt: lease.ExpiresAt}
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		out.Components["sweeperLease"] = ComponentHealth{Status: "unknown", Error: err.Error()}
	}

	status := http.StatusOK
	if out.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"success": status == http.StatusOK, "data": out})
}
