// Package adminapi exposes the read-only HTTP admin surface (§4.8, §6
// expansion): live session count, each session's open-handle count, and
// aggregate RPC counters. It only reads from internal/session.Server and
// never touches the dispatch path, per §5's isolation requirement.
package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vavrusa/usbproxy/internal/session"
)

// SessionSource is the narrow view of internal/session.Server the admin
// surface needs. Declared locally so this package never imports anything
// from session beyond what it reads.
type SessionSource interface {
	Sessions() []session.Info
	MetricsSnapshot() session.Snapshot
}

// sessionView is the JSON shape for one reported session.
type sessionView struct {
	ID          string `json:"id"`
	RemoteAddr  string `json:"remote_addr"`
	OpenedAt    string `json:"opened_at"`
	OpenHandles int    `json:"open_handles"`
}

// NewRouter builds the gin engine serving /healthz, /sessions and /metrics,
// matching the teacher's gin.New()+gin.Recovery() setup in its REST API
// server (cmd/driver/hasher-host/main.go's runAPIServer).
func NewRouter(src SessionSource) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealthz)
	router.GET("/sessions", handleSessions(src))
	router.GET("/metrics", handleMetrics(src))

	return router
}

func handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleSessions(src SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := src.Sessions()
		out := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionView{
				ID:          s.ID,
				RemoteAddr:  s.RemoteAddr,
				OpenedAt:    s.OpenedAt.Format("2006-01-02T15:04:05Z07:00"),
				OpenHandles: s.OpenHandles,
			})
		}
		c.JSON(http.StatusOK, gin.H{"sessions": out})
	}
}

func handleMetrics(src SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, src.MetricsSnapshot())
	}
}
