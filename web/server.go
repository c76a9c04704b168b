package web

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"local/groupmebridge/bridge"
	"local/groupmebridge/config"
	"local/groupmebridge/groupme"
)

// Server exposes the health endpoints and the GroupMe webhook. It runs on its
// own goroutine and never touches bridge state directly: webhook deliveries
// are normalized and handed into the orchestrator's event channel, health
// responses only read the aggregate snapshot.
type Server struct {
	cfg     *config.Config
	status  func() bridge.Status
	publish func(bridge.Event)
	srv     *http.Server
}

func NewServer(cfg *config.Config, status func() bridge.Status, publish func(bridge.Event)) *Server {
	s := &Server{cfg: cfg, status: status, publish: publish}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.handleHealth)
	router.GET("/health", s.handleHealth)
	router.GET("/_ah/health", s.handleHealth)
	router.POST("/groupme/webhook", s.handleWebhook)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) Start() {
	go func() {
		log.Printf("🏥 Health check server running on port %d", s.cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.status()
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"bot_ready":    snap.BotReady,
		"uptime":       snap.Uptime.Seconds(),
		"features":     snap.Features,
		"active_polls": snap.ActivePolls,
	})
}

func (s *Server) handleWebhook(c *gin.Context) {
	var msg groupme.CallbackMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	// Only the monitored group may feed the bridge.
	if s.cfg.GroupMeGroupID == "" || msg.GroupID != s.cfg.GroupMeGroupID {
		log.Printf("🚫 Webhook for unmonitored group %q ignored", msg.GroupID)
		c.JSON(http.StatusForbidden, gin.H{"error": "unknown group"})
		return
	}

	if ev, ok := groupme.NormalizeCallback(msg); ok {
		s.publish(ev)
	}
	c.Status(http.StatusOK)
}
