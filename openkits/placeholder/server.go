package placeholder

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
)

// Players looks up the UUID of an online player by name.
type Players func(name string) (uuid.UUID, bool)

// Server serves placeholders over HTTP. Every request must carry the configured key in its
// Authorization header.
type Server struct {
	log      *slog.Logger
	resolver *Resolver
	players  Players
	key      string

	router *gin.Engine
	srv    *http.Server
}

// NewServer ...
func NewServer(log *slog.Logger, resolver *Resolver, players Players, key string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{log: log, resolver: resolver, players: players, key: key}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.authorize)
	s.router.GET("/placeholder/:player/:kit/:field", s.resolve)
	s.router.POST("/placeholder/expand", s.expand)
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen starts serving on the address in the background.
func (s *Server) Listen(addr string) {
	s.srv = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("placeholder server stopped", "address", addr, "error", err)
		}
	}()
	s.log.Info("Serving placeholders", "address", addr)
}

// Close stops the server, waiting for requests in progress until ctx is done.
func (s *Server) Close(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown placeholder server: %w", err)
	}
	return nil
}

// authorize rejects requests without the key.
func (s *Server) authorize(c *gin.Context) {
	if s.key == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader("authorization")), []byte(s.key)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// player resolves the player path or body parameter, either a UUID or the name of an online player.
func (s *Server) player(v string) (uuid.UUID, bool) {
	if id, err := uuid.Parse(v); err == nil {
		return id, true
	}
	if s.players == nil {
		return uuid.Nil, false
	}
	return s.players(v)
}

// resolve ...
func (s *Server) resolve(c *gin.Context) {
	id, ok := s.player(c.Param("player"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no player found"})
		return
	}
	v, err := s.resolver.Resolve(id, c.Param("kit"), c.Param("field"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"value": v})
	case errors.Is(err, engine.ErrUnknownKit), errors.Is(err, ErrNotLoaded):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnknownField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.Error("failed to resolve placeholder", "player", id, "kit", c.Param("kit"), "field", c.Param("field"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// expandRequest is the body of an expand request.
type expandRequest struct {
	Player string `json:"player" binding:"required"`
	Text   string `json:"text"`
}

// expand ...
func (s *Server) expand(c *gin.Context) {
	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, ok := s.player(req.Player)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no player found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": s.resolver.Expand(id, req.Text)})
}
