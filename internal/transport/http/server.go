package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"rudder/internal/logger"
	"rudder/internal/store"

	"github.com/gin-gonic/gin"
)

// Server exposes read-only session state over HTTP: bots, their
// orders and their portfolio curves.
type Server struct {
	addr   string
	router *gin.Engine
	srv    *http.Server
}

func NewServer(addr string, st store.Store) (*Server, error) {
	if addr == "" {
		addr = ":9980"
	}
	if st == nil {
		return nil, errors.New("http server requires a store")
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/bots", func(c *gin.Context) {
		bots, err := st.ListBots(c.Request.Context(), queryLimit(c, 100))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bots": bots})
	})
	api.GET("/bots/:uid", func(c *gin.Context) {
		bot, ok, err := st.GetBot(c.Request.Context(), c.Param("uid"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
			return
		}
		c.JSON(http.StatusOK, bot)
	})
	api.GET("/bots/:uid/orders", func(c *gin.Context) {
		orders, err := st.ListOrders(c.Request.Context(), c.Param("uid"), queryLimit(c, 1000))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	})
	api.GET("/bots/:uid/portfolio", func(c *gin.Context) {
		snaps, err := st.ListPortfolio(c.Request.Context(), c.Param("uid"), queryLimit(c, 10000))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"portfolio": snaps})
	})

	return &Server{addr: addr, router: router}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http api listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debugf("http %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started).Round(time.Millisecond))
	}
}
