package api

import (
	"context"
	"net/http"
	"time"

	grantrepo "mailatlas-backend/internal/grant/repository"
	ingestDelivery "mailatlas-backend/internal/ingest/delivery"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/internal/ingest/usecase"

	"github.com/gin-gonic/gin"
)

// Handler owns the HTTP server.
type Handler struct {
	server *http.Server
}

func NewHandler(scheduler *usecase.Scheduler, jobs repository.JobRepository, grants grantrepo.GrantRepository, defaultMax int) *Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	ingestHandler := ingestDelivery.NewIngestHandler(scheduler, jobs, grants, defaultMax)
	SetupRoutes(r, ingestHandler)

	return &Handler{
		server: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (h *Handler) Start(addr string) error {
	h.server.Addr = addr
	err := h.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}
