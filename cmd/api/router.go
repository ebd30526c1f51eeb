package api

import (
	"net/http"

	ingestDelivery "mailatlas-backend/internal/ingest/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, ingestHandler *ingestDelivery.IngestHandler) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		grants := api.Group("/grants")
		{
			grants.POST("/:id/sync", ingestHandler.StartSync)
		}

		jobs := api.Group("/jobs")
		{
			jobs.GET("/:id", ingestHandler.GetJob)
		}
	}
}
