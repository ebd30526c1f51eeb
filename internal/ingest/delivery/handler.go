package delivery

import (
	"errors"
	"net/http"

	grantrepo "mailatlas-backend/internal/grant/repository"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/internal/ingest/usecase"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// IngestHandler exposes the operator surface: start a sync, read job
// progress.
type IngestHandler struct {
	scheduler  *usecase.Scheduler
	jobs       repository.JobRepository
	grants     grantrepo.GrantRepository
	defaultMax int
}

// NewIngestHandler creates an IngestHandler. defaultMax caps a sync when the
// request body gives no bound.
func NewIngestHandler(scheduler *usecase.Scheduler, jobs repository.JobRepository, grants grantrepo.GrantRepository, defaultMax int) *IngestHandler {
	if defaultMax <= 0 {
		defaultMax = 1000
	}
	return &IngestHandler{
		scheduler:  scheduler,
		jobs:       jobs,
		grants:     grants,
		defaultMax: defaultMax,
	}
}

// StartSyncRequest is the optional body of POST /api/grants/:id/sync.
type StartSyncRequest struct {
	Max int `json:"max"`
}

// StartSync enqueues a sync for a grant. The window start comes from the
// grant's checkpoint; callers only bound the message count.
//
// POST /api/grants/:id/sync
func (h *IngestHandler) StartSync(c *gin.Context) {
	grantID := c.Param("id")

	grant, err := h.grants.FindByID(grantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up grant"})
		return
	}
	if grant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "grant not found"})
		return
	}

	// Body is optional; malformed JSON is still rejected.
	var req StartSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Max <= 0 {
		req.Max = h.defaultMax
	}

	job, err := h.scheduler.StartSync(c.Request.Context(), grantID, req.Max)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedJob) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sync"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"type":   job.Type,
		"status": job.Status,
		"max":    job.Max,
	})
}

// GetJob returns one job's progress record.
//
// GET /api/jobs/:id
func (h *IngestHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":             job.ID,
		"grantId":           job.GrantID,
		"type":              job.Type,
		"status":            job.Status,
		"processed":         job.Processed,
		"max":               job.Max,
		"indexedVectors":    job.IndexedVectors,
		"lastSyncTimestamp": job.LastSyncTimestamp,
		"message":           job.Message,
		"updatedAt":         job.UpdatedAt,
	})
}
