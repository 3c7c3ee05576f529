package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec"
	model2 "github.com/jerry-enebeli/bankrec/api/model"
)

// RunAutoReconcile runs one auto-reconciliation batch in the request, bounded by the synchronous cap.
func (a Api) RunAutoReconcile(c *gin.Context) {
	report, err := a.bankrec.Scheduler().RunSync(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ScheduleAutoReconcile asks the workers for a prompt run. Requests made while one is pending are
// coalesced into it.
func (a Api) ScheduleAutoReconcile(c *gin.Context) {
	var req model2.ScheduleAutoReconcile
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.JobID == "" {
		req.JobID = bankrec.AutoReconcileJobID
	}
	q := a.bankrec.Queue()
	if q == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue is not configured"})
		return
	}
	enqueued, err := q.ScheduleSoon(c.Request.Context(), req.JobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": req.JobID, "enqueued": enqueued})
}

func (a Api) ListAutoReconcileRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := a.bankrec.ListAutoReconcileRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}
