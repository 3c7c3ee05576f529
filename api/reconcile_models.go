package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/sirupsen/logrus"
)

// reconcileModelResponse carries the stored model and, when the change enabled unattended
// reconciliation, the report of the run made right after it.
type reconcileModelResponse struct {
	model.ReconcileModel
	AutoReconcileRun *model.AutoReconcileRun `json:"auto_reconcile_run,omitempty"`
}

// runAfterChange reconciles what the changed model now explains, within the synchronous time cap.
// A failed run does not fail the change.
func (a Api) runAfterChange(ctx context.Context, m model.ReconcileModel) *model.AutoReconcileRun {
	if !m.Active || !m.AllowsUnattended() {
		return nil
	}
	report, err := a.bankrec.Scheduler().RunSync(ctx)
	if err != nil {
		logrus.WithError(err).WithField("model_id", m.ModelID).Warn("auto-reconciliation after model change failed")
		return nil
	}
	return &report
}

func (a Api) CreateReconcileModel(c *gin.Context) {
	var m model.ReconcileModel
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreateReconcileModel(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reconcileModelResponse{
		ReconcileModel:   created,
		AutoReconcileRun: a.runAfterChange(c.Request.Context(), created),
	})
}

func (a Api) GetReconcileModel(c *gin.Context) {
	m, err := a.bankrec.GetReconcileModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (a Api) ListReconcileModels(c *gin.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
		return
	}
	models, err := a.bankrec.ListReconcileModels(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models)
}

func (a Api) UpdateReconcileModel(c *gin.Context) {
	var m model.ReconcileModel
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	m.ModelID = c.Param("id")
	updated, err := a.bankrec.UpdateReconcileModel(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reconcileModelResponse{
		ReconcileModel:   updated,
		AutoReconcileRun: a.runAfterChange(c.Request.Context(), updated),
	})
}

func (a Api) DeleteReconcileModel(c *gin.Context) {
	if err := a.bankrec.DeleteReconcileModel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reconcile model deleted successfully"})
}
