package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec"
	model2 "github.com/jerry-enebeli/bankrec/api/model"
	"github.com/jerry-enebeli/bankrec/balancer"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
	redlock "github.com/jerry-enebeli/bankrec/internal/lock"
	"github.com/jerry-enebeli/bankrec/model"
)

// reconciliationView is the session as the API returns it.
type reconciliationView struct {
	StatementLine  model.StatementLine           `json:"statement_line"`
	State          bankrec.State                 `json:"state"`
	Lines          []model.ReconciliationLine    `json:"lines"`
	Warnings       []model.DegenerateRateWarning `json:"warnings,omitempty"`
	AppliedModelID string                        `json:"applied_model_id,omitempty"`
	EntryID        string                        `json:"entry_id,omitempty"`
	Result         *bankrec.Result               `json:"result,omitempty"`
}

func newReconciliationView(r *bankrec.Reconciliation) reconciliationView {
	return reconciliationView{
		StatementLine:  r.StatementLine(),
		State:          r.State(),
		Lines:          r.Lines(),
		Warnings:       r.Warnings(),
		AppliedModelID: r.AppliedModelID(),
		EntryID:        r.EntryID(),
	}
}

// updateSession runs fn on the session of the statement line in the route and renders the outcome.
func (a Api) updateSession(c *gin.Context, fn func(*bankrec.Reconciliation) error) (*bankrec.Reconciliation, bool) {
	r, err := a.bankrec.UpdateReconciliation(c.Request.Context(), c.Param("id"), fn)
	if err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			c.JSON(http.StatusConflict, gin.H{"error": "statement line is being processed, retry shortly"})
			return nil, false
		}
		respondError(c, err)
		return nil, false
	}
	return r, true
}

func (a Api) renderSession(c *gin.Context, fn func(*bankrec.Reconciliation) error) {
	if r, ok := a.updateSession(c, fn); ok {
		c.JSON(http.StatusOK, newReconciliationView(r))
	}
}

func lineIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "line index must be a number"})
		return 0, false
	}
	return index, true
}

// OpenReconciliation returns the current session of a statement line, seeding one when none is saved.
func (a Api) OpenReconciliation(c *gin.Context) {
	a.renderSession(c, func(*bankrec.Reconciliation) error { return nil })
}

func (a Api) AddMatchedItem(c *gin.Context) {
	var req model2.AddMatchedItem
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateAddMatchedItem(); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	item, err := a.bankrec.GetOpenItem(ctx, req.ItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	var opts []balancer.AddOption
	if req.Full {
		opts = append(opts, balancer.FullAllocation())
	}
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		if item.CompanyID != r.StatementLine().CompanyID {
			return apierror.NewAPIError(apierror.ErrBadRequest, "open item belongs to another company", nil)
		}
		if item.Reconciled {
			return apierror.NewAPIError(apierror.ErrBadRequest, "open item is already reconciled", nil)
		}
		_, err := r.AddMatchedItem(ctx, *item, opts...)
		return err
	})
}

func (a Api) RemoveMatchedItem(c *gin.Context) {
	ctx := c.Request.Context()
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		_, err := r.RemoveMatchedItem(ctx, c.Param("item_id"))
		return err
	})
}

func (a Api) AddManualLine(c *gin.Context) {
	var req model2.AddManualLine
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateAddManualLine(); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	taxes, err := a.bankrec.GetTaxes(ctx, req.TaxIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	line := balancer.ManualLine{
		AccountID:      req.AccountID,
		PartnerID:      req.PartnerID,
		Label:          req.Label,
		Currency:       req.Currency,
		AmountCurrency: req.AmountCurrency,
		Balance:        req.Balance,
		Taxes:          taxes,
		TaxIncluded:    req.TaxIncluded,
	}
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		_, err := r.AddManualLine(ctx, line)
		return err
	})
}

func (a Api) EditLine(c *gin.Context) {
	index, ok := lineIndex(c)
	if !ok {
		return
	}
	var req model2.EditLine
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateEditLine(); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	edit := balancer.Edit{Field: balancer.Field(req.Field), Value: req.Value, Amount: req.Amount}
	if edit.Field == balancer.FieldTaxes {
		taxes, err := a.bankrec.GetTaxes(ctx, req.TaxIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		edit.Taxes = taxes
	}
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		_, err := r.EditLine(ctx, index, edit)
		return err
	})
}

func (a Api) RemoveLine(c *gin.Context) {
	index, ok := lineIndex(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		_, err := r.RemoveLine(ctx, index)
		return err
	})
}

// ApplyMatchingRules runs the company's reconcile models against the session, as the scheduler would.
func (a Api) ApplyMatchingRules(c *gin.Context) {
	ctx := c.Request.Context()
	var app bankrec.Application
	r, ok := a.updateSession(c, func(r *bankrec.Reconciliation) error {
		var err error
		app, err = a.bankrec.ApplyMatchingRules(ctx, r)
		return err
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliation": newReconciliationView(r), "allow_auto": app.AllowAuto})
}

func (a Api) SelectReconcileModel(c *gin.Context) {
	ctx := c.Request.Context()
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		_, err := a.bankrec.SelectReconcileModelByID(ctx, r, c.Param("model_id"))
		return err
	})
}

// ValidateReconciliation posts the session. A posting refused for a domain reason answers 422 with the
// reason and keeps the session.
func (a Api) ValidateReconciliation(c *gin.Context) {
	ctx := c.Request.Context()
	var res bankrec.Result
	r, ok := a.updateSession(c, func(r *bankrec.Reconciliation) error {
		var err error
		res, err = r.Validate(ctx)
		return err
	})
	if !ok {
		return
	}
	view := newReconciliationView(r)
	view.Result = &res
	status := http.StatusOK
	if res.Outcome == bankrec.OutcomeSkipped {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, view)
}

func (a Api) ResetReconciliation(c *gin.Context) {
	ctx := c.Request.Context()
	a.renderSession(c, func(r *bankrec.Reconciliation) error {
		return r.Reset(ctx)
	})
}

func (a Api) DiscardReconciliation(c *gin.Context) {
	if err := a.bankrec.DiscardReconciliation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reconciliation session discarded"})
}
