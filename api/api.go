package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec"
	"github.com/jerry-enebeli/bankrec/api/middleware"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	bankrec *bankrec.BankRec
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/companies", a.CreateCompany)
	router.GET("/companies/:id", a.GetCompany)
	router.POST("/accounts", a.CreateAccount)
	router.POST("/taxes", a.CreateTax)
	router.POST("/rates", a.UpsertCurrencyRate)

	router.POST("/partners", a.CreatePartner)
	router.POST("/partners/:id/bank-accounts", a.AddPartnerBankAccount)

	router.POST("/open-items", a.CreateOpenItem)
	router.GET("/open-items/:id", a.GetOpenItem)

	router.POST("/statement-lines", a.CreateStatementLine)
	router.POST("/statement-lines/import", a.ImportStatementLines)
	router.GET("/statement-lines/:id", a.GetStatementLine)
	router.POST("/statement-lines/:id/resolve-partner", a.ResolvePartner)

	session := router.Group("/statement-lines/:id/reconciliation")
	session.POST("", a.OpenReconciliation)
	session.GET("", a.OpenReconciliation)
	session.POST("/matched-items", a.AddMatchedItem)
	session.DELETE("/matched-items/:item_id", a.RemoveMatchedItem)
	session.POST("/lines", a.AddManualLine)
	session.PATCH("/lines/:index", a.EditLine)
	session.DELETE("/lines/:index", a.RemoveLine)
	session.POST("/apply-rules", a.ApplyMatchingRules)
	session.POST("/reconcile-model/:model_id", a.SelectReconcileModel)
	session.POST("/validate", a.ValidateReconciliation)
	session.POST("/reset", a.ResetReconciliation)
	session.DELETE("", a.DiscardReconciliation)

	router.POST("/reconcile-models", a.CreateReconcileModel)
	router.GET("/reconcile-models", a.ListReconcileModels)
	router.GET("/reconcile-models/:id", a.GetReconcileModel)
	router.PUT("/reconcile-models/:id", a.UpdateReconcileModel)
	router.DELETE("/reconcile-models/:id", a.DeleteReconcileModel)

	router.POST("/auto-reconcile/run", a.RunAutoReconcile)
	router.POST("/auto-reconcile/schedule", a.ScheduleAutoReconcile)
	router.GET("/auto-reconcile/runs", a.ListAutoReconcileRuns)
	return a.router
}

func NewAPI(b *bankrec.BankRec) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{bankrec: b, router: r}
}

// respondError renders err with the status its API error code maps to.
func respondError(c *gin.Context, err error) {
	apiErr := apierror.FromDomain(err)
	body := gin.H{"error": apiErr.Message, "code": apiErr.Code}
	if apiErr.Code == apierror.ErrInvalidInput && apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
