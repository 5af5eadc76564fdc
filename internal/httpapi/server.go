package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/conversion"
	"github.com/vanderhaka/jarve-agency-sub002/internal/document"
	"github.com/vanderhaka/jarve-agency-sub002/internal/milestone"
	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
)

// EmployeeHeader carries the id of the staff member making a request.
const EmployeeHeader = "X-Employee-ID"

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the engines the handlers call. Scheduler is optional.
type Deps struct {
	Store      Pinger
	Conversion *conversion.Engine
	Documents  *document.Engine
	Milestones *milestone.Engine
	Reconcile  *reconcile.Engine
	Scheduler  *reconcile.Scheduler

	WebhookSecret    string
	WebhookTolerance time.Duration

	Logger *slog.Logger
}

type server struct {
	Deps
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &server{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.POST("/leads/:id/convert", s.convertLead)

	api.POST("/documents", s.createDocument)
	api.POST("/documents/:id/send", s.sendDocument)
	api.POST("/documents/:id/transition", s.transitionDocument)
	api.PUT("/documents/:id/content", s.updateDocumentContent)

	api.GET("/projects/:id/milestones", s.listMilestones)
	api.POST("/projects/:id/milestones", s.createMilestone)
	api.PUT("/projects/:id/milestones/order", s.reorderMilestones)
	api.POST("/milestones/:id/transition", s.transitionMilestone)
	api.POST("/milestones/:id/complete", s.completeMilestone)
	api.POST("/milestones/:id/invoice", s.invoiceMilestone)
	api.DELETE("/milestones/:id", s.deleteMilestone)

	api.POST("/invoices/:id/checkout", s.startCheckout)
	api.POST("/invoices/:id/payments", s.recordPayment)
	api.POST("/reconcile/sweep", s.sweep)
	api.GET("/reconcile/status", s.sweepStatus)

	portal := r.Group("/portal")
	portal.GET("/documents/:id", s.viewDocument)
	portal.POST("/documents/:id/sign", s.signDocument)
	portal.POST("/documents/:id/reject", s.rejectDocument)

	r.POST("/webhooks/stripe", s.stripeWebhook)

	return r
}

func (s *server) health(c *gin.Context) {
	if s.Store != nil {
		if err := s.Store.Ping(c.Request.Context()); err != nil {
			fail(c, apperr.Transient("store unreachable", err))
			return
		}
	}
	ok(c, http.StatusOK, "ok", nil)
}

// envelope is the response body of every route.
type envelope struct {
	apperr.Outcome
	Data any `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Outcome: apperr.OK(message), Data: data})
}

func fail(c *gin.Context, err error) {
	out := apperr.FromError(err)
	c.JSON(StatusFor(out.Code), envelope{Outcome: out})
}

// invalidBody reports a request body that did not bind.
func invalidBody(c *gin.Context, err error) {
	fail(c, apperr.Validation("invalid request body", err.Error()))
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodePrecondition:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
