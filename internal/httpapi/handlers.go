package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/conversion"
	"github.com/vanderhaka/jarve-agency-sub002/internal/document"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/milestone"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
)

// maxWebhookBody bounds the webhook payload read.
const maxWebhookBody = 1 << 20

// bindOptional binds a JSON body when there is one.
func bindOptional(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *server) convertLead(c *gin.Context) {
	var in conversion.Input
	if err := bindOptional(c, &in); err != nil {
		invalidBody(c, err)
		return
	}
	res, err := s.Conversion.ConvertLead(c.Request.Context(), c.Param("id"), in, c.GetHeader(EmployeeHeader))
	if err != nil {
		fail(c, err)
		return
	}
	msg := "lead converted"
	if res.LinkedExisting {
		msg = "lead converted and linked to existing client"
	}
	ok(c, http.StatusOK, msg, res)
}

func (s *server) createDocument(c *gin.Context) {
	var in document.Draft
	if err := c.ShouldBindJSON(&in); err != nil {
		invalidBody(c, err)
		return
	}
	doc, err := s.Documents.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "document created", doc)
}

type sendRequest struct {
	ContactID string `json:"contact_id" binding:"required"`
}

func (s *server) sendDocument(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	res, err := s.Documents.Send(c.Request.Context(), c.Param("id"), req.ContactID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "document sent", res)
}

type documentTransitionRequest struct {
	Status domain.DocumentStatus `json:"status" binding:"required"`
}

func (s *server) transitionDocument(c *gin.Context) {
	var req documentTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	doc, err := s.Documents.StaffTransition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "document "+string(doc.Status), doc)
}

type contentRequest struct {
	Content string `json:"content"`
}

func (s *server) updateDocumentContent(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	doc, err := s.Documents.UpdateContent(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "document updated", doc)
}

func (s *server) viewDocument(c *gin.Context) {
	doc, err := s.Documents.View(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", doc)
}

type signRequest struct {
	Token        string `json:"token"`
	SignerName   string `json:"signer_name"`
	SignerEmail  string `json:"signer_email"`
	SignatureSVG string `json:"signature_svg"`
}

func (s *server) signDocument(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	res, err := s.Documents.Sign(c.Request.Context(), c.Param("id"), req.Token, document.SignInput{
		SignerName:   req.SignerName,
		SignerEmail:  req.SignerEmail,
		SignatureSVG: req.SignatureSVG,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "document signed", res)
}

type rejectRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

func (s *server) rejectDocument(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	doc, err := s.Documents.Reject(c.Request.Context(), c.Param("id"), req.Token, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "document rejected", doc)
}

func (s *server) listMilestones(c *gin.Context) {
	ms, err := s.Milestones.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", ms)
}

type createMilestoneRequest struct {
	Title   string              `json:"title"`
	Amount  decimal.Decimal     `json:"amount"`
	GSTRate decimal.NullDecimal `json:"gst_rate"`
	// Position inserts at an index instead of appending.
	Position *int `json:"position"`
}

func (s *server) createMilestone(c *gin.Context) {
	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	in := milestone.NewMilestone{
		ProjectID: c.Param("id"),
		Title:     req.Title,
		Amount:    req.Amount,
		GSTRate:   req.GSTRate,
	}

	var (
		m   domain.Milestone
		err error
	)
	if req.Position != nil {
		m, err = s.Milestones.InsertAt(c.Request.Context(), in, *req.Position)
	} else {
		m, err = s.Milestones.Create(c.Request.Context(), in)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "milestone created", m)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *server) reorderMilestones(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	ms, err := s.Milestones.Reorder(c.Request.Context(), c.Param("id"), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "milestones reordered", ms)
}

type milestoneTransitionRequest struct {
	Status domain.MilestoneStatus `json:"status" binding:"required"`
}

func (s *server) transitionMilestone(c *gin.Context) {
	var req milestoneTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	m, err := s.Milestones.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "milestone "+string(m.Status), m)
}

func (s *server) completeMilestone(c *gin.Context) {
	res, err := s.Milestones.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	msg := "milestone complete"
	if !res.Changed {
		msg = "milestone already " + string(res.Milestone.Status)
	}
	ok(c, http.StatusOK, msg, res)
}

func (s *server) invoiceMilestone(c *gin.Context) {
	res, err := s.Milestones.Invoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	ok(c, status, "milestone invoiced", res)
}

func (s *server) deleteMilestone(c *gin.Context) {
	if err := s.Milestones.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "milestone deleted", nil)
}

type checkoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (s *server) startCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	if err := s.Reconcile.MarkProcessing(c.Request.Context(), c.Param("id"), req.SessionID); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "checkout started", nil)
}

type paymentRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

// recordPayment settles an invoice paid outside the processor, such as by
// bank transfer.
func (s *server) recordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	res, err := s.Reconcile.MarkPaid(c.Request.Context(), reconcile.PaidInput{
		InvoiceID: c.Param("id"),
		Reference: req.Reference,
		Amount:    req.Amount,
		Method:    reconcile.SourceManual,
	})
	if err != nil {
		fail(c, err)
		return
	}
	msg := "invoice paid"
	if !res.Transitioned {
		msg = "invoice already settled"
	}
	ok(c, http.StatusOK, msg, res)
}

// sweep queues a run on the scheduler when one is running, so a manual
// sweep never overlaps a scheduled one. Without a scheduler it runs inline.
func (s *server) sweep(c *gin.Context) {
	if s.Scheduler != nil {
		s.Scheduler.Trigger()
		ok(c, http.StatusAccepted, "sweep queued", s.Scheduler.Status())
		return
	}
	res, err := s.Reconcile.Sweep(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "sweep finished", res)
}

func (s *server) sweepStatus(c *gin.Context) {
	if s.Scheduler == nil {
		fail(c, apperr.Precondition("reconciliation scheduler is not running"))
		return
	}
	ok(c, http.StatusOK, "ok", s.Scheduler.Status())
}

// stripeWebhook verifies and applies a processor event. A bad signature is
// 400 so the sender does not retry. A transient failure, or no signing
// secret configured, is 503 so it does.
func (s *server) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, apperr.Transient("read webhook body", err))
		return
	}

	ev, err := payments.ParseWebhook(payload, c.GetHeader(payments.SignatureHeader),
		s.WebhookSecret, s.WebhookTolerance)
	if errors.Is(err, payments.ErrNoSecret) {
		s.Logger.Error("webhook refused: stripe.webhook_secret is not configured")
		fail(c, apperr.Transient("webhooks are not configured", err))
		return
	}
	if err != nil {
		s.Logger.Warn("webhook rejected", "error", err)
		c.JSON(http.StatusBadRequest, envelope{Outcome: apperr.FromError(apperr.Validation("invalid webhook", err.Error()))})
		return
	}

	res, err := s.Reconcile.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		s.Logger.Warn("webhook not applied", "event_id", ev.ID, "type", ev.Type, "error", err)
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "event "+string(res.Action), res)
}
