package scenario

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/conversion"
	"github.com/vanderhaka/jarve-agency-sub002/internal/document"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/milestone"
	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
)

// operation runs one step. It returns the success message and the id a
// "save" binds.
type operation func(ctx context.Context, rn *run, a args) (string, string, error)

// operations lists every op a scenario may use.
var operations = map[string]operation{
	// seeding
	"create_lead":    createLead,
	"create_client":  createClient,
	"create_contact": createContact,
	"create_project": createProject,
	"create_invoice": createInvoice,
	"advance_clock":  advanceClock,

	// conversion
	"convert_lead": convertLead,

	// documents
	"create_document":     createDocument,
	"update_document":     updateDocument,
	"transition_document": transitionDocument,
	"send_document":       sendDocument,
	"view_document":       viewDocument,
	"sign_document":       signDocument,
	"reject_document":     rejectDocument,
	"revoke_token":        revokeToken,

	// milestones
	"create_milestone":     createMilestone,
	"transition_milestone": transitionMilestone,
	"complete_milestone":   completeMilestone,
	"invoice_milestone":    invoiceMilestone,
	"reorder_milestones":   reorderMilestones,
	"delete_milestone":     deleteMilestone,

	// payments
	"start_checkout": startCheckout,
	"webhook":        webhook,
	"mark_paid":      markPaid,
	"mark_failed":    markFailed,
	"sweep":          sweep,
}

func seedFailed(what string, err error) error {
	return apperr.Transient("seed "+what, err)
}

func createLead(ctx context.Context, rn *run, a args) (string, string, error) {
	lead := domain.Lead{
		ID:        a.str("id"),
		Name:      a.str("name"),
		Email:     a.str("email"),
		Company:   a.str("company"),
		Message:   a.str("message"),
		Status:    domain.LeadStatus(a.str("status")),
		CreatedAt: rn.clock.Now(),
	}
	if err := rn.store.CreateLead(ctx, lead); err != nil {
		return "", "", seedFailed("lead", err)
	}
	return "lead created", lead.ID, nil
}

func createClient(ctx context.Context, rn *run, a args) (string, string, error) {
	c := domain.Client{
		ID:        a.str("id"),
		Name:      a.str("name"),
		Email:     domain.NormalizeEmail(a.str("email")),
		Company:   a.str("company"),
		CreatedAt: rn.clock.Now(),
	}
	if _, err := rn.store.CreateClient(ctx, c); err != nil {
		return "", "", seedFailed("client", err)
	}
	return "client created", c.ID, nil
}

func createContact(ctx context.Context, rn *run, a args) (string, string, error) {
	role := a.str("role")
	if role == "" {
		role = conversion.ContactRole
	}
	u := domain.ClientUser{
		ID:        a.str("id"),
		ClientID:  a.str("client_id"),
		Name:      a.str("name"),
		Email:     domain.NormalizeEmail(a.str("email")),
		Role:      role,
		CreatedAt: rn.clock.Now(),
	}
	if _, err := rn.store.CreateClientUser(ctx, u); err != nil {
		return "", "", seedFailed("contact", err)
	}
	return "contact created", u.ID, nil
}

func createProject(ctx context.Context, rn *run, a args) (string, string, error) {
	p := domain.Project{
		ID:        a.str("id"),
		ClientID:  a.str("client_id"),
		Name:      a.str("name"),
		Type:      a.str("type"),
		Status:    a.str("status"),
		CreatedAt: rn.clock.Now(),
	}
	if err := rn.store.CreateProject(ctx, p); err != nil {
		return "", "", seedFailed("project", err)
	}
	return "project created", p.ID, nil
}

// createInvoice seeds an invoice directly. subtotal defaults to total and
// payment_status to unpaid.
func createInvoice(ctx context.Context, rn *run, a args) (string, string, error) {
	total, err := a.decimal("total")
	if err != nil {
		return "", "", err
	}
	subtotal := total
	if a.has("subtotal") {
		if subtotal, err = a.decimal("subtotal"); err != nil {
			return "", "", err
		}
	}
	status := domain.PaymentStatus(a.str("payment_status"))
	if status == domain.PaymentNone {
		status = domain.PaymentUnpaid
	}
	inv := domain.Invoice{
		ID:            a.str("id"),
		ClientID:      domain.Ref(a.str("client_id")),
		ProjectID:     domain.Ref(a.str("project_id")),
		Subtotal:      money.Round(subtotal),
		GSTAmount:     money.Round(total.Sub(subtotal)),
		Total:         money.Round(total),
		PaymentStatus: status,
		XeroInvoiceID: domain.Ref(a.str("xero_invoice_id")),
		CreatedAt:     rn.clock.Now(),
	}
	if _, err := rn.store.CreateInvoice(ctx, inv); err != nil {
		return "", "", seedFailed("invoice", err)
	}
	return "invoice created", inv.ID, nil
}

func advanceClock(_ context.Context, rn *run, a args) (string, string, error) {
	d, err := a.duration("by")
	if err != nil {
		return "", "", err
	}
	rn.clock.Advance(d)
	return fmt.Sprintf("clock advanced by %s", d), "", nil
}

// convertLead saves the project id.
func convertLead(ctx context.Context, rn *run, a args) (string, string, error) {
	res, err := rn.conversion.ConvertLead(ctx, a.str("lead_id"), conversion.Input{
		ProjectName:   a.str("project_name"),
		ProjectType:   a.str("project_type"),
		ProjectStatus: a.str("project_status"),
		AssignedTo:    domain.Ref(a.str("assigned_to")),
	}, a.str("employee_id"))
	if err != nil {
		return "", "", err
	}
	if res.LinkedExisting {
		return "lead converted to existing client", res.ProjectID, nil
	}
	return "lead converted", res.ProjectID, nil
}

func createDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	doc, err := rn.documents.Create(ctx, document.Draft{
		Kind:      domain.DocumentKind(a.str("kind")),
		Title:     a.str("title"),
		Content:   a.str("content"),
		LeadID:    domain.Ref(a.str("lead_id")),
		ClientID:  domain.Ref(a.str("client_id")),
		ProjectID: domain.Ref(a.str("project_id")),
	})
	if err != nil {
		return "", "", err
	}
	return "document created", doc.ID, nil
}

func updateDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	doc, err := rn.documents.UpdateContent(ctx, a.str("document_id"), a.str("content"))
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("document at version %d", doc.CurrentVersion), doc.ID, nil
}

func transitionDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	doc, err := rn.documents.Transition(ctx, a.str("document_id"), domain.DocumentStatus(a.str("status")))
	if err != nil {
		return "", "", err
	}
	return "document " + string(doc.Status), doc.ID, nil
}

// sendDocument saves the raw access token.
func sendDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	res, err := rn.documents.Send(ctx, a.str("document_id"), a.str("contact_id"))
	if err != nil {
		return "", "", err
	}
	return "document sent", res.Token, nil
}

func viewDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	doc, err := rn.documents.View(ctx, a.str("document_id"), a.str("token"))
	if err != nil {
		return "", "", err
	}
	return "document visible", doc.ID, nil
}

func signDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	res, err := rn.documents.Sign(ctx, a.str("document_id"), a.str("token"), document.SignInput{
		SignerName:   a.str("signer_name"),
		SignerEmail:  a.str("signer_email"),
		SignatureSVG: a.str("signature_svg"),
		IPAddress:    a.str("ip_address"),
	})
	if err != nil {
		return "", "", err
	}
	return "document signed", res.Document.ID, nil
}

func rejectDocument(ctx context.Context, rn *run, a args) (string, string, error) {
	doc, err := rn.documents.Reject(ctx, a.str("document_id"), a.str("token"), a.str("reason"))
	if err != nil {
		return "", "", err
	}
	return "document rejected", doc.ID, nil
}

func revokeToken(ctx context.Context, rn *run, a args) (string, string, error) {
	if err := rn.documents.RevokeToken(ctx, a.str("token")); err != nil {
		return "", "", err
	}
	return "token revoked", "", nil
}

// createMilestone appends, or inserts when position is given.
func createMilestone(ctx context.Context, rn *run, a args) (string, string, error) {
	amount, err := a.decimal("amount")
	if err != nil {
		return "", "", err
	}
	in := milestone.NewMilestone{
		ProjectID: a.str("project_id"),
		Title:     a.str("title"),
		Amount:    amount,
	}
	if a.has("gst_rate") {
		rate, err := a.decimal("gst_rate")
		if err != nil {
			return "", "", err
		}
		in.GSTRate = decimal.NewNullDecimal(rate)
	}

	var m domain.Milestone
	if a.has("position") {
		pos, err := a.integer("position")
		if err != nil {
			return "", "", err
		}
		m, err = rn.milestones.InsertAt(ctx, in, pos)
		if err != nil {
			return "", "", err
		}
	} else if m, err = rn.milestones.Create(ctx, in); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("milestone created at %d", m.SortOrder), m.ID, nil
}

func transitionMilestone(ctx context.Context, rn *run, a args) (string, string, error) {
	m, err := rn.milestones.Transition(ctx, a.str("milestone_id"), domain.MilestoneStatus(a.str("status")))
	if err != nil {
		return "", "", err
	}
	return "milestone " + string(m.Status), m.ID, nil
}

// completeMilestone saves the auto-raised invoice id when there is one and
// the milestone id otherwise.
func completeMilestone(ctx context.Context, rn *run, a args) (string, string, error) {
	res, err := rn.milestones.Complete(ctx, a.str("milestone_id"))
	if err != nil {
		return "", "", err
	}
	if !res.Changed {
		return "milestone already " + string(res.Milestone.Status), res.Milestone.ID, nil
	}
	if res.Invoice != nil {
		return "milestone invoiced for " + res.Invoice.Total.StringFixed(money.Places), res.Invoice.ID, nil
	}
	return "milestone complete", res.Milestone.ID, nil
}

// invoiceMilestone saves the invoice id.
func invoiceMilestone(ctx context.Context, rn *run, a args) (string, string, error) {
	res, err := rn.milestones.Invoice(ctx, a.str("milestone_id"))
	if err != nil {
		return "", "", err
	}
	if !res.Created {
		return "invoice already exists", res.Invoice.ID, nil
	}
	return "invoice created for " + res.Invoice.Total.StringFixed(money.Places), res.Invoice.ID, nil
}

func reorderMilestones(ctx context.Context, rn *run, a args) (string, string, error) {
	ms, err := rn.milestones.Reorder(ctx, a.str("project_id"), a.list("ids"))
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%d milestones reordered", len(ms)), a.str("project_id"), nil
}

func deleteMilestone(ctx context.Context, rn *run, a args) (string, string, error) {
	if err := rn.milestones.Delete(ctx, a.str("milestone_id")); err != nil {
		return "", "", err
	}
	return "milestone deleted", "", nil
}

func startCheckout(ctx context.Context, rn *run, a args) (string, string, error) {
	id := a.str("invoice_id")
	if err := rn.reconcile.MarkProcessing(ctx, id, a.str("session_id")); err != nil {
		return "", "", err
	}
	return "checkout started", id, nil
}

// webhook delivers an already verified event. object is the event's data
// object in the processor's field names.
func webhook(ctx context.Context, rn *run, a args) (string, string, error) {
	raw, err := json.Marshal(a["object"])
	if err != nil {
		return "", "", apperr.Validation("object is not encodable", err.Error())
	}
	ev := payments.Event{ID: a.str("id"), Type: a.str("type"), Created: rn.clock.Now().Unix()}
	ev.Data.Object = raw

	res, err := rn.reconcile.HandleEvent(ctx, ev)
	if err != nil {
		return "", "", err
	}
	msg := "event " + string(res.Action)
	if (res.Action == reconcile.ActionPaid || res.Action == reconcile.ActionFailed) && !res.Changed {
		msg += " (no change)"
	}
	return msg, res.InvoiceID, nil
}

func markPaid(ctx context.Context, rn *run, a args) (string, string, error) {
	amount, err := a.decimal("amount")
	if err != nil {
		return "", "", err
	}
	method := a.str("method")
	if method == "" {
		method = reconcile.SourceManual
	}
	res, err := rn.reconcile.MarkPaid(ctx, reconcile.PaidInput{
		InvoiceID: a.str("invoice_id"),
		Reference: a.str("reference"),
		Amount:    amount,
		Method:    method,
	})
	if err != nil {
		return "", "", err
	}
	if !res.Transitioned {
		return "invoice already settled", res.Invoice.ID, nil
	}
	return "invoice paid", res.Invoice.ID, nil
}

func markFailed(ctx context.Context, rn *run, a args) (string, string, error) {
	id := a.str("invoice_id")
	changed, err := rn.reconcile.MarkFailed(ctx, id, a.str("message"))
	if err != nil {
		return "", "", err
	}
	if !changed {
		return "invoice not changed", id, nil
	}
	return "invoice marked failed", id, nil
}

func sweep(ctx context.Context, rn *run, _ args) (string, string, error) {
	res, err := rn.reconcile.Sweep(ctx)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("swept %d: %d paid, %d failed, %d pending, %d errors",
		res.Checked, res.Paid, res.MarkedFailed, res.Pending, res.Failed), "", nil
}
