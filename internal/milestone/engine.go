package milestone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/clock"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/ident"
	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
)

// Store is the subset of the entity store milestone billing needs.
type Store interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	GetMilestone(ctx context.Context, id string) (domain.Milestone, error)
	ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error)
	AppendMilestone(ctx context.Context, m domain.Milestone) (domain.Milestone, error)
	InsertMilestoneAt(ctx context.Context, m domain.Milestone, position int) (domain.Milestone, error)
	SetMilestoneOrder(ctx context.Context, projectID string, ids []string) error
	UpdateMilestone(ctx context.Context, m domain.Milestone, expected domain.MilestoneStatus) error
	DeleteMilestone(ctx context.Context, id string) error
	CreateInvoice(ctx context.Context, inv domain.Invoice) (bool, error)
	GetInvoiceByMilestone(ctx context.Context, milestoneID string) (domain.Invoice, error)
}

// transitions is the milestone lifecycle. invoiced is terminal.
var transitions = map[domain.MilestoneStatus][]domain.MilestoneStatus{
	domain.MilestonePlanned:  {domain.MilestoneActive, domain.MilestoneComplete},
	domain.MilestoneActive:   {domain.MilestoneComplete, domain.MilestonePlanned},
	domain.MilestoneComplete: {domain.MilestoneActive, domain.MilestoneInvoiced},
	domain.MilestoneInvoiced: nil,
}

// CanTransition reports whether a milestone may move from one status to
// another.
func CanTransition(from, to domain.MilestoneStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the id generator for milestones and invoices.
func WithIDs(g ident.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithGSTRate sets the default tax rate for milestones without an override.
func WithGSTRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.gstRate = rate }
}

// WithAutoInvoice makes a completing transition raise the invoice.
func WithAutoInvoice(enabled bool) Option {
	return func(e *Engine) { e.autoInvoice = enabled }
}

// Engine runs the billing milestone lifecycle and ordering.
type Engine struct {
	store       Store
	clock       clock.Clock
	ids         ident.Generator
	logger      *slog.Logger
	gstRate     decimal.Decimal
	autoInvoice bool
}

// New creates a milestone engine.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		clock:   clock.System{},
		ids:     ident.UUIDv7{},
		logger:  slog.Default(),
		gstRate: money.DefaultGSTRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewMilestone describes a milestone to add to a project.
type NewMilestone struct {
	ProjectID string              `json:"project_id"`
	Title     string              `json:"title"`
	Amount    decimal.Decimal     `json:"amount"`
	GSTRate   decimal.NullDecimal `json:"gst_rate"`
}

// CompleteResult reports whether Complete changed anything and, with
// auto-invoicing, the invoice it raised.
type CompleteResult struct {
	Milestone domain.Milestone `json:"milestone"`
	Changed   bool             `json:"changed"`
	Invoice   *domain.Invoice  `json:"invoice,omitempty"`
}

// InvoiceResult is the invoice for a milestone and whether this call
// created it.
type InvoiceResult struct {
	Invoice   domain.Invoice   `json:"invoice"`
	Milestone domain.Milestone `json:"milestone"`
	Created   bool             `json:"created"`
}

// Breakdown computes subtotal, GST and total for a milestone, using its own
// rate when set and the engine default otherwise.
func (e *Engine) Breakdown(m domain.Milestone) money.Breakdown {
	return money.Compute(m.Amount, money.RateOr(m.GSTRate, e.gstRate))
}

// Create appends a planned milestone to the end of its project.
func (e *Engine) Create(ctx context.Context, in NewMilestone) (domain.Milestone, error) {
	m, err := e.prepare(ctx, in)
	if err != nil {
		return domain.Milestone{}, err
	}
	m, err = e.store.AppendMilestone(ctx, m)
	if err != nil {
		return domain.Milestone{}, apperr.Transient("create milestone", err)
	}
	return m, nil
}

// InsertAt adds a planned milestone at position, clamped to 0..N. The
// milestones at and after position move down by one before the insert.
func (e *Engine) InsertAt(ctx context.Context, in NewMilestone, position int) (domain.Milestone, error) {
	m, err := e.prepare(ctx, in)
	if err != nil {
		return domain.Milestone{}, err
	}
	m, err = e.store.InsertMilestoneAt(ctx, m, position)
	if err != nil {
		return domain.Milestone{}, apperr.Transient("insert milestone", err)
	}
	return m, nil
}

func (e *Engine) prepare(ctx context.Context, in NewMilestone) (domain.Milestone, error) {
	var reasons []string
	if strings.TrimSpace(in.Title) == "" {
		reasons = append(reasons, "title is required")
	}
	if in.Amount.IsNegative() {
		reasons = append(reasons, "amount must not be negative")
	}
	if in.GSTRate.Valid && in.GSTRate.Decimal.IsNegative() {
		reasons = append(reasons, "gst rate must not be negative")
	}
	if len(reasons) > 0 {
		return domain.Milestone{}, apperr.Validation("invalid milestone", reasons...)
	}

	if _, err := e.store.GetProject(ctx, in.ProjectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Milestone{}, apperr.NotFound("project", in.ProjectID)
		}
		return domain.Milestone{}, apperr.Transient("load project", err)
	}

	return domain.Milestone{
		ID:        e.ids.NewID(),
		ProjectID: in.ProjectID,
		Title:     strings.TrimSpace(in.Title),
		Amount:    money.Round(in.Amount),
		GSTRate:   in.GSTRate,
		Status:    domain.MilestonePlanned,
		CreatedAt: e.clock.Now(),
	}, nil
}

// List returns a project's milestones in order.
func (e *Engine) List(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	ms, err := e.store.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, apperr.Transient("list milestones", err)
	}
	return ms, nil
}

// Reorder sets each milestone's position to its index in ids. ids must name
// every milestone of the project exactly once. Applying the same list twice
// gives the same order.
func (e *Engine) Reorder(ctx context.Context, projectID string, ids []string) ([]domain.Milestone, error) {
	current, err := e.List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	want := make([]string, len(current))
	for i, m := range current {
		want[i] = m.ID
	}
	got := slices.Clone(ids)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		return nil, apperr.Validation("order must list every milestone of the project exactly once")
	}

	if err := e.store.SetMilestoneOrder(ctx, projectID, ids); err != nil {
		return nil, apperr.Transient("reorder milestones", err)
	}
	return e.List(ctx, projectID)
}

// Transition moves a milestone along its lifecycle. Moving to invoiced
// raises the invoice; see Invoice.
func (e *Engine) Transition(ctx context.Context, id string, to domain.MilestoneStatus) (domain.Milestone, error) {
	if to == domain.MilestoneInvoiced {
		m, err := e.load(ctx, id)
		if err != nil {
			return domain.Milestone{}, err
		}
		if !CanTransition(m.Status, to) {
			return domain.Milestone{}, invalidTransition(m.Status, to)
		}
		res, err := e.Invoice(ctx, id)
		return res.Milestone, err
	}

	m, err := e.load(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	from := m.Status
	if !CanTransition(from, to) {
		return domain.Milestone{}, invalidTransition(from, to)
	}

	m.Status = to
	if to == domain.MilestoneComplete {
		now := e.clock.Now()
		m.CompletedAt = &now
	} else {
		m.CompletedAt = nil
	}
	if err := e.save(ctx, m, from); err != nil {
		return domain.Milestone{}, err
	}
	e.logger.Info("milestone transitioned", "milestone_id", id, "from", from, "to", to)
	return m, nil
}

// Complete marks a milestone complete. A milestone that is already invoiced
// is returned unchanged with Changed=false, so a repeated trigger never
// bills twice. With auto-invoicing on, a milestone left complete but
// uninvoiced by an earlier failed call is invoiced now; Invoice is
// idempotent, so this never raises a second invoice either.
func (e *Engine) Complete(ctx context.Context, id string) (CompleteResult, error) {
	m, err := e.load(ctx, id)
	if err != nil {
		return CompleteResult{}, err
	}

	var res CompleteResult
	switch {
	case m.Status == domain.MilestoneInvoiced:
		return CompleteResult{Milestone: m}, nil
	case m.Status == domain.MilestoneComplete:
		if !e.autoInvoice || m.InvoiceID.IsSet() {
			return CompleteResult{Milestone: m}, nil
		}
		e.logger.Info("resuming auto-invoice for complete milestone", "milestone_id", id)
		res.Milestone = m
	default:
		m, err = e.Transition(ctx, id, domain.MilestoneComplete)
		if err != nil {
			return CompleteResult{}, err
		}
		res = CompleteResult{Milestone: m, Changed: true}
	}

	if e.autoInvoice {
		inv, err := e.Invoice(ctx, id)
		if err != nil {
			return res, err
		}
		res.Milestone = inv.Milestone
		res.Invoice = &inv.Invoice
		res.Changed = res.Changed || inv.Milestone.Status != m.Status
	}
	return res, nil
}

// Invoice raises the invoice for a complete milestone and marks the
// milestone invoiced. An already invoiced milestone returns its existing
// invoice with Created=false. An invoice left behind by an interrupted
// earlier call is reused rather than duplicated.
func (e *Engine) Invoice(ctx context.Context, id string) (InvoiceResult, error) {
	m, err := e.load(ctx, id)
	if err != nil {
		return InvoiceResult{}, err
	}

	switch m.Status {
	case domain.MilestoneInvoiced:
		inv, err := e.invoiceFor(ctx, m.ID)
		if err != nil {
			return InvoiceResult{}, err
		}
		return InvoiceResult{Invoice: inv, Milestone: m}, nil
	case domain.MilestoneComplete:
	default:
		return InvoiceResult{}, apperr.Precondition(fmt.Sprintf("milestone must be complete to invoice, milestone is %s", m.Status))
	}

	project, err := e.store.GetProject(ctx, m.ProjectID)
	if err != nil {
		return InvoiceResult{}, apperr.Transient("load project", err)
	}

	b := e.Breakdown(m)
	inv := domain.Invoice{
		ID:            e.ids.NewID(),
		ClientID:      domain.Ref(project.ClientID),
		ProjectID:     domain.Ref(project.ID),
		MilestoneID:   domain.Ref(m.ID),
		Subtotal:      b.Subtotal,
		GSTAmount:     b.GST,
		Total:         b.Total,
		PaymentStatus: domain.PaymentUnpaid,
		CreatedAt:     e.clock.Now(),
	}
	created, err := e.store.CreateInvoice(ctx, inv)
	if err != nil {
		return InvoiceResult{}, apperr.Transient("create invoice", err)
	}
	if !created {
		if inv, err = e.invoiceFor(ctx, m.ID); err != nil {
			return InvoiceResult{}, err
		}
	}

	m.Status = domain.MilestoneInvoiced
	m.InvoiceID = domain.Ref(inv.ID)
	if err := e.store.UpdateMilestone(ctx, m, domain.MilestoneComplete); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return InvoiceResult{}, apperr.Transient("mark milestone invoiced", err)
		}
		// Someone else moved it on; report what is stored now.
		current, lerr := e.load(ctx, id)
		if lerr != nil {
			return InvoiceResult{}, lerr
		}
		if current.Status != domain.MilestoneInvoiced {
			return InvoiceResult{}, apperr.Precondition(fmt.Sprintf("milestone %s changed concurrently, now %s", id, current.Status))
		}
		return InvoiceResult{Invoice: inv, Milestone: current}, nil
	}

	e.logger.Info("milestone invoiced",
		"milestone_id", m.ID, "invoice_id", inv.ID, "total", inv.Total.StringFixed(money.Places))
	return InvoiceResult{Invoice: inv, Milestone: m, Created: created}, nil
}

// Delete removes a milestone that has not been invoiced and closes the gap
// in its project's order.
func (e *Engine) Delete(ctx context.Context, id string) error {
	err := e.store.DeleteMilestone(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("milestone", id)
	case errors.Is(err, store.ErrConflict):
		return apperr.Precondition("invoiced milestones cannot be deleted")
	default:
		return apperr.Transient("delete milestone", err)
	}
}

func (e *Engine) invoiceFor(ctx context.Context, milestoneID string) (domain.Invoice, error) {
	inv, err := e.store.GetInvoiceByMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Invoice{}, apperr.Transient("load milestone invoice", err)
	}
	return inv, nil
}

func (e *Engine) load(ctx context.Context, id string) (domain.Milestone, error) {
	m, err := e.store.GetMilestone(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Milestone{}, apperr.NotFound("milestone", id)
	}
	if err != nil {
		return domain.Milestone{}, apperr.Transient("load milestone", err)
	}
	return m, nil
}

func (e *Engine) save(ctx context.Context, m domain.Milestone, from domain.MilestoneStatus) error {
	err := e.store.UpdateMilestone(ctx, m, from)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return apperr.Precondition(fmt.Sprintf("milestone %s changed concurrently, no longer %s", m.ID, from))
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("milestone", m.ID)
	default:
		return apperr.Transient("save milestone", err)
	}
}

func invalidTransition(from, to domain.MilestoneStatus) error {
	return apperr.Precondition(fmt.Sprintf("cannot move milestone from %s to %s", from, to))
}
