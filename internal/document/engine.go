package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/clock"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/ident"
	"github.com/vanderhaka/jarve-agency-sub002/internal/notify"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
)

// Store is the subset of the entity store the document lifecycle needs.
type Store interface {
	CreateDocument(ctx context.Context, d domain.Document) error
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	UpdateDocument(ctx context.Context, d domain.Document, expected domain.DocumentStatus) error
	GetClientUser(ctx context.Context, id string) (domain.ClientUser, error)
	CreateAccessToken(ctx context.Context, tok domain.AccessToken) error
	GetAccessTokenByHash(ctx context.Context, hash string) (domain.AccessToken, error)
	RevokeAccessToken(ctx context.Context, hash string, at time.Time) (bool, error)
}

// errNotAccessible is returned for every failed token check, so a caller
// cannot tell a missing document from one they may not see.
const errNotAccessible = "document not accessible"

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for lifecycle stamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the id generator for documents and tokens.
func WithIDs(g ident.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier sets where "signed" events go.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithTokenSource replaces the access token generator.
func WithTokenSource(fn func() (string, error)) Option {
	return func(e *Engine) { e.newToken = fn }
}

// Engine runs the proposal/MSA lifecycle.
type Engine struct {
	store    Store
	clock    clock.Clock
	ids      ident.Generator
	logger   *slog.Logger
	notifier notify.Notifier
	newToken func() (string, error)
}

// New creates a document engine.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		clock:    clock.System{},
		ids:      ident.UUIDv7{},
		logger:   slog.Default(),
		newToken: domain.NewAccessToken,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Draft describes a new document.
type Draft struct {
	Kind      domain.DocumentKind `json:"kind"`
	Title     string              `json:"title"`
	Content   string              `json:"content"`
	LeadID    domain.Ref          `json:"lead_id"`
	ClientID  domain.Ref          `json:"client_id"`
	ProjectID domain.Ref          `json:"project_id"`
}

// SendResult is a sent document and the raw access token for its contact.
// The token is not stored and cannot be recovered later.
type SendResult struct {
	Document domain.Document `json:"document"`
	Token    string          `json:"token"`
}

// SignResult is a signed document and the attempted notification.
type SignResult struct {
	Document    domain.Document     `json:"document"`
	SideEffects []apperr.SideEffect `json:"side_effects,omitempty"`
}

// Create stores a new draft document at version 1.
func (e *Engine) Create(ctx context.Context, in Draft) (domain.Document, error) {
	if !in.Kind.Valid() {
		return domain.Document{}, apperr.Validation(fmt.Sprintf("unknown document kind %q", in.Kind))
	}
	doc := domain.Document{
		ID:             e.ids.NewID(),
		Kind:           in.Kind,
		Title:          strings.TrimSpace(in.Title),
		Status:         domain.DocumentDraft,
		CurrentVersion: 1,
		Content:        in.Content,
		LeadID:         in.LeadID,
		ClientID:       in.ClientID,
		ProjectID:      in.ProjectID,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.store.CreateDocument(ctx, doc); err != nil {
		return domain.Document{}, apperr.Transient("create document", err)
	}
	return doc, nil
}

// Transition moves a document to status to, stamping the matching
// timestamp. Pairs outside the lifecycle table fail with PRECONDITION.
func (e *Engine) Transition(ctx context.Context, id string, to domain.DocumentStatus) (domain.Document, error) {
	doc, err := e.load(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	from := doc.Status
	if !CanTransition(from, to) {
		return domain.Document{}, invalidTransition(from, to)
	}

	now := e.clock.Now()
	doc.Status = to
	switch to {
	case domain.DocumentSent:
		doc.SentAt = &now
	case domain.DocumentSigned:
		doc.SignedAt = &now
	case domain.DocumentRejected:
		doc.RejectedAt = &now
	case domain.DocumentArchived:
		doc.ArchivedAt = &now
	}

	if err := e.save(ctx, doc, from); err != nil {
		return domain.Document{}, err
	}
	e.logger.Info("document transitioned", "document_id", id, "from", from, "to", to)
	return doc, nil
}

// StaffTransition is Transition for staff callers. Signing and rejecting
// belong to the recipient and go through Sign and Reject; sending goes
// through Send so a token is issued.
func (e *Engine) StaffTransition(ctx context.Context, id string, to domain.DocumentStatus) (domain.Document, error) {
	switch to {
	case domain.DocumentSigned, domain.DocumentRejected:
		return domain.Document{}, apperr.Precondition(fmt.Sprintf("document cannot be %s by staff; use the portal sign/reject flow", to))
	case domain.DocumentSent:
		return domain.Document{}, apperr.Precondition("use send to deliver a document")
	}
	return e.Transition(ctx, id, to)
}

// Archive moves any non-archived document to archived.
func (e *Engine) Archive(ctx context.Context, id string) (domain.Document, error) {
	return e.Transition(ctx, id, domain.DocumentArchived)
}

// UpdateContent replaces the content of a draft and bumps its version.
func (e *Engine) UpdateContent(ctx context.Context, id, content string) (domain.Document, error) {
	doc, err := e.load(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.Status != domain.DocumentDraft {
		return domain.Document{}, apperr.Precondition(fmt.Sprintf("only draft documents can be edited, document is %s", doc.Status))
	}
	doc.Content = content
	doc.CurrentVersion++
	if err := e.save(ctx, doc, domain.DocumentDraft); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Send moves a draft to sent, binds it to contactID and issues that contact
// an access token. A document without a client adopts the contact's client.
func (e *Engine) Send(ctx context.Context, id, contactID string) (SendResult, error) {
	doc, err := e.load(ctx, id)
	if err != nil {
		return SendResult{}, err
	}
	if !CanTransition(doc.Status, domain.DocumentSent) {
		return SendResult{}, invalidTransition(doc.Status, domain.DocumentSent)
	}

	contact, err := e.store.GetClientUser(ctx, contactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SendResult{}, apperr.NotFound("contact", contactID)
		}
		return SendResult{}, apperr.Transient("load contact", err)
	}
	if doc.ClientID.IsSet() && doc.ClientID.String() != contact.ClientID {
		return SendResult{}, apperr.Validation("contact does not belong to the document's client")
	}

	token, err := e.IssueToken(ctx, contact.ID)
	if err != nil {
		return SendResult{}, err
	}

	now := e.clock.Now()
	doc.Status = domain.DocumentSent
	doc.ClientID = domain.Ref(contact.ClientID)
	doc.SentToContactID = domain.Ref(contact.ID)
	doc.SentAt = &now
	if err := e.save(ctx, doc, domain.DocumentDraft); err != nil {
		return SendResult{}, err
	}

	e.logger.Info("document sent", "document_id", id, "contact_id", contact.ID)
	return SendResult{Document: doc, Token: token}, nil
}

// Sign records a signature through the portal.
//
// Checks run in three stages: every validation problem with the submission
// is reported together; then the token must grant access to the document;
// then the document must be sent. A "signed" notification is attempted
// after the write and never fails the call.
func (e *Engine) Sign(ctx context.Context, id, token string, in SignInput) (SignResult, error) {
	if reasons := in.Validate(); len(reasons) > 0 {
		return SignResult{}, apperr.Validation("invalid signature", reasons...)
	}

	doc, err := e.authorize(ctx, id, token)
	if err != nil {
		return SignResult{}, err
	}
	if doc.Status != domain.DocumentSent {
		return SignResult{}, apperr.Precondition(fmt.Sprintf("document must be sent to be signed, document is %s", doc.Status))
	}

	now := e.clock.Now()
	doc.Status = domain.DocumentSigned
	doc.SignerName = strings.TrimSpace(in.SignerName)
	doc.SignerEmail = strings.TrimSpace(in.SignerEmail)
	doc.SignatureSVG = in.SignatureSVG
	doc.SignerIP = in.IPAddress
	doc.SignedAt = &now
	if err := e.save(ctx, doc, domain.DocumentSent); err != nil {
		return SignResult{}, err
	}

	log := e.logger.With("document_id", doc.ID)
	log.Info("document signed", "kind", doc.Kind)

	ev := notify.Event{
		Kind:     signedKind(doc.Kind),
		EntityID: doc.ID,
		ClientID: doc.ClientID.String(),
		At:       now,
		Attrs:    map[string]string{"signer_email": doc.SignerEmail},
	}
	effect := notify.BestEffort(ctx, log, e.notifier, ev)
	return SignResult{Document: doc, SideEffects: []apperr.SideEffect{effect}}, nil
}

// Reject records a rejection through the portal.
func (e *Engine) Reject(ctx context.Context, id, token, reason string) (domain.Document, error) {
	doc, err := e.authorize(ctx, id, token)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.Status != domain.DocumentSent {
		return domain.Document{}, apperr.Precondition(fmt.Sprintf("document must be sent to be rejected, document is %s", doc.Status))
	}

	now := e.clock.Now()
	doc.Status = domain.DocumentRejected
	doc.RejectedAt = &now
	doc.RejectionReason = strings.TrimSpace(reason)
	if err := e.save(ctx, doc, domain.DocumentSent); err != nil {
		return domain.Document{}, err
	}
	e.logger.Info("document rejected", "document_id", id)
	return doc, nil
}

// View returns a document if token grants access to it.
func (e *Engine) View(ctx context.Context, id, token string) (domain.Document, error) {
	return e.authorize(ctx, id, token)
}

// IssueToken creates an access token bound to a contact and returns the raw
// bearer string. Only its hash is stored.
func (e *Engine) IssueToken(ctx context.Context, contactID string) (string, error) {
	raw, err := e.newToken()
	if err != nil {
		return "", apperr.Transient("generate access token", err)
	}
	tok := domain.AccessToken{
		ID:        e.ids.NewID(),
		TokenHash: domain.HashAccessToken(raw),
		ContactID: contactID,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.CreateAccessToken(ctx, tok); err != nil {
		return "", apperr.Transient("store access token", err)
	}
	return raw, nil
}

// RevokeToken revokes a token. Revoking an already revoked token succeeds.
func (e *Engine) RevokeToken(ctx context.Context, token string) error {
	_, err := e.store.RevokeAccessToken(ctx, domain.HashAccessToken(token), e.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Denied("access token not found")
	}
	if err != nil {
		return apperr.Transient("revoke access token", err)
	}
	return nil
}

// authorize loads the document and checks that token grants access to it:
// the token exists and is not revoked, its contact belongs to the
// document's client, and the document was sent to that contact.
func (e *Engine) authorize(ctx context.Context, id, token string) (domain.Document, error) {
	if token == "" {
		return domain.Document{}, apperr.Denied(errNotAccessible)
	}

	tok, err := e.store.GetAccessTokenByHash(ctx, domain.HashAccessToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, apperr.Denied(errNotAccessible)
	}
	if err != nil {
		return domain.Document{}, apperr.Transient("load access token", err)
	}
	if tok.RevokedAt != nil {
		return domain.Document{}, apperr.Denied(errNotAccessible)
	}

	doc, err := e.store.GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, apperr.Denied(errNotAccessible)
	}
	if err != nil {
		return domain.Document{}, apperr.Transient("load document", err)
	}

	contact, err := e.store.GetClientUser(ctx, tok.ContactID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, apperr.Denied(errNotAccessible)
	}
	if err != nil {
		return domain.Document{}, apperr.Transient("load contact", err)
	}

	if doc.ClientID.String() != contact.ClientID || doc.SentToContactID.String() != contact.ID {
		e.logger.Warn("document access denied", "document_id", id, "contact_id", contact.ID)
		return domain.Document{}, apperr.Denied(errNotAccessible)
	}
	return doc, nil
}

func (e *Engine) load(ctx context.Context, id string) (domain.Document, error) {
	doc, err := e.store.GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, apperr.NotFound("document", id)
	}
	if err != nil {
		return domain.Document{}, apperr.Transient("load document", err)
	}
	return doc, nil
}

// save writes doc if it is still in status from. A concurrent change
// surfaces as PRECONDITION so the caller re-reads.
func (e *Engine) save(ctx context.Context, doc domain.Document, from domain.DocumentStatus) error {
	err := e.store.UpdateDocument(ctx, doc, from)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return apperr.Precondition(fmt.Sprintf("document %s changed concurrently, no longer %s", doc.ID, from))
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("document", doc.ID)
	default:
		return apperr.Transient("save document", err)
	}
}

func invalidTransition(from, to domain.DocumentStatus) error {
	return apperr.Precondition(fmt.Sprintf("cannot move document from %s to %s", from, to))
}

func signedKind(kind domain.DocumentKind) notify.Kind {
	if kind == domain.KindMSA {
		return notify.MSASigned
	}
	return notify.ProposalSigned
}
