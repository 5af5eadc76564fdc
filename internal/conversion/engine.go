package conversion

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
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
)

// Store is the subset of the entity store conversion needs.
type Store interface {
	GetLead(ctx context.Context, id string) (domain.Lead, error)
	HasLeadDocument(ctx context.Context, leadID string, kind domain.DocumentKind, status domain.DocumentStatus) (bool, error)
	FindClientByEmail(ctx context.Context, email string) (domain.Client, error)
	CreateClient(ctx context.Context, c domain.Client) (bool, error)
	CreateClientUser(ctx context.Context, u domain.ClientUser) (bool, error)
	CreateProject(ctx context.Context, p domain.Project) error
	MarkLeadConverted(ctx context.Context, id, clientID, projectID string, by domain.Ref, at time.Time) error
}

// Input carries the operator's choices for the new project.
type Input struct {
	ProjectName   string     `json:"project_name"`
	ProjectType   string     `json:"project_type"`
	ProjectStatus string     `json:"project_status"`
	AssignedTo    domain.Ref `json:"assigned_to"`
}

// Result describes a completed conversion.
type Result struct {
	ClientID       string              `json:"client_id"`
	ProjectID      string              `json:"project_id"`
	LinkedExisting bool                `json:"linked_existing"`
	SideEffects    []apperr.SideEffect `json:"side_effects,omitempty"`
}

// Side effect names reported in Result.SideEffects.
const (
	EffectClientUser = "create_client_user"
)

// ContactRole is the role given to the contact created from the lead.
const ContactRole = "primary"

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for converted_at and created_at stamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the id generator for new clients, contacts and projects.
func WithIDs(g ident.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRequireSignedProposal makes a signed proposal for the lead a
// precondition of conversion.
func WithRequireSignedProposal(required bool) Option {
	return func(e *Engine) { e.requireSignedProposal = required }
}

// Engine turns qualified leads into a client and a project.
type Engine struct {
	store                 Store
	clock                 clock.Clock
	ids                   ident.Generator
	logger                *slog.Logger
	requireSignedProposal bool
}

// New creates a conversion engine.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		clock:  clock.System{},
		ids:    ident.UUIDv7{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ConvertLead converts a lead into a client and a project.
//
// Preconditions are checked in order and the first violated one is returned:
// lead exists, name present, email present, not already converted, and, when
// configured, a signed proposal on file.
//
// The client is found by normalised email or created. Creating the contact
// person is best effort. The lead update is the single write that marks the
// conversion complete; if it fails after the project was created, the
// returned TRANSIENT error names the orphaned project and a retry creates a
// second project.
func (e *Engine) ConvertLead(ctx context.Context, leadID string, in Input, actingEmployeeID string) (Result, error) {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, apperr.NotFound("lead", leadID)
		}
		return Result{}, apperr.Transient("load lead", err)
	}

	if err := e.checkPreconditions(ctx, lead); err != nil {
		return Result{}, err
	}

	email := domain.NormalizeEmail(lead.Email)
	name := strings.TrimSpace(lead.Name)
	log := e.logger.With("lead_id", lead.ID)

	client, linked, err := e.findOrCreateClient(ctx, lead, name, email)
	if err != nil {
		return Result{}, err
	}
	log = log.With("client_id", client.ID)

	res := Result{ClientID: client.ID, LinkedExisting: linked}

	res.SideEffects = append(res.SideEffects, apperr.Attempt(log, EffectClientUser, func() error {
		_, err := e.store.CreateClientUser(ctx, domain.ClientUser{
			ID:        e.ids.NewID(),
			ClientID:  client.ID,
			Name:      name,
			Email:     email,
			Role:      ContactRole,
			CreatedAt: e.clock.Now(),
		})
		return err
	}))

	projectName := strings.TrimSpace(in.ProjectName)
	if projectName == "" {
		projectName = name
	}
	project := domain.Project{
		ID:          e.ids.NewID(),
		ClientID:    client.ID,
		Name:        projectName,
		Type:        in.ProjectType,
		Status:      in.ProjectStatus,
		Description: lead.Message,
		AssignedTo:  in.AssignedTo,
		CreatedAt:   e.clock.Now(),
	}
	if err := e.store.CreateProject(ctx, project); err != nil {
		return Result{}, apperr.Transient("create project", err)
	}
	res.ProjectID = project.ID

	by := domain.Ref(strings.TrimSpace(actingEmployeeID))
	if err := e.store.MarkLeadConverted(ctx, lead.ID, client.ID, project.ID, by, e.clock.Now()); err != nil {
		log.Error("lead update failed after project creation",
			"project_id", project.ID, "error", err)
		return res, apperr.Transient(
			fmt.Sprintf("mark lead converted (project %s created but lead not updated)", project.ID), err)
	}

	log.Info("lead converted",
		"project_id", project.ID, "linked_existing", linked)
	return res, nil
}

func (e *Engine) checkPreconditions(ctx context.Context, lead domain.Lead) error {
	if strings.TrimSpace(lead.Name) == "" {
		return apperr.Validation("lead name is required")
	}
	if strings.TrimSpace(lead.Email) == "" {
		return apperr.Validation("lead email is required")
	}
	if lead.IsConverted() {
		return apperr.Precondition("lead already converted")
	}
	if e.requireSignedProposal {
		ok, err := e.store.HasLeadDocument(ctx, lead.ID, domain.KindProposal, domain.DocumentSigned)
		if err != nil {
			return apperr.Transient("check signed proposal", err)
		}
		if !ok {
			return apperr.Precondition("signed proposal required")
		}
	}
	return nil
}

// findOrCreateClient reuses the live client holding email or creates one.
// A create that loses a race on the email index re-reads the winner.
func (e *Engine) findOrCreateClient(ctx context.Context, lead domain.Lead, name, email string) (domain.Client, bool, error) {
	existing, err := e.store.FindClientByEmail(ctx, email)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, false, apperr.Transient("find client", err)
	}

	client := domain.Client{
		ID:        e.ids.NewID(),
		Name:      name,
		Email:     email,
		Company:   strings.TrimSpace(lead.Company),
		CreatedAt: e.clock.Now(),
	}
	created, err := e.store.CreateClient(ctx, client)
	if err != nil {
		return domain.Client{}, false, apperr.Transient("create client", err)
	}
	if created {
		return client, false, nil
	}

	existing, err = e.store.FindClientByEmail(ctx, email)
	if err != nil {
		return domain.Client{}, false, apperr.Transient("re-read client after conflict", err)
	}
	return existing, true, nil
}
