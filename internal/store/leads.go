package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

const leadColumns = `id, name, email, company, message, status, client_id, project_id,
	converted_at, archived_at, archived_by, created_at`

// CreateLead inserts a lead. Duplicate ids are an error.
func (s *Store) CreateLead(ctx context.Context, l domain.Lead) error {
	if l.Status == "" {
		l.Status = domain.LeadNew
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (:id, :name, :email, :company, :message, :status, :client_id, :project_id,
			:converted_at, :archived_at, :archived_by, :created_at)
	`, l)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// GetLead returns the lead with the given id.
func (s *Store) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	var l domain.Lead
	err := s.getOne(ctx, &l, "lead", `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	return l, err
}

// ListLeads returns every lead ordered by creation.
func (s *Store) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	var leads []domain.Lead
	err := s.db.SelectContext(ctx, &leads,
		`SELECT `+leadColumns+` FROM leads ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// MarkLeadConverted records a completed conversion in one write: status,
// client and project links, converted_at, archived_at and archived_by.
// Returns ErrConflict if the lead was converted by someone else meanwhile.
func (s *Store) MarkLeadConverted(ctx context.Context, id, clientID, projectID string, by domain.Ref, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET status = ?, client_id = ?, project_id = ?,
			converted_at = ?, archived_at = ?, archived_by = ?
		WHERE id = ? AND converted_at IS NULL
	`, domain.LeadConverted, clientID, projectID, at, at, by, id)
	if err != nil {
		return fmt.Errorf("mark lead converted: %w", err)
	}
	if err := s.requireChanged(ctx, result, "leads", id); err != nil {
		return fmt.Errorf("mark lead converted: %w", err)
	}
	return nil
}
