package store

import (
	"context"
	"fmt"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

const projectColumns = `id, client_id, name, type, status, description, assigned_to, created_at`

// CreateProject inserts a project. Projects carry no natural key, so a
// repeated call with a new id creates a second project.
func (s *Store) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (:id, :client_id, :name, :type, :status, :description, :assigned_to, :created_at)
	`, p)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject returns the project with the given id.
func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := s.getOne(ctx, &p, "project", `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return p, err
}

// ListProjects returns every project ordered by creation.
func (s *Store) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	err := s.db.SelectContext(ctx, &projects,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListProjectsByClient returns a client's projects ordered by creation.
func (s *Store) ListProjectsByClient(ctx context.Context, clientID string) ([]domain.Project, error) {
	var projects []domain.Project
	err := s.db.SelectContext(ctx, &projects, `
		SELECT `+projectColumns+` FROM projects
		WHERE client_id = ?
		ORDER BY created_at ASC, id ASC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list projects by client: %w", err)
	}
	return projects, nil
}
