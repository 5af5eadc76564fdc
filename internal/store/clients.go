package store

import (
	"context"
	"fmt"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

const clientColumns = `id, name, email, company, deleted_at, created_at`

const clientUserColumns = `id, client_id, name, email, role, created_at`

// CreateClient inserts a client unless a live client already holds the
// email. Returns inserted=false on that conflict; the caller re-reads with
// FindClientByEmail.
func (s *Store) CreateClient(ctx context.Context, c domain.Client) (bool, error) {
	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (:id, :name, :email, :company, :deleted_at, :created_at)
		ON CONFLICT DO NOTHING
	`, c)
	if err != nil {
		return false, fmt.Errorf("create client: %w", err)
	}
	ok, err := inserted(result)
	if err != nil {
		return false, fmt.Errorf("create client: %w", err)
	}
	return ok, nil
}

// GetClient returns the client with the given id, deleted or not.
func (s *Store) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	err := s.getOne(ctx, &c, "client", `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return c, err
}

// FindClientByEmail returns the live client whose stored email equals email.
// Callers pass the normalised form.
func (s *Store) FindClientByEmail(ctx context.Context, email string) (domain.Client, error) {
	var c domain.Client
	err := s.getOne(ctx, &c, "client by email", `
		SELECT `+clientColumns+` FROM clients
		WHERE email = ? AND deleted_at IS NULL
	`, email)
	return c, err
}

// ListClients returns every client ordered by creation.
func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	var clients []domain.Client
	err := s.db.SelectContext(ctx, &clients,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// CreateClientUser inserts a contact for a client. A contact with the same
// email under the same client is left untouched and inserted=false.
func (s *Store) CreateClientUser(ctx context.Context, u domain.ClientUser) (bool, error) {
	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO client_users (`+clientUserColumns+`)
		VALUES (:id, :client_id, :name, :email, :role, :created_at)
		ON CONFLICT(client_id, email) DO NOTHING
	`, u)
	if err != nil {
		return false, fmt.Errorf("create client user: %w", err)
	}
	ok, err := inserted(result)
	if err != nil {
		return false, fmt.Errorf("create client user: %w", err)
	}
	return ok, nil
}

// GetClientUser returns the contact with the given id.
func (s *Store) GetClientUser(ctx context.Context, id string) (domain.ClientUser, error) {
	var u domain.ClientUser
	err := s.getOne(ctx, &u, "client user", `SELECT `+clientUserColumns+` FROM client_users WHERE id = ?`, id)
	return u, err
}

// ListClientUsers returns the contacts of a client ordered by creation.
func (s *Store) ListClientUsers(ctx context.Context, clientID string) ([]domain.ClientUser, error) {
	var users []domain.ClientUser
	err := s.db.SelectContext(ctx, &users, `
		SELECT `+clientUserColumns+` FROM client_users
		WHERE client_id = ?
		ORDER BY created_at ASC, id ASC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list client users: %w", err)
	}
	return users, nil
}
