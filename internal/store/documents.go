package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

const documentColumns = `id, kind, title, status, current_version, content, lead_id, client_id,
	project_id, sent_to_contact_id, sent_at, signer_name, signer_email, signature_svg,
	signer_ip, signed_at, rejected_at, rejection_reason, archived_at, created_at`

const tokenColumns = `id, token_hash, contact_id, created_at, revoked_at`

// CreateDocument inserts a document.
func (s *Store) CreateDocument(ctx context.Context, d domain.Document) error {
	if d.Status == "" {
		d.Status = domain.DocumentDraft
	}
	if d.CurrentVersion == 0 {
		d.CurrentVersion = 1
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (:id, :kind, :title, :status, :current_version, :content, :lead_id, :client_id,
			:project_id, :sent_to_contact_id, :sent_at, :signer_name, :signer_email, :signature_svg,
			:signer_ip, :signed_at, :rejected_at, :rejection_reason, :archived_at, :created_at)
	`, d)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	var d domain.Document
	err := s.getOne(ctx, &d, "document", `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return d, err
}

// ListDocuments returns every document ordered by creation.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.SelectContext(ctx, &docs,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// HasLeadDocument reports whether the lead has a document of the given kind
// in the given status.
func (s *Store) HasLeadDocument(ctx context.Context, leadID string, kind domain.DocumentKind, status domain.DocumentStatus) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM documents
		WHERE lead_id = ? AND kind = ? AND status = ?
	`, leadID, kind, status)
	if err != nil {
		return false, fmt.Errorf("has lead document: %w", err)
	}
	return n > 0, nil
}

// UpdateDocument writes every mutable column of d, provided the stored row
// is still in status expected. A row that moved on yields ErrConflict.
func (s *Store) UpdateDocument(ctx context.Context, d domain.Document, expected domain.DocumentStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = ?, current_version = ?, content = ?, client_id = ?, project_id = ?,
			sent_to_contact_id = ?, sent_at = ?, signer_name = ?, signer_email = ?,
			signature_svg = ?, signer_ip = ?, signed_at = ?, rejected_at = ?,
			rejection_reason = ?, archived_at = ?
		WHERE id = ? AND status = ?
	`,
		d.Status, d.CurrentVersion, d.Content, d.ClientID, d.ProjectID,
		d.SentToContactID, d.SentAt, d.SignerName, d.SignerEmail,
		d.SignatureSVG, d.SignerIP, d.SignedAt, d.RejectedAt,
		d.RejectionReason, d.ArchivedAt,
		d.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if err := s.requireChanged(ctx, result, "documents", d.ID); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// CreateAccessToken stores a token digest bound to a contact.
func (s *Store) CreateAccessToken(ctx context.Context, tok domain.AccessToken) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO access_tokens (`+tokenColumns+`)
		VALUES (:id, :token_hash, :contact_id, :created_at, :revoked_at)
	`, tok)
	if err != nil {
		return fmt.Errorf("create access token: %w", err)
	}
	return nil
}

// GetAccessTokenByHash looks a token up by its digest.
func (s *Store) GetAccessTokenByHash(ctx context.Context, hash string) (domain.AccessToken, error) {
	var tok domain.AccessToken
	err := s.getOne(ctx, &tok, "access token",
		`SELECT `+tokenColumns+` FROM access_tokens WHERE token_hash = ?`, hash)
	return tok, err
}

// RevokeAccessToken marks a token revoked. Revoking twice keeps the first
// timestamp and reports changed=false.
func (s *Store) RevokeAccessToken(ctx context.Context, hash string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE access_tokens SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL
	`, at, hash)
	if err != nil {
		return false, fmt.Errorf("revoke access token: %w", err)
	}
	changed, err := inserted(result)
	if err != nil {
		return false, fmt.Errorf("revoke access token: %w", err)
	}
	if !changed {
		if _, err := s.GetAccessTokenByHash(ctx, hash); err != nil {
			return false, fmt.Errorf("revoke access token: %w", err)
		}
	}
	return changed, nil
}
