package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

const milestoneColumns = `id, project_id, title, amount, gst_rate, status, sort_order,
	invoice_id, completed_at, created_at`

const insertMilestone = `
	INSERT INTO milestones (` + milestoneColumns + `)
	VALUES (:id, :project_id, :title, :amount, :gst_rate, :status, :sort_order,
		:invoice_id, :completed_at, :created_at)
`

// GetMilestone returns the milestone with the given id.
func (s *Store) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	var m domain.Milestone
	err := s.getOne(ctx, &m, "milestone", `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id)
	return m, err
}

// ListMilestones returns a project's milestones in sort order.
func (s *Store) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	var ms []domain.Milestone
	err := s.db.SelectContext(ctx, &ms, `
		SELECT `+milestoneColumns+` FROM milestones
		WHERE project_id = ?
		ORDER BY sort_order ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return ms, nil
}

// AppendMilestone inserts m after the project's last milestone and returns
// it with SortOrder set.
func (s *Store) AppendMilestone(ctx context.Context, m domain.Milestone) (domain.Milestone, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM milestones WHERE project_id = ?`, m.ProjectID); err != nil {
			return err
		}
		m.SortOrder = n
		_, err := tx.NamedExecContext(ctx, insertMilestone, m)
		return err
	})
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("append milestone: %w", err)
	}
	return m, nil
}

// InsertMilestoneAt inserts m at position, clamped to 0..N. Every milestone
// at or after position is shifted down by one before the insert, so no two
// rows ever share a position.
func (s *Store) InsertMilestoneAt(ctx context.Context, m domain.Milestone, position int) (domain.Milestone, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM milestones WHERE project_id = ?`, m.ProjectID); err != nil {
			return err
		}
		m.SortOrder = min(max(position, 0), n)

		if _, err := tx.ExecContext(ctx, `
			UPDATE milestones SET sort_order = sort_order + 1
			WHERE project_id = ? AND sort_order >= ?
		`, m.ProjectID, m.SortOrder); err != nil {
			return err
		}

		_, err := tx.NamedExecContext(ctx, insertMilestone, m)
		return err
	})
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("insert milestone: %w", err)
	}
	return m, nil
}

// SetMilestoneOrder rewrites sort_order as the index of each id in ids.
// Callers guarantee ids is exactly the project's milestone set.
func (s *Store) SetMilestoneOrder(ctx context.Context, projectID string, ids []string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i, id := range ids {
			result, err := tx.ExecContext(ctx, `
				UPDATE milestones SET sort_order = ?
				WHERE id = ? AND project_id = ?
			`, i, id, projectID)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("milestone %s in project %s: %w", id, projectID, ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set milestone order: %w", err)
	}
	return nil
}

// UpdateMilestone writes status, invoice link and completion time of m,
// provided the stored row is still in status expected.
func (s *Store) UpdateMilestone(ctx context.Context, m domain.Milestone, expected domain.MilestoneStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE milestones
		SET title = ?, amount = ?, gst_rate = ?, status = ?, invoice_id = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, m.Title, m.Amount, m.GSTRate, m.Status, m.InvoiceID, m.CompletedAt, m.ID, expected)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	if err := s.requireChanged(ctx, result, "milestones", m.ID); err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	return nil
}

// DeleteMilestone removes a milestone that has not been invoiced and closes
// the gap it leaves in the project's order.
func (s *Store) DeleteMilestone(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var m domain.Milestone
		if err := tx.GetContext(ctx, &m, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id); err != nil {
			if isNoRows(err) {
				return ErrNotFound
			}
			return err
		}
		if m.Status == domain.MilestoneInvoiced {
			return ErrConflict
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE milestones SET sort_order = sort_order - 1
			WHERE project_id = ? AND sort_order > ?
		`, m.ProjectID, m.SortOrder)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete milestone: %w", err)
	}
	return nil
}
