package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ctx() context.Context {
	return context.Background()
}

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedClient(t *testing.T, s *Store, id, email string) domain.Client {
	t.Helper()
	c := domain.Client{ID: id, Name: "Client " + id, Email: email, CreatedAt: baseTime}
	if ok, err := s.CreateClient(ctx(), c); err != nil || !ok {
		t.Fatalf("CreateClient(%s) = %v, %v", id, ok, err)
	}
	return c
}

func seedContact(t *testing.T, s *Store, id, clientID, email string) domain.ClientUser {
	t.Helper()
	u := domain.ClientUser{ID: id, ClientID: clientID, Name: "Contact " + id, Email: email, Role: "primary", CreatedAt: baseTime}
	if ok, err := s.CreateClientUser(ctx(), u); err != nil || !ok {
		t.Fatalf("CreateClientUser(%s) = %v, %v", id, ok, err)
	}
	return u
}

func seedProject(t *testing.T, s *Store, id, clientID string) domain.Project {
	t.Helper()
	p := domain.Project{ID: id, ClientID: clientID, Name: "Project " + id, CreatedAt: baseTime}
	if err := s.CreateProject(ctx(), p); err != nil {
		t.Fatalf("CreateProject(%s): %v", id, err)
	}
	return p
}

func seedInvoice(t *testing.T, s *Store, id string, total string, status domain.PaymentStatus) domain.Invoice {
	t.Helper()
	inv := domain.Invoice{
		ID:            id,
		Total:         decimal.RequireFromString(total),
		Subtotal:      decimal.RequireFromString(total),
		PaymentStatus: status,
		CreatedAt:     baseTime,
	}
	if ok, err := s.CreateInvoice(ctx(), inv); err != nil || !ok {
		t.Fatalf("CreateInvoice(%s) = %v, %v", id, ok, err)
	}
	return inv
}

func newMilestone(id, projectID, amount string) domain.Milestone {
	return domain.Milestone{
		ID:        id,
		ProjectID: projectID,
		Title:     "Milestone " + id,
		Amount:    decimal.RequireFromString(amount),
		Status:    domain.MilestonePlanned,
		CreatedAt: baseTime,
	}
}
