package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

func TestLead_CreateGetConvert(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.CreateLead(ctx(), domain.Lead{
		ID: "lead-1", Name: "Jane Doe", Email: "JANE@Co.com", Message: "Need a site", CreatedAt: baseTime,
	}))

	l, err := s.GetLead(ctx(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadNew, l.Status)
	assert.False(t, l.IsConverted())
	assert.False(t, l.ClientID.IsSet())

	seedClient(t, s, "client-1", "jane@co.com")
	seedProject(t, s, "project-1", "client-1")

	at := baseTime.Add(time.Hour)
	require.NoError(t, s.MarkLeadConverted(ctx(), "lead-1", "client-1", "project-1", "emp-7", at))

	l, err = s.GetLead(ctx(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadConverted, l.Status)
	assert.Equal(t, domain.Ref("client-1"), l.ClientID)
	assert.Equal(t, domain.Ref("project-1"), l.ProjectID)
	assert.Equal(t, domain.Ref("emp-7"), l.ArchivedBy)
	require.NotNil(t, l.ConvertedAt)
	assert.True(t, l.ConvertedAt.Equal(at))
	assert.True(t, l.ArchivedAt.Equal(at))

	// A second conversion write loses the guard
	err = s.MarkLeadConverted(ctx(), "lead-1", "client-1", "project-1", "emp-7", at)
	assert.ErrorIs(t, err, ErrConflict)

	err = s.MarkLeadConverted(ctx(), "missing", "client-1", "project-1", "emp-7", at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLead_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetLead(ctx(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_UniqueLiveEmail(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "jane@co.com")

	ok, err := s.CreateClient(ctx(), domain.Client{ID: "client-2", Name: "Dup", Email: "jane@co.com", CreatedAt: baseTime})
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.FindClientByEmail(ctx(), "jane@co.com")
	require.NoError(t, err)
	assert.Equal(t, "client-1", found.ID)

	// A soft-deleted client releases the email
	_, err = s.db.Exec(`UPDATE clients SET deleted_at = ? WHERE id = 'client-1'`, baseTime)
	require.NoError(t, err)

	_, err = s.FindClientByEmail(ctx(), "jane@co.com")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = s.CreateClient(ctx(), domain.Client{ID: "client-3", Name: "New", Email: "jane@co.com", CreatedAt: baseTime})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientUser_UniquePerClient(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedContact(t, s, "cu-1", "client-1", "a@a.io")

	ok, err := s.CreateClientUser(ctx(), domain.ClientUser{ID: "cu-2", ClientID: "client-1", Email: "a@a.io", CreatedAt: baseTime})
	require.NoError(t, err)
	assert.False(t, ok)

	users, err := s.ListClientUsers(ctx(), "client-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "cu-1", users[0].ID)
}

func TestDocument_ConditionalUpdate(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	require.NoError(t, s.CreateDocument(ctx(), domain.Document{
		ID: "doc-1", Kind: domain.KindProposal, Title: "Website", ClientID: "client-1", CreatedAt: baseTime,
	}))

	d, err := s.GetDocument(ctx(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentDraft, d.Status)
	assert.Equal(t, 1, d.CurrentVersion)

	d.Status = domain.DocumentSent
	require.NoError(t, s.UpdateDocument(ctx(), d, domain.DocumentDraft))

	// The guard no longer holds
	d.Status = domain.DocumentArchived
	assert.ErrorIs(t, s.UpdateDocument(ctx(), d, domain.DocumentDraft), ErrConflict)

	d.ID = "doc-missing"
	assert.ErrorIs(t, s.UpdateDocument(ctx(), d, domain.DocumentSent), ErrNotFound)
}

func TestHasLeadDocument(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.CreateLead(ctx(), domain.Lead{ID: "lead-1", Name: "A", Email: "a@a.io", CreatedAt: baseTime}))
	require.NoError(t, s.CreateDocument(ctx(), domain.Document{
		ID: "doc-1", Kind: domain.KindProposal, Status: domain.DocumentSigned, LeadID: "lead-1", CreatedAt: baseTime,
	}))

	ok, err := s.HasLeadDocument(ctx(), "lead-1", domain.KindProposal, domain.DocumentSigned)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasLeadDocument(ctx(), "lead-1", domain.KindMSA, domain.DocumentSigned)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessToken_Revoke(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedContact(t, s, "cu-1", "client-1", "a@a.io")

	require.NoError(t, s.CreateAccessToken(ctx(), domain.AccessToken{
		ID: "tok-1", TokenHash: "hash-1", ContactID: "cu-1", CreatedAt: baseTime,
	}))

	changed, err := s.RevokeAccessToken(ctx(), "hash-1", baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.RevokeAccessToken(ctx(), "hash-1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	tok, err := s.GetAccessTokenByHash(ctx(), "hash-1")
	require.NoError(t, err)
	require.NotNil(t, tok.RevokedAt)
	assert.True(t, tok.RevokedAt.Equal(baseTime))

	_, err = s.RevokeAccessToken(ctx(), "hash-unknown", baseTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMilestone_AppendInsertDelete(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedProject(t, s, "project-1", "client-1")

	for _, id := range []string{"m-a", "m-b", "m-c"} {
		_, err := s.AppendMilestone(ctx(), newMilestone(id, "project-1", "100"))
		require.NoError(t, err)
	}

	m, err := s.InsertMilestoneAt(ctx(), newMilestone("m-x", "project-1", "50"), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.SortOrder)
	assertOrder(t, s, "project-1", "m-a", "m-x", "m-b", "m-c")

	// Positions beyond the end clamp to N
	m, err = s.InsertMilestoneAt(ctx(), newMilestone("m-z", "project-1", "1"), 99)
	require.NoError(t, err)
	assert.Equal(t, 4, m.SortOrder)

	// Negative positions clamp to 0
	_, err = s.InsertMilestoneAt(ctx(), newMilestone("m-0", "project-1", "1"), -3)
	require.NoError(t, err)
	assertOrder(t, s, "project-1", "m-0", "m-a", "m-x", "m-b", "m-c", "m-z")

	require.NoError(t, s.DeleteMilestone(ctx(), "m-x"))
	assertOrder(t, s, "project-1", "m-0", "m-a", "m-b", "m-c", "m-z")

	assert.ErrorIs(t, s.DeleteMilestone(ctx(), "m-x"), ErrNotFound)
}

func TestMilestone_DeleteInvoicedRefused(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedProject(t, s, "project-1", "client-1")

	m, err := s.AppendMilestone(ctx(), newMilestone("m-a", "project-1", "100"))
	require.NoError(t, err)
	m.Status = domain.MilestoneInvoiced
	require.NoError(t, s.UpdateMilestone(ctx(), m, domain.MilestonePlanned))

	assert.ErrorIs(t, s.DeleteMilestone(ctx(), "m-a"), ErrConflict)
}

func TestMilestone_SetOrder(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedProject(t, s, "project-1", "client-1")
	for _, id := range []string{"m-a", "m-b", "m-c"} {
		_, err := s.AppendMilestone(ctx(), newMilestone(id, "project-1", "10"))
		require.NoError(t, err)
	}

	require.NoError(t, s.SetMilestoneOrder(ctx(), "project-1", []string{"m-c", "m-a", "m-b"}))
	assertOrder(t, s, "project-1", "m-c", "m-a", "m-b")

	err := s.SetMilestoneOrder(ctx(), "project-1", []string{"m-c", "m-ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
	// rolled back
	assertOrder(t, s, "project-1", "m-c", "m-a", "m-b")
}

func TestMilestone_DecimalRoundTrip(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedProject(t, s, "project-1", "client-1")

	m := newMilestone("m-a", "project-1", "99.99")
	m.GSTRate = decimal.NewNullDecimal(decimal.RequireFromString("0.15"))
	_, err := s.AppendMilestone(ctx(), m)
	require.NoError(t, err)

	got, err := s.GetMilestone(ctx(), "m-a")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("99.99")))
	require.True(t, got.GSTRate.Valid)
	assert.True(t, got.GSTRate.Decimal.Equal(decimal.RequireFromString("0.15")))

	_, err = s.AppendMilestone(ctx(), newMilestone("m-b", "project-1", "1"))
	require.NoError(t, err)
	got, err = s.GetMilestone(ctx(), "m-b")
	require.NoError(t, err)
	assert.False(t, got.GSTRate.Valid)
}

func TestInvoice_OnePerMilestone(t *testing.T) {
	s := createTestStore(t)
	seedClient(t, s, "client-1", "a@a.io")
	seedProject(t, s, "project-1", "client-1")
	_, err := s.AppendMilestone(ctx(), newMilestone("m-a", "project-1", "100"))
	require.NoError(t, err)

	ok, err := s.CreateInvoice(ctx(), domain.Invoice{ID: "inv-1", MilestoneID: "m-a", CreatedAt: baseTime})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CreateInvoice(ctx(), domain.Invoice{ID: "inv-2", MilestoneID: "m-a", CreatedAt: baseTime})
	require.NoError(t, err)
	assert.False(t, ok)

	inv, err := s.GetInvoiceByMilestone(ctx(), "m-a")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, domain.PaymentNone, inv.PaymentStatus)
}

func TestInvoice_PaidTransitionHappensOnce(t *testing.T) {
	s := createTestStore(t)
	seedInvoice(t, s, "inv-1", "110", domain.PaymentProcessing)

	changed, err := s.MarkInvoicePaid(ctx(), "inv-1", baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkInvoicePaid(ctx(), "inv-1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	// paid is never downgraded
	changed, err = s.MarkInvoiceFailed(ctx(), "inv-1", "card declined", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	inv, err := s.GetInvoice(ctx(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, inv.PaymentStatus)
	assert.Empty(t, inv.LastPaymentError)
	assert.True(t, inv.PaymentStatusUpdatedAt.Equal(baseTime))

	_, err = s.MarkInvoicePaid(ctx(), "inv-missing", baseTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvoice_FailedThenPaidClearsError(t *testing.T) {
	s := createTestStore(t)
	seedInvoice(t, s, "inv-1", "110", domain.PaymentProcessing)

	changed, err := s.MarkInvoiceFailed(ctx(), "inv-1", "Checkout session expired", baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	inv, err := s.GetInvoice(ctx(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, inv.PaymentStatus)
	assert.Equal(t, "Checkout session expired", inv.LastPaymentError)

	changed, err = s.MarkInvoicePaid(ctx(), "inv-1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)

	inv, err = s.GetInvoice(ctx(), "inv-1")
	require.NoError(t, err)
	assert.Empty(t, inv.LastPaymentError)
}

func TestInvoice_ProviderRefs(t *testing.T) {
	s := createTestStore(t)
	seedInvoice(t, s, "inv-1", "110", domain.PaymentUnpaid)

	require.NoError(t, s.MarkInvoiceProcessing(ctx(), "inv-1", "cs_1", baseTime))
	require.NoError(t, s.RecordProviderRefs(ctx(), "inv-1", "", "pi_1"))

	inv, err := s.GetInvoice(ctx(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentProcessing, inv.PaymentStatus)
	assert.Equal(t, domain.Ref("cs_1"), inv.CheckoutSessionID)
	assert.Equal(t, domain.Ref("pi_1"), inv.PaymentIntentID)
}

func TestInvoice_LedgerRef(t *testing.T) {
	s := createTestStore(t)
	seedInvoice(t, s, "inv-1", "110", domain.PaymentUnpaid)

	require.NoError(t, s.SetInvoiceLedgerRef(ctx(), "inv-1", "xero-1"))
	inv, err := s.GetInvoice(ctx(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Ref("xero-1"), inv.XeroInvoiceID)

	err = s.SetInvoiceLedgerRef(ctx(), "missing", "xero-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStaleProcessing(t *testing.T) {
	s := createTestStore(t)
	seedInvoice(t, s, "inv-old", "10", domain.PaymentUnpaid)
	seedInvoice(t, s, "inv-new", "10", domain.PaymentUnpaid)
	seedInvoice(t, s, "inv-nots", "10", domain.PaymentProcessing)
	seedInvoice(t, s, "inv-paid", "10", domain.PaymentPaid)

	require.NoError(t, s.MarkInvoiceProcessing(ctx(), "inv-old", "cs_old", baseTime))
	require.NoError(t, s.MarkInvoiceProcessing(ctx(), "inv-new", "cs_new", baseTime.Add(9*time.Minute)))

	cutoff := baseTime.Add(5 * time.Minute)
	stale, err := s.ListStaleProcessing(ctx(), cutoff, 0)
	require.NoError(t, err)

	var ids []string
	for _, inv := range stale {
		ids = append(ids, inv.ID)
	}
	assert.ElementsMatch(t, []string{"inv-old", "inv-nots"}, ids)

	limited, err := s.ListStaleProcessing(ctx(), cutoff, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInsertPayment_AtMostOncePerReference(t *testing.T) {
	s := createTestStore(t)
	seedInvoice(t, s, "inv-1", "110", domain.PaymentProcessing)

	p := domain.Payment{
		ID: "pay-1", InvoiceID: "inv-1", Amount: decimal.RequireFromString("110"),
		PaymentDate: baseTime, Method: "stripe", Reference: "pi-1", CreatedAt: baseTime,
	}
	ok, err := s.InsertPayment(ctx(), p)
	require.NoError(t, err)
	assert.True(t, ok)

	p.ID = "pay-2"
	ok, err = s.InsertPayment(ctx(), p)
	require.NoError(t, err)
	assert.False(t, ok)

	p.ID = "pay-3"
	p.Reference = "pi-2"
	ok, err = s.InsertPayment(ctx(), p)
	require.NoError(t, err)
	assert.True(t, ok)

	payments, err := s.ListPayments(ctx(), "inv-1")
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(110)))
}

func assertOrder(t *testing.T, s *Store, projectID string, ids ...string) {
	t.Helper()
	ms, err := s.ListMilestones(ctx(), projectID)
	require.NoError(t, err)
	require.Len(t, ms, len(ids))
	for i, m := range ms {
		assert.Equal(t, ids[i], m.ID, "position %d", i)
		assert.Equal(t, i, m.SortOrder, "milestone %s", m.ID)
	}
}
