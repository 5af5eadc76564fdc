package domain

import (
	"database/sql/driver"
	"fmt"
)

// LeadStatus is the sales status of a lead.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadConverted LeadStatus = "converted"
	LeadClosed    LeadStatus = "closed"
)

// DocumentKind distinguishes the two document variants sharing one lifecycle.
type DocumentKind string

const (
	KindProposal DocumentKind = "proposal"
	KindMSA      DocumentKind = "msa"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	return k == KindProposal || k == KindMSA
}

// DocumentStatus is a state of the proposal/MSA lifecycle.
type DocumentStatus string

const (
	DocumentDraft    DocumentStatus = "draft"
	DocumentSent     DocumentStatus = "sent"
	DocumentSigned   DocumentStatus = "signed"
	DocumentRejected DocumentStatus = "rejected"
	DocumentArchived DocumentStatus = "archived"
)

// DocumentStatuses lists every document state in lifecycle order.
var DocumentStatuses = []DocumentStatus{
	DocumentDraft, DocumentSent, DocumentSigned, DocumentRejected, DocumentArchived,
}

// MilestoneStatus is a state of the billing milestone lifecycle.
type MilestoneStatus string

const (
	MilestonePlanned  MilestoneStatus = "planned"
	MilestoneActive   MilestoneStatus = "active"
	MilestoneComplete MilestoneStatus = "complete"
	MilestoneInvoiced MilestoneStatus = "invoiced"
)

// MilestoneStatuses lists every milestone state in lifecycle order.
var MilestoneStatuses = []MilestoneStatus{
	MilestonePlanned, MilestoneActive, MilestoneComplete, MilestoneInvoiced,
}

// PaymentStatus is the payment state of an invoice. The empty value is
// stored as NULL and means no checkout has been started.
type PaymentStatus string

const (
	PaymentNone       PaymentStatus = ""
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Scan implements sql.Scanner so NULL maps to PaymentNone.
func (s *PaymentStatus) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = PaymentNone
	case string:
		*s = PaymentStatus(v)
	case []byte:
		*s = PaymentStatus(string(v))
	default:
		return fmt.Errorf("scan payment status: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer; PaymentNone is written as NULL.
func (s PaymentStatus) Value() (driver.Value, error) {
	if s == PaymentNone {
		return nil, nil
	}
	return string(s), nil
}
