package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lead is an inbound enquiry. Once ConvertedAt is set the lead is terminal
// for conversion and ClientID, ProjectID and ArchivedAt are also set.
type Lead struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email"`
	Company     string     `db:"company" json:"company"`
	Message     string     `db:"message" json:"message"`
	Status      LeadStatus `db:"status" json:"status"`
	ClientID    Ref        `db:"client_id" json:"client_id"`
	ProjectID   Ref        `db:"project_id" json:"project_id"`
	ConvertedAt *time.Time `db:"converted_at" json:"converted_at,omitempty"`
	ArchivedAt  *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	ArchivedBy  Ref        `db:"archived_by" json:"archived_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// IsConverted reports whether the lead has completed conversion.
func (l Lead) IsConverted() bool {
	return l.ConvertedAt != nil
}

// Client is a customer organisation. Email is stored normalised and is the
// matching key used by conversion.
type Client struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Company   string     `db:"company" json:"company"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ClientUser is a contact person at a client. Portal access tokens are
// bound to a ClientUser.
type ClientUser struct {
	ID        string    `db:"id" json:"id"`
	ClientID  string    `db:"client_id" json:"client_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Project is a piece of client work. It always belongs to one client.
type Project struct {
	ID          string    `db:"id" json:"id"`
	ClientID    string    `db:"client_id" json:"client_id"`
	Name        string    `db:"name" json:"name"`
	Type        string    `db:"type" json:"type"`
	Status      string    `db:"status" json:"status"`
	Description string    `db:"description" json:"description"`
	AssignedTo  Ref       `db:"assigned_to" json:"assigned_to"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Document is a proposal or a master service agreement.
// SignedAt is set exactly when Status is DocumentSigned.
type Document struct {
	ID              string         `db:"id" json:"id"`
	Kind            DocumentKind   `db:"kind" json:"kind"`
	Title           string         `db:"title" json:"title"`
	Status          DocumentStatus `db:"status" json:"status"`
	CurrentVersion  int            `db:"current_version" json:"current_version"`
	Content         string         `db:"content" json:"content"`
	LeadID          Ref            `db:"lead_id" json:"lead_id"`
	ClientID        Ref            `db:"client_id" json:"client_id"`
	ProjectID       Ref            `db:"project_id" json:"project_id"`
	SentToContactID Ref            `db:"sent_to_contact_id" json:"sent_to_contact_id"`
	SentAt          *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	SignerName      string         `db:"signer_name" json:"signer_name,omitempty"`
	SignerEmail     string         `db:"signer_email" json:"signer_email,omitempty"`
	SignatureSVG    string         `db:"signature_svg" json:"-"`
	SignerIP        string         `db:"signer_ip" json:"-"`
	SignedAt        *time.Time     `db:"signed_at" json:"signed_at,omitempty"`
	RejectedAt      *time.Time     `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ArchivedAt      *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// AccessToken grants a client contact portal access to documents sent to
// them. Only the hash of the bearer string is persisted.
type AccessToken struct {
	ID        string     `db:"id" json:"id"`
	TokenHash string     `db:"token_hash" json:"-"`
	ContactID string     `db:"contact_id" json:"contact_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Milestone is a billable unit of project work. SortOrder is dense and
// zero-based within the project.
type Milestone struct {
	ID          string              `db:"id" json:"id"`
	ProjectID   string              `db:"project_id" json:"project_id"`
	Title       string              `db:"title" json:"title"`
	Amount      decimal.Decimal     `db:"amount" json:"amount"`
	GSTRate     decimal.NullDecimal `db:"gst_rate" json:"gst_rate"`
	Status      MilestoneStatus     `db:"status" json:"status"`
	SortOrder   int                 `db:"sort_order" json:"sort_order"`
	InvoiceID   Ref                 `db:"invoice_id" json:"invoice_id"`
	CompletedAt *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// Invoice is a bill for a client. PaymentStatus paid implies a Payment whose
// Reference is the payment intent that settled it.
type Invoice struct {
	ID                     string          `db:"id" json:"id"`
	ClientID               Ref             `db:"client_id" json:"client_id"`
	ProjectID              Ref             `db:"project_id" json:"project_id"`
	MilestoneID            Ref             `db:"milestone_id" json:"milestone_id"`
	Subtotal               decimal.Decimal `db:"subtotal" json:"subtotal"`
	GSTAmount              decimal.Decimal `db:"gst_amount" json:"gst_amount"`
	Total                  decimal.Decimal `db:"total" json:"total"`
	PaymentStatus          PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentStatusUpdatedAt *time.Time      `db:"payment_status_updated_at" json:"payment_status_updated_at,omitempty"`
	CheckoutSessionID      Ref             `db:"checkout_session_id" json:"checkout_session_id"`
	PaymentIntentID        Ref             `db:"payment_intent_id" json:"payment_intent_id"`
	XeroInvoiceID          Ref             `db:"xero_invoice_id" json:"xero_invoice_id"`
	LastPaymentError       string          `db:"last_payment_error" json:"last_payment_error,omitempty"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
}

// Payment is money received against an invoice. (InvoiceID, Reference) is
// unique; Reference is the payment intent id or a manual reference.
type Payment struct {
	ID          string          `db:"id" json:"id"`
	InvoiceID   string          `db:"invoice_id" json:"invoice_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate time.Time       `db:"payment_date" json:"payment_date"`
	Method      string          `db:"method" json:"method"`
	Reference   string          `db:"reference" json:"reference"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
