package model

import (
	"strings"
	"time"
)

// InvoiceDirection indicates whether an invoice was issued by or to the user.
type InvoiceDirection string

const (
	// DirectionIncoming is an invoice the user received (they are the recipient).
	DirectionIncoming InvoiceDirection = "incoming"
	// DirectionOutgoing is an invoice the user issued.
	DirectionOutgoing InvoiceDirection = "outgoing"
	// DirectionUnknown means neither entity could be matched to the user.
	DirectionUnknown InvoiceDirection = "unknown"
)

// UserAccountRole names which invoice entity was identified as the user.
type UserAccountRole string

const (
	// RoleIssuer means the user is the invoice issuer.
	RoleIssuer UserAccountRole = "issuer"
	// RoleRecipient means the user is the invoice recipient.
	RoleRecipient UserAccountRole = "recipient"
	// RoleNone means no entity matched the user.
	RoleNone UserAccountRole = ""
)

// Entity is a structured party extracted from an invoice.
type Entity struct {
	Name  string `json:"name"`
	VatID string `json:"vatId"`
	Iban  string `json:"iban"`
	Email string `json:"email"`
}

// IsZero reports whether nothing was extracted for this entity.
func (e Entity) IsZero() bool {
	return e.Name == "" && e.VatID == "" && e.Iban == "" && e.Email == ""
}

// File represents an uploaded or emailed receipt/invoice with its extracted
// fields. Extraction results come from an external pipeline and are treated
// as given; absent fields are non-matching signals, not errors.
type File struct {
	CreatedAt            time.Time
	ExtractedDate        time.Time
	ID                   string
	UserID               string
	FileName             string
	ExtractedCurrency    string
	ExtractedPartner     string // counterparty name as extracted
	ExtractedVatID       string
	ExtractedIban        string
	EmailDomain          string // sender domain when the file arrived by email
	InvoiceDirection     InvoiceDirection
	MatchedUserAccount   UserAccountRole
	Counterparty         string // resolver-derived counterparty name; extracted fields stay untouched
	PartnerID            string
	TransactionIDs       []string
	ExtractedAmountCents int64
	ExtractedIssuer      Entity
	ExtractedRecipient   Entity
	ExtractionComplete   bool
	NotInvoice           bool // user or extraction marked this as not an invoice
	PossibleInvoice      bool // upstream email classification hint
}

// CombineText joins matchable text fields into one lowercased string.
// Matching against it is holistic; there is no per-field confidence penalty.
func CombineText(fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			parts = append(parts, strings.ToLower(f))
		}
	}
	return strings.Join(parts, " ")
}
