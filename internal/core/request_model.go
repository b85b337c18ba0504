package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartRequest is a requester's demand for parts, e.g. a driver needing spares
// for a vehicle. Status follows the RequestStatus state machine:
//
//	DRAFT → SUBMITTED → APPROVED → RESERVED | PARTIAL → ISSUED → CLOSED
//	any non-terminal status before ISSUED → CANCELLED
type PartRequest struct {
	ID            int               `json:"id"`
	TenantID      int               `json:"tenant_id"`
	RequestNumber string            `json:"request_number"`
	Status        RequestStatus     `json:"status"`
	RequesterID   int               `json:"requester_id"`
	DriverID      *int              `json:"driver_id,omitempty"`
	VehicleRef    string            `json:"vehicle_ref"`
	Notes         string            `json:"notes"`
	Lines         []PartRequestLine `json:"lines"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SubmittedAt   *time.Time        `json:"submitted_at,omitempty"`
	ApprovedAt    *time.Time        `json:"approved_at,omitempty"`
	ReservedAt    *time.Time        `json:"reserved_at,omitempty"`
	IssuedAt      *time.Time        `json:"issued_at,omitempty"`
	ClosedAt      *time.Time        `json:"closed_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
}

// RecipientID is the person who physically receives issued parts: the
// driver when one is named, otherwise the requester.
func (r PartRequest) RecipientID() int {
	if r.DriverID != nil {
		return *r.DriverID
	}
	return r.RequesterID
}

// PartRequestLine is one (part, quantity) demand on a request.
// QuantityIssued never exceeds QuantityRequested.
type PartRequestLine struct {
	ID                int             `json:"id"`
	RequestID         int             `json:"request_id"`
	LineNumber        int             `json:"line_number"`
	PartID            int             `json:"part_id"`
	SKU               string          `json:"sku"`       // joined from parts
	PartName          string          `json:"part_name"` // joined from parts
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityReserved  decimal.Decimal `json:"quantity_reserved"`
	QuantityIssued    decimal.Decimal `json:"quantity_issued"`
}

// Outstanding is what still has to be issued for the line.
func (l PartRequestLine) Outstanding() decimal.Decimal {
	return l.QuantityRequested.Sub(l.QuantityIssued)
}

// CreateRequestInput is used when creating a new DRAFT request.
type CreateRequestInput struct {
	DriverID   *int
	VehicleRef string
	Notes      string
	Lines      []RequestLineInput
}

// RequestLineInput is a single line within a CreateRequestInput.
type RequestLineInput struct {
	PartID   int
	Quantity decimal.Decimal
}

// ReservePolicy configures ReserveRequest. Allocation is always FIFO.
type ReservePolicy struct {
	AllowPartial bool
}

// Reservation is a soft hold of Quantity units of a balance for a request line.
type Reservation struct {
	ID            int             `json:"id"`
	RequestID     int             `json:"request_id"`
	RequestLineID int             `json:"request_line_id"`
	BalanceID     int             `json:"balance_id"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// IssueDocumentStatus tracks recipient acknowledgment of an issue.
type IssueDocumentStatus string

const (
	IssueDocumentIssued    IssueDocumentStatus = "ISSUED"
	IssueDocumentConfirmed IssueDocumentStatus = "CONFIRMED"
)

// IssueDocument records what physically left the warehouse for a request.
type IssueDocument struct {
	ID             int                 `json:"id"`
	TenantID       int                 `json:"tenant_id"`
	DocumentNumber string              `json:"document_number"`
	RequestID      int                 `json:"request_id"`
	Status         IssueDocumentStatus `json:"status"`
	IssuedBy       int                 `json:"issued_by"`
	RecipientID    int                 `json:"recipient_id"`
	IssuedAt       time.Time           `json:"issued_at"`
	ConfirmedAt    *time.Time          `json:"confirmed_at,omitempty"`
	ConfirmedBy    *int                `json:"confirmed_by,omitempty"`
	Lines          []IssueLine         `json:"lines"`
}

// IssueLine is one (part, lot, location, quantity) that left under an IssueDocument.
type IssueLine struct {
	ID            int             `json:"id"`
	DocumentID    int             `json:"document_id"`
	RequestLineID int             `json:"request_line_id"`
	PartID        int             `json:"part_id"`
	LotID         int             `json:"lot_id"`
	LocationID    int             `json:"location_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}
