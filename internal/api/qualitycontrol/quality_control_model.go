package qualitycontrol

import (
	"time"

	"github.com/google/uuid"
)

// Inspection results accepted by the API.
const (
	ResultPassed  = "Passed"
	ResultFailed  = "Failed"
	ResultPending = "Pending"
)

// dateLayout is the wire format for inspection and scheduled dates.
const dateLayout = "2006-01-02"

// QualityControl is one inspection of a production record. DisplayID is
// sequential per owner, independent of the production sequence. ProductID is
// deliberately not a foreign key: inspections outlive deleted productions and
// the detail view falls back to a placeholder product.
type QualityControl struct {
	ID             int64      `json:"id"`
	DisplayID      int        `json:"displayId"`
	ProductID      int64      `json:"productId"`
	InspectionDate time.Time  `json:"inspectionDate"`
	ScheduledDate  time.Time  `json:"scheduledDate"`
	Result         string     `json:"result"`
	Severity       *string    `json:"severity"`
	Notes          *string    `json:"notes"`
	UserID         *uuid.UUID `json:"userId"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// RecordOwner is the joined inspector username shown in list rows.
type RecordOwner struct {
	Username string `json:"username"`
}

// QualityControlWithUser is a list row with its inspector attached.
type QualityControlWithUser struct {
	QualityControl
	User *RecordOwner `json:"user"`
}

// ProductSummary is the inspected production as shown on the detail view.
type ProductSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// QualityControlWithProduct is the detail view. Product is always present;
// when the production was deleted it carries the "Unknown Product" placeholder.
type QualityControlWithProduct struct {
	QualityControl
	Product ProductSummary `json:"product"`
}

// CreateQualityControlRequest is the expected JSON body for creating an
// inspection. Dates arrive as YYYY-MM-DD strings.
type CreateQualityControlRequest struct {
	ProductID      int64   `json:"productId" validate:"required"`
	InspectionDate string  `json:"inspectionDate" validate:"required,datetime=2006-01-02"`
	ScheduledDate  string  `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	Result         string  `json:"result" validate:"required,oneof=Passed Failed Pending"`
	Severity       *string `json:"severity,omitempty" validate:"omitempty,max=20"`
	Notes          *string `json:"notes,omitempty"`
}

// UpdateQualityControlRequest carries a partial update. Severity is only
// applied when the result is being set to Failed.
type UpdateQualityControlRequest struct {
	ProductID      *int64  `json:"productId,omitempty"`
	InspectionDate *string `json:"inspectionDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ScheduledDate  *string `json:"scheduledDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Result         *string `json:"result,omitempty" validate:"omitempty,oneof=Passed Failed Pending"`
	Severity       *string `json:"severity,omitempty" validate:"omitempty,max=20"`
	Notes          *string `json:"notes,omitempty"`
}

// CreateQualityControlParams is what the repository persists.
type CreateQualityControlParams struct {
	ProductID      int64
	InspectionDate time.Time
	ScheduledDate  time.Time
	Result         string
	Severity       *string
	Notes          *string
	UserID         *uuid.UUID
}

// UpdateQualityControlParams mirrors UpdateQualityControlRequest at the store
// layer. The Set flags distinguish "leave alone" from "set (possibly to NULL)".
type UpdateQualityControlParams struct {
	ProductID      *int64
	InspectionDate *time.Time
	ScheduledDate  *time.Time
	Result         *string
	Severity       *string
	SeveritySet    bool
	Notes          *string
	NotesSet       bool
}
