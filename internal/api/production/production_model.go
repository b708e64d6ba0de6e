package production

import (
	"time"

	"github.com/google/uuid"
)

// Production statuses accepted by the API.
const (
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// Production is a manufacturing run. DisplayID is sequential per owner and
// starts at 1; it is what operators see, distinct from the global primary key.
type Production struct {
	ID        int64      `json:"id"`
	DisplayID int        `json:"displayId"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Material  *string    `json:"material"`
	UserID    *uuid.UUID `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RecordOwner is the joined owner username shown in list rows.
type RecordOwner struct {
	Username string `json:"username"`
}

// ProductionWithUser is a list row with its owner attached.
type ProductionWithUser struct {
	Production
	User *RecordOwner `json:"user"`
}

// Inspection is a quality-control record attached to a production, as
// returned by the detail endpoint.
type Inspection struct {
	ID             int64     `json:"id"`
	DisplayID      int       `json:"displayId"`
	InspectionDate time.Time `json:"inspectionDate"`
	ScheduledDate  time.Time `json:"scheduledDate"`
	Result         string    `json:"result"`
	Severity       *string   `json:"severity"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ProductionWithInspections is the detail view.
type ProductionWithInspections struct {
	Production
	Inspections []Inspection `json:"inspections"`
}

// CreateProductionRequest is the expected JSON body for creating a production.
type CreateProductionRequest struct {
	Name     string  `json:"name" validate:"required,min=2,max=100"`
	Status   string  `json:"status" validate:"required,oneof='In Progress' 'Completed'"`
	Material *string `json:"material,omitempty" validate:"omitempty,max=255"`
}

// UpdateProductionRequest carries a partial update: only fields present in
// the payload are overwritten. An empty material clears it.
type UpdateProductionRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof='In Progress' 'Completed'"`
	Material *string `json:"material,omitempty" validate:"omitempty,max=255"`
}

// CreateProductionParams is what the repository persists.
type CreateProductionParams struct {
	Name     string
	Status   string
	Material *string
	UserID   *uuid.UUID
}

// UpdateProductionParams mirrors UpdateProductionRequest at the store layer.
// MaterialSet distinguishes "leave alone" from "set (possibly to NULL)".
type UpdateProductionParams struct {
	Name        *string
	Status      *string
	Material    *string
	MaterialSet bool
}
