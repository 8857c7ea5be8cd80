package reservations

import (
	"strings"
	"time"

	"github.com/autovisiontech/dealership/internal/shared"
)

// Status is the lifecycle state of a visit booking.
type Status string

// Reservation statuses.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Layouts for visit dates and times on the wire.
const (
	DateLayout = time.DateOnly
	TimeLayout = "15:04"
)

// CarSummary identifies the car a reservation is for.
type CarSummary struct {
	ID    string `json:"id"`
	Brand string `json:"brand"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// Title is the human readable car name.
func (c CarSummary) Title() string {
	return strings.TrimSpace(c.Brand + " " + c.Model)
}

// Reservation is a client's request to visit a car.
type Reservation struct {
	ID          string     `json:"id"`
	ClientName  string     `json:"clientName"`
	ClientEmail string     `json:"clientEmail"`
	ClientPhone string     `json:"clientPhone"`
	VisitDate   string     `json:"visitDate"`
	VisitTime   string     `json:"visitTime"`
	Status      Status     `json:"status"`
	CarID       string     `json:"carId"`
	Car         CarSummary `json:"car"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateInput is the public booking payload. New reservations always start pending.
type CreateInput struct {
	ClientName  string `json:"clientName" validate:"required,max=120"`
	ClientEmail string `json:"clientEmail" validate:"required,email,max=255"`
	ClientPhone string `json:"clientPhone" validate:"required,min=6,max=32"`
	VisitDate   string `json:"visitDate" validate:"required,datetime=2006-01-02"`
	VisitTime   string `json:"visitTime" validate:"required,datetime=15:04"`
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	ClientName  *string `json:"clientName" validate:"omitempty,min=1,max=120"`
	ClientEmail *string `json:"clientEmail" validate:"omitempty,email,max=255"`
	ClientPhone *string `json:"clientPhone" validate:"omitempty,min=6,max=32"`
	VisitDate   *string `json:"visitDate" validate:"omitempty,datetime=2006-01-02"`
	VisitTime   *string `json:"visitTime" validate:"omitempty,datetime=15:04"`
	Status      *Status `json:"status" validate:"omitempty,oneof=pending confirmed cancelled"`
}

func (in UpdateInput) apply(r *Reservation) {
	if in.ClientName != nil {
		r.ClientName = strings.TrimSpace(*in.ClientName)
	}
	if in.ClientEmail != nil {
		r.ClientEmail = strings.TrimSpace(*in.ClientEmail)
	}
	if in.ClientPhone != nil {
		r.ClientPhone = strings.TrimSpace(*in.ClientPhone)
	}
	if in.VisitDate != nil {
		r.VisitDate = *in.VisitDate
	}
	if in.VisitTime != nil {
		r.VisitTime = *in.VisitTime
	}
	if in.Status != nil {
		r.Status = *in.Status
	}
}

// StatusInput moves a reservation to any status, completed included.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

// ListFilter narrows the reservation listing. Dates use DateLayout.
type ListFilter struct {
	ClientName   string
	ClientEmail  string
	ClientPhone  string
	MinVisitDate string
	MaxVisitDate string
	Status       Status
	CarID        string
	// SortByVisitDate is "", "asc" or "desc". Empty sorts newest first.
	SortByVisitDate string
	shared.Pagination
}
