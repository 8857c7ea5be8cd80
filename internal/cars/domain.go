package cars

import (
	"time"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/shared"
)

// Status is the sale state of a car.
type Status string

// Car statuses.
const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
)

// Car is a vehicle listed by an agent.
type Car struct {
	ID            string         `json:"id"`
	Brand         string         `json:"brand"`
	Model         string         `json:"model"`
	Description   string         `json:"description"`
	Year          int            `json:"year"`
	Price         float64        `json:"price"`
	KilometerAge  int            `json:"kilometerAge"`
	Status        Status         `json:"status"`
	Condition     string         `json:"condition"`
	Images        media.MediaSet `json:"images"`
	Features      []string       `json:"features"`
	UserID        string         `json:"userId"`
	TotalComments int            `json:"totalComments"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// CreateInput is the payload for a new listing.
type CreateInput struct {
	Brand        string   `json:"brand" validate:"required,max=100"`
	Model        string   `json:"model" validate:"required,max=100"`
	Description  string   `json:"description" validate:"max=5000"`
	Year         int      `json:"year" validate:"required,gte=1900"`
	Price        float64  `json:"price" validate:"required,gt=0"`
	KilometerAge int      `json:"kilometerAge" validate:"required,gt=0"`
	Status       Status   `json:"status" validate:"required,oneof=available reserved sold"`
	Condition    string   `json:"condition" validate:"required,max=50"`
	Features     []string `json:"features" validate:"max=50,dive,max=100"`
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Brand        *string   `json:"brand" validate:"omitempty,min=1,max=100"`
	Model        *string   `json:"model" validate:"omitempty,min=1,max=100"`
	Description  *string   `json:"description" validate:"omitempty,max=5000"`
	Year         *int      `json:"year" validate:"omitempty,gte=1900"`
	Price        *float64  `json:"price" validate:"omitempty,gt=0"`
	KilometerAge *int      `json:"kilometerAge" validate:"omitempty,gt=0"`
	Status       *Status   `json:"status" validate:"omitempty,oneof=available reserved sold"`
	Condition    *string   `json:"condition" validate:"omitempty,min=1,max=50"`
	Features     *[]string `json:"features" validate:"omitempty,max=50,dive,max=100"`
	ImagesToKeep *[]string `json:"imagesToKeep"`
}

func (in UpdateInput) apply(car *Car) {
	if in.Brand != nil {
		car.Brand = *in.Brand
	}
	if in.Model != nil {
		car.Model = *in.Model
	}
	if in.Description != nil {
		car.Description = *in.Description
	}
	if in.Year != nil {
		car.Year = *in.Year
	}
	if in.Price != nil {
		car.Price = *in.Price
	}
	if in.KilometerAge != nil {
		car.KilometerAge = *in.KilometerAge
	}
	if in.Status != nil {
		car.Status = *in.Status
	}
	if in.Condition != nil {
		car.Condition = *in.Condition
	}
	if in.Features != nil {
		car.Features = *in.Features
	}
}

// MediaChange describes how an update touches the image set. A nil Keep
// replaces every existing image with Uploaded.
type MediaChange struct {
	Keep     *[]media.Reference
	Uploaded []media.Reference
}

// SortField names a sortable column.
type SortField string

// Sortable columns.
const (
	SortCreatedAt    SortField = "createdAt"
	SortPrice        SortField = "price"
	SortYear         SortField = "year"
	SortKilometerAge SortField = "kilometerAge"
)

// ListFilter narrows the public catalogue.
type ListFilter struct {
	Brand           string
	Model           string
	MinYear         *int
	MaxYear         *int
	MinPrice        *float64
	MaxPrice        *float64
	MinKilometerAge *int
	MaxKilometerAge *int
	Status          Status
	SortBy          SortField
	SortDesc        bool
	shared.Pagination
}
