package users

import (
	"strings"
	"time"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

// User is an account as seen by administrators and by its owner.
type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Image     media.Reference `json:"image,omitempty"`
	Location  string          `json:"location"`
	Phone     string          `json:"phone"`
	Role      rbac.Role       `json:"role"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Images returns the profile image as a media set.
func (u User) Images() media.MediaSet {
	if u.Image == "" {
		return media.MediaSet{}
	}
	return media.MediaSet{u.Image}
}

// ListFilter narrows the user listing.
type ListFilter struct {
	Email       string
	Name        string
	Role        rbac.Role
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	shared.Pagination
}

// ProfileInput is a partial profile update. Nil fields are left unchanged.
type ProfileInput struct {
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Name     *string `json:"name" validate:"omitempty,max=120"`
	Location *string `json:"location" validate:"omitempty,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

func (in ProfileInput) empty() bool {
	return in.Email == nil && in.Name == nil && in.Location == nil && in.Phone == nil
}

func (in ProfileInput) apply(u *User) {
	if in.Email != nil {
		u.Email = normalizeEmail(*in.Email)
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Location != nil {
		u.Location = strings.TrimSpace(*in.Location)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
}

// PasswordInput changes the caller's password.
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password,nefield=CurrentPassword"`
}

// AdminInput creates an administrator account.
type AdminInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password"`
	Name     string `json:"name" validate:"omitempty,max=120"`
}

// RoleInput assigns a role.
type RoleInput struct {
	Role rbac.Role `json:"role" validate:"required,oneof=admin agent"`
}

// NewAccount is the input for account creation.
type NewAccount struct {
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	IsActive     bool
}

// Removed lists the media a deleted account left behind.
type Removed struct {
	User      User
	CarImages []media.Reference
}

// Media returns every file the account owned.
func (r Removed) Media() []media.Reference {
	out := make([]media.Reference, 0, len(r.CarImages)+1)
	if r.User.Image != "" {
		out = append(out, r.User.Image)
	}
	return append(out, r.CarImages...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
