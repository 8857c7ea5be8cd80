package auth

import (
	"time"

	"github.com/autovisiontech/dealership/internal/rbac"
)

// User represents an account able to sign in.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity projects the account into the principal used by authorization.
func (u *User) Identity() *rbac.Identity {
	return &rbac.Identity{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive}
}

// NewUser is the input for account creation.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	IsActive     bool
}

// SignUpInput is the public registration payload.
type SignUpInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password"`
	Name     string `json:"name" validate:"omitempty,max=120"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserView is the public projection of an account.
type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      rbac.Role `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// View builds the public projection.
func (u *User) View() UserView {
	return UserView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, IsActive: u.IsActive, CreatedAt: u.CreatedAt}
}
