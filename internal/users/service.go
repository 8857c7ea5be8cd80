package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/autovisiontech/dealership/internal/auth"
	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

const auditEntity = "user"

// Service implements account administration and profile management.
type Service struct {
	repo       Repository
	reconciler *media.Reconciler
	audit      shared.AuditRecorder
	logger     *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, reconciler *media.Reconciler, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, reconciler: reconciler, audit: audit, logger: logger}
}

// List returns one page of accounts.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[User], error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[User]{}, fmt.Errorf("list users: %w", err)
	}
	return shared.NewPage(items, filter.Pagination, total), nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// UpdateProfile applies a partial update to the account's contact details.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) (User, error) {
	if input.empty() {
		return s.repo.Get(ctx, id)
	}
	if input.Email != nil {
		taken, err := s.repo.EmailTaken(ctx, normalizeEmail(*input.Email), id)
		if err != nil {
			return User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return User{}, fmt.Errorf("%w: email already in use", httpx.ErrDuplicate)
		}
	}
	return s.repo.UpdateLocked(ctx, id, func(current User) (User, error) {
		input.apply(&current)
		return current, nil
	})
}

// ReplaceProfileImage sets ref as the profile image. The previous image is
// deleted once the update has committed.
func (s *Service) ReplaceProfileImage(ctx context.Context, id string, ref media.Reference) (User, error) {
	return s.swapImage(ctx, id, []media.Reference{ref})
}

// RemoveProfileImage clears the profile image and deletes its file.
func (s *Service) RemoveProfileImage(ctx context.Context, id string) (User, error) {
	return s.swapImage(ctx, id, nil)
}

func (s *Service) swapImage(ctx context.Context, id string, uploaded []media.Reference) (User, error) {
	var plan media.Plan
	keep := []media.Reference{}
	updated, err := s.repo.UpdateLocked(ctx, id, func(current User) (User, error) {
		p, err := s.reconciler.Plan(ctx, current.Images(), &keep, uploaded)
		if err != nil {
			return User{}, err
		}
		plan = p
		current.Image = ""
		if len(p.Target) > 0 {
			current.Image = p.Target[0]
		}
		return current, nil
	})
	if err != nil {
		return User{}, err
	}
	s.reconciler.Finalize(ctx, plan)
	return updated, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id string, input PasswordInput) error {
	hash, err := s.repo.PasswordHash(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.CurrentPassword)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", httpx.ErrValidation)
	}
	next, err := auth.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, next)
}

// CreateAdmin registers an active administrator.
func (s *Service) CreateAdmin(ctx context.Context, actor rbac.Identity, input AdminInput) (User, error) {
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.Create(ctx, NewAccount{
		Email:        normalizeEmail(input.Email),
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		Role:         rbac.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, shared.AuditAdminCreated, created.ID, map[string]any{"email": created.Email})
	return created, nil
}

// SetActive activates or deactivates an account. Administrators cannot
// deactivate themselves.
func (s *Service) SetActive(ctx context.Context, actor rbac.Identity, id string, active bool) (User, error) {
	if !active && actor.ID == id {
		return User{}, fmt.Errorf("%w: you cannot deactivate your own account", httpx.ErrValidation)
	}
	updated, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}
	action := shared.AuditUserDeactivated
	if active {
		action = shared.AuditUserActivated
	}
	s.record(ctx, actor, action, id, nil)
	return updated, nil
}

// ChangeRole assigns role to the account. Administrators cannot change their own role.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Identity, id string, role rbac.Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, role)
	}
	if actor.ID == id {
		return User{}, fmt.Errorf("%w: you cannot change your own role", httpx.ErrValidation)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	updated, err := s.repo.SetRole(ctx, id, role)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, shared.AuditUserRoleChanged, id, map[string]any{"from": current.Role, "to": role})
	return updated, nil
}

// Delete removes the account with its cars, then every file they owned.
func (s *Service) Delete(ctx context.Context, actor rbac.Identity, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	report := s.reconciler.Discard(ctx, removed.Media())
	s.logger.Info("user deleted", slog.String("user_id", id), slog.Int("files_removed", len(report.Deleted)),
		slog.Int("files_failed", len(report.Failed)))
	s.record(ctx, actor, shared.AuditUserDeleted, id, map[string]any{"email": removed.User.Email})
	return nil
}

func (s *Service) record(ctx context.Context, actor rbac.Identity, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(context.WithoutCancel(ctx), shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   auditEntity,
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
