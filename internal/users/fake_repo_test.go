package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

// memoryRepo is an in-memory Repository. The mutex stands in for the row lock.
type memoryRepo struct {
	mu        sync.Mutex
	users     map[string]User
	hashes    map[string]string
	carImages map[string][]media.Reference
	failNext  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]User{}, hashes: map[string]string{}, carImages: map[string][]media.Reference{}}
}

func (m *memoryRepo) seed(u User, hash string) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().Add(-time.Duration(len(m.users)) * time.Minute)
	}
	m.users[u.ID] = u
	m.hashes[u.ID] = hash
	return u
}

func (m *memoryRepo) stored(id string) (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if filter.Email != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(filter.Email)) {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return out[start:end], total, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (User, error) {
	u, ok := m.stored(id)
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) EmailTaken(_ context.Context, email, exceptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) Create(_ context.Context, account NewAccount) (User, error) {
	if taken, _ := m.EmailTaken(context.Background(), account.Email, ""); taken {
		return User{}, httpx.ErrDuplicate
	}
	return m.seed(User{Email: account.Email, Name: account.Name, Role: account.Role, IsActive: account.IsActive}, account.PasswordHash), nil
}

func (m *memoryRepo) UpdateLocked(_ context.Context, id string, fn func(User) (User, error)) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	next, err := fn(current)
	if err != nil {
		return User{}, err
	}
	if m.failNext != nil {
		err, m.failNext = m.failNext, nil
		return User{}, err
	}
	next.UpdatedAt = time.Now()
	m.users[id] = next
	return next, nil
}

func (m *memoryRepo) mutate(id string, fn func(*User)) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	fn(&u)
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) SetActive(_ context.Context, id string, active bool) (User, error) {
	return m.mutate(id, func(u *User) { u.IsActive = active })
}

func (m *memoryRepo) SetRole(_ context.Context, id string, role rbac.Role) (User, error) {
	return m.mutate(id, func(u *User) { u.Role = role })
}

func (m *memoryRepo) PasswordHash(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.hashes[id]
	if !ok {
		return "", httpx.ErrNotFound
	}
	return hash, nil
}

func (m *memoryRepo) SetPasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return httpx.ErrNotFound
	}
	m.hashes[id] = hash
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) (Removed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return Removed{}, httpx.ErrNotFound
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return Removed{}, err
	}
	removed := Removed{User: u, CarImages: m.carImages[id]}
	delete(m.users, id)
	delete(m.hashes, id)
	delete(m.carImages, id)
	return removed, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []string
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log.Action+":"+log.EntityID)
	return nil
}
