package cars

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// memoryRepo is an in-memory Repository. The mutex stands in for the row lock.
type memoryRepo struct {
	mu       sync.Mutex
	cars     map[string]Car
	onCommit func(Car)
	failNext error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{cars: map[string]Car{}}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Car, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Car
	for _, c := range m.cars {
		if filter.Brand != "" && !strings.Contains(strings.ToLower(c.Brand), strings.ToLower(filter.Brand)) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.MinPrice != nil && c.Price < *filter.MinPrice {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.SortBy == SortPrice {
			if filter.SortDesc {
				return out[i].Price > out[j].Price
			}
			return out[i].Price < out[j].Price
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := len(out)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[id]
	if !ok {
		return Car{}, httpx.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) Create(_ context.Context, car Car) (Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return Car{}, err
	}
	car.ID = uuid.NewString()
	car.CreatedAt = time.Now().Add(time.Duration(len(m.cars)) * time.Millisecond)
	car.UpdatedAt = car.CreatedAt
	m.cars[car.ID] = car
	return car, nil
}

func (m *memoryRepo) UpdateLocked(_ context.Context, id string, fn func(Car) (Car, error)) (Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.cars[id]
	if !ok {
		return Car{}, httpx.ErrNotFound
	}
	next, err := fn(current)
	if err != nil {
		return Car{}, err
	}
	if err := m.takeFailure(); err != nil {
		return Car{}, err
	}
	next.UpdatedAt = time.Now()
	m.cars[id] = next
	if m.onCommit != nil {
		m.onCommit(next)
	}
	return next, nil
}

func (m *memoryRepo) DeleteLocked(_ context.Context, id string, fn func(Car) error) (Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.cars[id]
	if !ok {
		return Car{}, httpx.ErrNotFound
	}
	if err := fn(current); err != nil {
		return Car{}, err
	}
	delete(m.cars, id)
	return current, nil
}

func (m *memoryRepo) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memoryRepo) stored(id string) Car {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cars[id]
}
