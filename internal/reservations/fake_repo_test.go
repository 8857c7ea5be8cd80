package reservations

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

type memoryRepo struct {
	mu           sync.Mutex
	cars         map[string]CarSummary
	reservations map[string]Reservation
}

func newMemoryRepo(cars ...CarSummary) *memoryRepo {
	m := &memoryRepo{cars: map[string]CarSummary{}, reservations: map[string]Reservation{}}
	for _, c := range cars {
		m.cars[c.ID] = c
	}
	return m
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Reservation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.reservations {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ClientName != "" && !strings.Contains(strings.ToLower(r.ClientName), strings.ToLower(filter.ClientName)) {
			continue
		}
		if filter.MinVisitDate != "" && r.VisitDate < filter.MinVisitDate {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.SortByVisitDate == "desc" {
			return out[i].VisitDate > out[j].VisitDate
		}
		return out[i].VisitDate < out[j].VisitDate
	})
	total := len(out)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return out[start:end], total, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return Reservation{}, httpx.ErrNotFound
	}
	return r, nil
}

func (m *memoryRepo) Car(_ context.Context, carID string) (CarSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[carID]
	if !ok {
		return CarSummary{}, httpx.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) Create(_ context.Context, r Reservation) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.NewString()
	r.Car = m.cars[r.CarID]
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.reservations[r.ID] = r
	return r, nil
}

func (m *memoryRepo) UpdateLocked(_ context.Context, id string, fn func(Reservation) (Reservation, error)) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reservations[id]
	if !ok {
		return Reservation{}, httpx.ErrNotFound
	}
	next, err := fn(current)
	if err != nil {
		return Reservation{}, err
	}
	next.UpdatedAt = time.Now()
	m.reservations[id] = next
	return next, nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.reservations, id)
	return nil
}

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}
