package booking

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory scheduling store for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	appts []Appointment
	calls int

	// Err, when set, fails every write.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) CreateAppointment(ctx context.Context, a Appointment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.Err != nil {
		return "", r.Err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.appts = append(r.appts, a)
	return a.ID, nil
}

func (r *MemoryRepo) Appointments() []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, len(r.appts))
	copy(out, r.appts)
	return out
}

// Calls counts every write attempt, failed ones included.
func (r *MemoryRepo) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
