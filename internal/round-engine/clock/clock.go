package clock

import (
	"sync"
	"time"
)

// Clock abstrai o relógio de parede para que scheduler e admissão sejam testáveis
type Clock interface {
	Now() time.Time
}

// System usa time.Now em UTC
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fake é um relógio controlado manualmente, seguro para uso concorrente
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(t time.Time) *Fake { return &Fake{now: t.UTC()} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
