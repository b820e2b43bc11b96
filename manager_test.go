package mqjs

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newScriptedManager(t *testing.T, mcfg ManagerConfig) (*Manager, *scriptedFactory) {
	t.Helper()
	f := &scriptedFactory{}
	m, err := NewManager(DefaultConfig(), mcfg, WithEngineFactory(f.New))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, f
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m, _ := newScriptedManager(t, ManagerConfig{})

	a, err := m.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Get("b")
	if err != nil {
		t.Fatal(err)
	}
	a.Run("print:from a")
	if got := b.Output(); got != "" {
		t.Errorf("b.Output = %q, want empty", got)
	}

	again, _ := m.Get("a")
	if again != a {
		t.Error("Get returned a different session for the same id")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestManager_MaxSessions(t *testing.T) {
	m, _ := newScriptedManager(t, ManagerConfig{MaxSessions: 1})

	if _, err := m.Get("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get("b"); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("Get(b) error = %v, want ErrTooManySessions", err)
	}
	if _, err := m.Get("a"); err != nil {
		t.Errorf("Get(a) again: %v", err)
	}
}

func TestManager_Remove(t *testing.T) {
	m, f := newScriptedManager(t, ManagerConfig{})

	s, _ := m.Get("a")
	s.Run("1")
	if !m.Remove("a") {
		t.Error("Remove(a) = false")
	}
	if !f.last().closed {
		t.Error("engine not cleaned up")
	}
	if m.Remove("a") {
		t.Error("second Remove(a) = true")
	}
	if _, ok := m.Lookup("a"); ok {
		t.Error("Lookup found a removed session")
	}
}

func TestManager_Sweep(t *testing.T) {
	m, _ := newScriptedManager(t, ManagerConfig{IdleTimeout: time.Minute})

	m.Get("old")
	m.Get("new")

	if n := m.Sweep(time.Now()); n != 0 {
		t.Errorf("Sweep(now) removed %d", n)
	}
	if n := m.Sweep(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Errorf("Sweep(+2m) removed %d, want 2", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestManager_SweepDisabled(t *testing.T) {
	m, _ := newScriptedManager(t, ManagerConfig{})
	m.Get("a")
	if n := m.Sweep(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Errorf("Sweep removed %d with eviction disabled", n)
	}
}

func TestManager_Shutdown(t *testing.T) {
	m, f := newScriptedManager(t, ManagerConfig{})

	s, _ := m.Get("a")
	s.Run("1")
	m.Shutdown()

	if !f.last().closed {
		t.Error("engine not closed by Shutdown")
	}
	if _, err := m.Get("b"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Shutdown error = %v, want ErrClosed", err)
	}
}

func TestManager_ConcurrentSessions(t *testing.T) {
	m, _ := newScriptedManager(t, ManagerConfig{})

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s, err := m.Get(id)
			if err != nil {
				t.Error(err)
				return
			}
			for i := 0; i < 20; i++ {
				if got := s.Run(id); got != id {
					t.Errorf("Run(%q) = %q", id, got)
				}
			}
		}(id)
	}
	wg.Wait()

	if got := m.IDs(); len(got) != 4 || got[0] != "a" || got[3] != "d" {
		t.Errorf("IDs = %v", got)
	}
}

func TestManager_MemoryBudget(t *testing.T) {
	m, _ := newScriptedManager(t, ManagerConfig{})
	if got := m.MemoryBudget(); got != defaultMemoryBudget {
		t.Errorf("MemoryBudget = %d, want %d", got, defaultMemoryBudget)
	}

	cfg := DefaultConfig()
	cfg.MemoryBudget = 3 << 20
	m2, err := NewManager(cfg, ManagerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if got := m2.MemoryBudget(); got != 3<<20 {
		t.Errorf("MemoryBudget = %d, want %d", got, 3<<20)
	}
}
