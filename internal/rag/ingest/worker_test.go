package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_AcquireBlocksAtLimit(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(Deps{}, 2)

	s.acquire()
	s.acquire()

	acquired := make(chan struct{})
	go func() {
		s.acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("a third acquire must block while two are already in flight at limit=2")
	case <-time.After(30 * time.Millisecond):
	}

	s.release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("releasing one slot should unblock the parked acquire")
	}
	s.release()
	s.release()
}

func TestSupervisor_SetConcurrencyWakesParkedAcquire(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(Deps{}, 1)
	s.acquire()

	acquired := make(chan struct{})
	go func() {
		s.acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must block while limit=1 and one slot is in flight")
	case <-time.After(30 * time.Millisecond):
	}

	s.SetConcurrency(2)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("raising the limit should unblock the parked acquire without a release")
	}
	s.release()
	s.release()
}

func TestSupervisor_SetConcurrencyClampsToValidRange(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(Deps{}, 1)
	s.SetConcurrency(0)
	assert.Equal(t, 1, s.limit)
	s.SetConcurrency(1000)
	assert.Equal(t, 32, s.limit)
}

func TestSupervisor_StartReturnsImmediatelyWhenStopped(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(Deps{}, 1)
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.Start(t.Context())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start must return immediately when the supervisor is already stopped")
	}
}

func TestSupervisor_ResetAllowsRestartAfterStop(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(Deps{}, 1)
	s.Stop()
	require.True(t, s.stopped)

	s.Reset()
	assert.False(t, s.stopped)
}

func TestNewSupervisor_ClampsInitialConcurrency(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, NewSupervisor(Deps{}, 0).limit)
	assert.Equal(t, 32, NewSupervisor(Deps{}, 999).limit)
	assert.Equal(t, 5, NewSupervisor(Deps{}, 5).limit)
}
