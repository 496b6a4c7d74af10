package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/domain"
	"ragservice/internal/scope"
)

func TestBroadcaster_FiltersByVisibility(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()

	tenantSub, cancelTenant := b.Subscribe(scope.New("acme", "", ""))
	defer cancelTenant()
	ws1Sub, cancelWs1 := b.Subscribe(scope.New("acme", "ws-1", ""))
	defer cancelWs1()

	event := domain.ProgressEvent{
		DocID:    "doc-1",
		ScopeKey: domain.ScopeKey{TenantID: "acme", Scope: domain.ScopeWorkspace, WorkspaceID: "ws-2"},
		Stage:    domain.StageIndexed,
		Progress: 100,
	}
	b.Broadcast(event)

	select {
	case <-tenantSub:
		t.Fatal("tenant-only subscriber without a workspace header must not see a workspace-scoped event")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-ws1Sub:
		t.Fatal("subscriber scoped to ws-1 must not see an event scoped to ws-2")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcaster_DeliversToMatchingSubscriber(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()

	sub, cancel := b.Subscribe(scope.New("acme", "ws-1", ""))
	defer cancel()

	event := domain.ProgressEvent{
		DocID:    "doc-1",
		ScopeKey: domain.ScopeKey{TenantID: "acme", Scope: domain.ScopeWorkspace, WorkspaceID: "ws-1"},
		Stage:    domain.StageChunking,
		Progress: 35,
	}
	b.Broadcast(event)

	select {
	case got := <-sub:
		assert.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("expected event was never delivered")
	}
}

func TestBroadcaster_DropsOnFullBuffer(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()

	vis := scope.New("acme", "", "")
	sub, cancel := b.Subscribe(vis)
	defer cancel()

	event := domain.ProgressEvent{ScopeKey: domain.ScopeKey{TenantID: "acme", Scope: domain.ScopeTenant}}
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Broadcast(event)
	}

	// A slow consumer never blocks Broadcast, and its channel caps out at
	// subscriberBuffer rather than growing unbounded.
	drained := 0
	for {
		select {
		case <-sub:
			drained++
		default:
			assert.LessOrEqual(t, drained, subscriberBuffer)
			return
		}
	}
}

func TestBroadcaster_Run(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()
	sub, cancel := b.Subscribe(scope.New("acme", "", ""))
	defer cancel()

	upstream := make(chan domain.ProgressEvent, 1)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go b.Run(ctx, upstream)

	event := domain.ProgressEvent{ScopeKey: domain.ScopeKey{TenantID: "acme", Scope: domain.ScopeTenant}, Stage: domain.StageIndexed}
	upstream <- event

	select {
	case got := <-sub:
		assert.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("Run did not forward the upstream event")
	}
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()
	sub, cancel := b.Subscribe(scope.New("acme", "", ""))
	cancel()

	_, ok := <-sub
	require.False(t, ok, "subscriber channel must be closed after cancel")
}
