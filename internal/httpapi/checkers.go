package httpapi

import "context"

// pinger is satisfied by every store collaborator's Ping method.
type pinger interface {
	Ping(ctx context.Context) error
}

// depChecker adapts any pinger into a named HealthChecker.
type depChecker struct {
	name string
	p    pinger
}

// NewDepChecker builds a HealthChecker for a store collaborator that
// exposes a Ping(ctx) error method.
func NewDepChecker(name string, p pinger) HealthChecker {
	return depChecker{name: name, p: p}
}

func (d depChecker) Name() string                    { return d.name }
func (d depChecker) Check(ctx context.Context) error { return d.p.Ping(ctx) }

// funcPinger adapts a plain func(ctx) error (e.g. embedder.Client.CheckReachability)
// to the pinger interface.
type funcPinger func(ctx context.Context) error

func (f funcPinger) Ping(ctx context.Context) error { return f(ctx) }

// NewFuncChecker builds a HealthChecker from a bare reachability func.
func NewFuncChecker(name string, check func(ctx context.Context) error) HealthChecker {
	return depChecker{name: name, p: funcPinger(check)}
}
