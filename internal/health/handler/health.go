package handler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check reports one dependency's health.
type Check func(ctx context.Context) error

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) Check { return p.PingContext }

// PolicyCheck adapts a PolicyChecker.
func PolicyCheck(p PolicyChecker) Check { return p.HealthCheck }

// checkTimeout bounds every dependency check.
const checkTimeout = 2 * time.Second

// Status is the readiness result of all checks.
type Status struct {
	Up         bool
	Components map[string]error
}

// Checker runs named checks concurrently.
type Checker struct {
	checks map[string]Check
}

// NewChecker returns a Checker. Nil checks are skipped.
func NewChecker(checks map[string]Check) *Checker {
	c := &Checker{checks: make(map[string]Check, len(checks))}
	for name, fn := range checks {
		if fn != nil {
			c.checks[name] = fn
		}
	}
	return c
}

// Names returns the check names in stable order.
func (c *Checker) Names() []string {
	out := make([]string, 0, len(c.checks))
	for name := range c.checks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run executes every check and reports Up only if all of them pass.
func (c *Checker) Run(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = Status{Up: true, Components: make(map[string]error, len(c.checks))}
	)
	for name, fn := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			mu.Lock()
			defer mu.Unlock()
			out.Components[name] = err
			if err != nil {
				out.Up = false
			}
		}()
	}
	wg.Wait()
	return out
}
