// Package health serves liveness and readiness endpoints backed by periodic
// background checks.
//
// A check flips to failing only after FailAfter consecutive errors and back to
// passing after PassAfter consecutive successes, so a single slow ping does
// not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil while the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects which endpoint a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Option tunes a registered check.
type Option func(*checker)

// WithTimeout bounds a single run of the check. Defaults to 2s.
func WithTimeout(d time.Duration) Option {
	return func(p *checker) { p.timeout = d }
}

// WithThresholds sets how many consecutive results change the checker state.
func WithThresholds(failAfter, passAfter int) Option {
	return func(p *checker) {
		if failAfter > 0 {
			p.failAfter = failAfter
		}
		if passAfter > 0 {
			p.passAfter = passAfter
		}
	}
}

type checker struct {
	name      string
	kind      Kind
	check     CheckFunc
	timeout   time.Duration
	failAfter int
	passAfter int

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	// Only touched by the checker's own goroutine.
	fails  int
	passes int
}

func (p *checker) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.passing.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.passes++
	if p.passes >= p.passAfter {
		p.passing.Store(true)
	}
}

func (p *checker) status() (string, bool) {
	if p.passing.Load() {
		return "ok", true
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, false
	}
	return "failing", false
}

// Health owns the registered checkers and the serving gate.
type Health struct {
	serving atomic.Bool

	mu     sync.Mutex
	checkers []*checker
	stop   context.CancelFunc
}

// New returns a Health that is not serving until Serve(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start as passing.
func (h *Health) Register(name string, kind Kind, check CheckFunc, opts ...Option) {
	p := &checker{
		name:      name,
		kind:      kind,
		check:     check,
		timeout:   2 * time.Second,
		failAfter: 3,
		passAfter: 1,
	}
	for _, o := range opts {
		o(p)
	}
	p.passing.Store(true)

	h.mu.Lock()
	h.checkers = append(h.checkers, p)
	h.mu.Unlock()
}

// Start runs every registered check now and then once per interval.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.stop != nil {
		h.stop()
	}
	h.stop = cancel
	checkers := append([]*checker(nil), h.checkers...)
	h.mu.Unlock()

	for _, p := range checkers {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

// Serve opens or closes the readiness gate. The server closes it before
// draining so load balancers stop routing new requests.
func (h *Health) Serve(ok bool) {
	h.serving.Store(ok)
}

// Ready reports whether the gate is open and every readiness checker passes.
func (h *Health) Ready() bool {
	ok, _ := h.evaluate(Readiness)
	return ok && h.serving.Load()
}

func (h *Health) evaluate(kind Kind) (bool, map[string]string) {
	h.mu.Lock()
	checkers := append([]*checker(nil), h.checkers...)
	h.mu.Unlock()

	all := true
	checks := make(map[string]string)
	for _, p := range checkers {
		if p.kind != kind {
			continue
		}
		s, ok := p.status()
		checks[p.name] = s
		all = all && ok
	}
	return all, checks
}

// Live serves GET /livez.
func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	ok, checks := h.evaluate(Liveness)
	write(w, ok, checks)
}

// Readyz serves GET /readyz.
func (h *Health) Readyz(w http.ResponseWriter, _ *http.Request) {
	ok, checks := h.evaluate(Readiness)
	if !h.serving.Load() {
		ok = false
		checks["serving"] = "not serving"
	}
	write(w, ok, checks)
}

// write renders {"status":"ok|unavailable","checks":{name:state}} with check
// names in sorted order.
func write(w http.ResponseWriter, ok bool, checks map[string]string) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if len(names) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(checks[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
