package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

// --- Helpers ---

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runN(p *checker, n int) {
	for range n {
		p.run(context.Background())
	}
}

func get(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

// --- Tests ---

func TestLive_Passing(t *testing.T) {
	h := New()
	h.Register("goroutines", Liveness, passing)

	w := get(t, h.Live, "/livez")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"goroutines":"ok"}}`, w.Body.String())
}

func TestLive_FailsAfterThreshold(t *testing.T) {
	h := New()
	h.Register("goroutines", Liveness, failing("too many"))
	p := h.checkers[0]

	runN(p, 2)
	assert.Equal(t, http.StatusOK, get(t, h.Live, "/livez").Code)

	runN(p, 1)
	w := get(t, h.Live, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"goroutines":"too many"}}`, w.Body.String())
}

func TestCheck_RecoversAfterPassThreshold(t *testing.T) {
	h := New()
	var fail atomic.Bool
	fail.Store(true)
	h.Register("postgres", Readiness, func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(1, 2))
	p := h.checkers[0]

	runN(p, 1)
	_, ok := p.status()
	require.False(t, ok)

	fail.Store(false)
	runN(p, 1)
	_, ok = p.status()
	assert.False(t, ok, "one success is below the pass threshold")

	runN(p, 1)
	_, ok = p.status()
	assert.True(t, ok)
}

func TestReadyz_GateClosedByDefault(t *testing.T) {
	h := New()
	h.Register("postgres", Readiness, passing)

	w := get(t, h.Readyz, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"postgres":"ok","serving":"not serving"}}`, w.Body.String())
	assert.False(t, h.Ready())

	h.Serve(true)
	w = get(t, h.Readyz, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.Ready())
}

func TestReadyz_IgnoresLivenessChecks(t *testing.T) {
	h := New()
	h.Register("goroutines", Liveness, failing("x"), WithThresholds(1, 1))
	h.Register("redis", Readiness, passing)
	h.Serve(true)
	runN(h.checkers[0], 1)

	assert.Equal(t, http.StatusOK, get(t, h.Readyz, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h.Live, "/livez").Code)
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Register("slow", Readiness, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))

	runN(h.checkers[0], 1)

	msg, ok := h.checkers[0].status()
	assert.False(t, ok)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestStart_RunsChecks(t *testing.T) {
	h := New()
	var calls atomic.Int32
	h.Register("counter", Readiness, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestPing(t *testing.T) {
	assert.NoError(t, Ping(fakePinger{})(context.Background()))

	err := Ping(fakePinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Equal(t, "ping: refused", err.Error())
}

func TestGoroutineLimit(t *testing.T) {
	assert.NoError(t, GoroutineLimit(1_000_000)(context.Background()))
	assert.Error(t, GoroutineLimit(0)(context.Background()))
}
