package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"studioapi/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overloaded = &APIError{StatusCode: http.StatusServiceUnavailable, Message: "Model overloaded"}

type scriptedGenerator struct {
	mu      sync.Mutex
	answers []error
	calls   int
}

func (g *scriptedGenerator) CreateGeneration(ctx context.Context, in GenerationRequest) (*models.GenerationOut, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.answers) > 0 {
		err := g.answers[0]
		g.answers = g.answers[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.GenerationOut{ID: uint(g.calls), Prompt: in.Prompt, Style: in.Style, Status: models.GenerationCompleted}, nil
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestController(gen Generator) (*Controller, *sleepRecorder) {
	rec := &sleepRecorder{}
	c := NewController(gen)
	c.Sleep = rec.Sleep
	return c, rec
}

var request = GenerationRequest{Prompt: "a lighthouse", Style: models.StyleVintage, ImageName: "a.png", Image: []byte("img")}

func TestGenerateSucceedsFirstTry(t *testing.T) {
	gen := &scriptedGenerator{}
	c, sleeps := newTestController(gen)

	snap := c.Generate(context.Background(), request)

	assert.Equal(t, StateSucceeded, snap.State)
	assert.False(t, snap.IsLoading())
	assert.Equal(t, 0, snap.RetryCount)
	assert.Empty(t, snap.Err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "a lighthouse", snap.Result.Prompt)
	assert.Equal(t, 1, gen.Calls())
	assert.Empty(t, sleeps.delays)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	gen := &scriptedGenerator{answers: []error{overloaded, overloaded, overloaded}}
	c, sleeps := newTestController(gen)

	snap := c.Generate(context.Background(), request)

	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Model overloaded", snap.Err)
	assert.Equal(t, 3, snap.RetryCount)
	assert.Nil(t, snap.Result)
	assert.Equal(t, 3, gen.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{answers: []error{overloaded, nil}}
	c, sleeps := newTestController(gen)

	snap := c.Generate(context.Background(), request)

	assert.Equal(t, StateSucceeded, snap.State)
	assert.Equal(t, 1, snap.RetryCount)
	assert.NotNil(t, snap.Result)
	assert.Empty(t, snap.Err)
	assert.Equal(t, 2, gen.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.delays)
}

func TestGenerateNonRetryableFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect string
	}{
		{"validation", &APIError{StatusCode: http.StatusBadRequest, Message: "Validation error"}, "Validation error"},
		{"unauthenticated", &APIError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"}, "Unauthorized"},
		{"transport", errors.New("connection refused"), MessageFailed},
		{"unavailable without overload", &APIError{StatusCode: http.StatusServiceUnavailable, Message: "Service Unavailable"}, "Service Unavailable"},
		{"unavailable without body", &APIError{StatusCode: http.StatusServiceUnavailable}, MessageFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{answers: []error{tt.err}}
			c, sleeps := newTestController(gen)

			snap := c.Generate(context.Background(), request)

			assert.Equal(t, StateFailed, snap.State)
			assert.Equal(t, tt.expect, snap.Err)
			assert.Equal(t, 1, snap.RetryCount)
			assert.Equal(t, 1, gen.Calls())
			assert.Empty(t, sleeps.delays)
		})
	}
}

// blockingGenerator holds every call until release is closed and then
// answers with success, ignoring cancellation like a slow server would.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) CreateGeneration(ctx context.Context, in GenerationRequest) (*models.GenerationOut, error) {
	g.started <- struct{}{}
	<-g.release
	return &models.GenerationOut{ID: 1, Prompt: in.Prompt}, nil
}

func TestAbortIgnoresLateResponse(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	c, _ := newTestController(gen)

	done := make(chan Snapshot)
	go func() { done <- c.Generate(context.Background(), request) }()

	<-gen.started
	assert.True(t, c.IsLoading())
	c.Abort()

	snap := c.Snapshot()
	assert.Equal(t, StateCancelled, snap.State)
	assert.Equal(t, MessageCancelled, snap.Err)

	close(gen.release)
	final := <-done

	assert.Equal(t, StateCancelled, final.State)
	assert.Nil(t, final.Result)
	assert.Nil(t, c.Result())
	assert.Equal(t, MessageCancelled, c.Err())
}

func TestAbortDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{answers: []error{overloaded}}
	c := NewController(gen)
	waiting := make(chan struct{})
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		close(waiting)
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan Snapshot)
	go func() { done <- c.Generate(context.Background(), request) }()

	<-waiting
	c.Abort()
	snap := <-done

	assert.Equal(t, StateCancelled, snap.State)
	assert.Equal(t, 1, snap.RetryCount)
	assert.Equal(t, 1, gen.Calls())
}

func TestAbortWhenIdleIsNoop(t *testing.T) {
	c, _ := newTestController(&scriptedGenerator{})
	c.Abort()
	assert.Equal(t, StateIdle, c.Snapshot().State)

	c.Generate(context.Background(), request)
	c.Abort()
	assert.Equal(t, StateSucceeded, c.Snapshot().State)
}

func TestGenerateAgainResetsState(t *testing.T) {
	gen := &scriptedGenerator{answers: []error{overloaded, overloaded, overloaded, nil}}
	c, _ := newTestController(gen)

	first := c.Generate(context.Background(), request)
	require.Equal(t, StateFailed, first.State)
	require.Equal(t, 3, first.RetryCount)

	var seen []Snapshot
	c.OnChange = func(s Snapshot) { seen = append(seen, s) }
	second := c.Generate(context.Background(), request)

	require.NotEmpty(t, seen)
	assert.Equal(t, Snapshot{State: StateAttempting}, seen[0])
	assert.Equal(t, StateSucceeded, second.State)
	assert.Equal(t, 0, second.RetryCount)
	assert.Empty(t, second.Err)
	assert.NotNil(t, second.Result)
}

func TestGenerateSupersedesRunningAction(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 2), release: make(chan struct{})}
	c, _ := newTestController(gen)

	firstDone := make(chan Snapshot)
	go func() { firstDone <- c.Generate(context.Background(), request) }()
	<-gen.started

	secondDone := make(chan Snapshot)
	go func() {
		secondDone <- c.Generate(context.Background(), GenerationRequest{Prompt: "second", Style: models.StyleArtistic})
	}()
	<-gen.started

	close(gen.release)
	second := <-secondDone
	<-firstDone

	assert.Equal(t, StateSucceeded, second.State)
	require.NotNil(t, c.Result())
	assert.Equal(t, "second", c.Result().Prompt)
}

func TestParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{answers: []error{context.Canceled}}
	cancel()
	c, _ := newTestController(gen)

	snap := c.Generate(ctx, request)

	assert.Equal(t, StateCancelled, snap.State)
	assert.Equal(t, MessageCancelled, snap.Err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
}
