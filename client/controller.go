package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"studioapi/models"
)

type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// MaxAttempts bounds the calls made for one Generate. Only the first two
// overloaded answers are retried.
const MaxAttempts = 3

const (
	MessageCancelled        = "Generation cancelled"
	MessageFailed           = "Failed to generate image"
	MessageRetriesExhausted = "Failed after maximum retries"
)

type Generator interface {
	CreateGeneration(ctx context.Context, in GenerationRequest) (*models.GenerationOut, error)
}

type Snapshot struct {
	State      State
	RetryCount int
	Err        string
	Result     *models.GenerationOut
}

func (s Snapshot) IsLoading() bool {
	return s.State == StateAttempting
}

// Backoff is the wait after the given number of failed attempts: 2s, then 4s.
func Backoff(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Controller runs one logical generate action at a time. A new Generate
// supersedes the previous one, and Abort cancels the in-flight action.
// Answers that arrive for a superseded or aborted action are dropped.
type Controller struct {
	api Generator

	// Sleep waits between attempts and returns early with ctx's error.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnChange, when set, receives every state change outside the lock.
	OnChange func(Snapshot)

	mu     sync.Mutex
	epoch  uint64
	cancel context.CancelFunc
	snap   Snapshot
}

func NewController(api Generator) *Controller {
	return &Controller{api: api, Sleep: sleepContext}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Controller) IsLoading() bool { return c.Snapshot().IsLoading() }

func (c *Controller) Err() string { return c.Snapshot().Err }

func (c *Controller) Result() *models.GenerationOut { return c.Snapshot().Result }

func (c *Controller) RetryCount() int { return c.Snapshot().RetryCount }

// Generate blocks until the action started here reaches a terminal state or
// is superseded, and returns the controller's snapshot at that point.
func (c *Controller) Generate(ctx context.Context, in GenerationRequest) Snapshot {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.epoch++
	epoch := c.epoch
	c.cancel = cancel
	c.snap = Snapshot{State: StateAttempting}
	snap := c.snap
	c.mu.Unlock()
	c.notify(snap)

	attempts := 0
	for attempts < MaxAttempts {
		result, err := c.api.CreateGeneration(runCtx, in)
		if err == nil {
			c.finish(epoch, StateSucceeded, result, "")
			return c.Snapshot()
		}

		attempts++
		if !c.update(epoch, func(s *Snapshot) { s.RetryCount = attempts }) {
			return c.Snapshot()
		}

		if runCtx.Err() != nil {
			c.finish(epoch, StateCancelled, nil, MessageCancelled)
			return c.Snapshot()
		}
		if IsModelOverloaded(err) && attempts < MaxAttempts {
			if sleepErr := c.Sleep(runCtx, Backoff(attempts)); sleepErr != nil {
				c.finish(epoch, StateCancelled, nil, MessageCancelled)
				return c.Snapshot()
			}
			continue
		}

		c.finish(epoch, StateFailed, nil, failureMessage(err))
		return c.Snapshot()
	}

	c.finish(epoch, StateFailed, nil, MessageRetriesExhausted)
	return c.Snapshot()
}

// Abort cancels the in-flight action. It does nothing unless an action is
// attempting.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.snap.State != StateAttempting {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.cancel = nil
	c.snap.State = StateCancelled
	c.snap.Err = MessageCancelled
	snap := c.snap
	c.mu.Unlock()
	c.notify(snap)
}

func failureMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return MessageFailed
}

// update applies fn if epoch is still the attempting action.
func (c *Controller) update(epoch uint64, fn func(s *Snapshot)) bool {
	c.mu.Lock()
	if epoch != c.epoch || c.snap.State != StateAttempting {
		c.mu.Unlock()
		return false
	}
	fn(&c.snap)
	snap := c.snap
	c.mu.Unlock()
	c.notify(snap)
	return true
}

func (c *Controller) finish(epoch uint64, state State, result *models.GenerationOut, message string) {
	c.update(epoch, func(s *Snapshot) {
		s.State = state
		s.Result = result
		s.Err = message
		c.cancel = nil
	})
}

func (c *Controller) notify(snap Snapshot) {
	if c.OnChange != nil {
		c.OnChange(snap)
	}
}
