// Package cluster submits batch jobs to an external job-queue scheduler over
// socket.io and blocks until every job in the batch reports completion. The
// scheduler is a single external dependency; the core passes resource specs
// through opaquely and manages no distributed state of its own.
package cluster

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
)

// Event names of the scheduler protocol.
const (
	eventSubmit = "job:submit"
	eventDone   = "job:done"
)

const defaultTimeout = 10 * time.Minute

// Job is one unit of work: a split key plus the control with that split's
// data bound in.
type Job struct {
	Key     string
	Control *control.Control
}

// batchResult passes the gathered outputs (or the first failure) through the
// done channel.
type batchResult struct {
	results map[string]model.BodyOutput
	err     error
}

// connectError normalizes a connect_error emission into an error. The
// payload may be an error, any other value, or absent entirely.
func connectError(errs ...any) error {
	if len(errs) == 0 {
		return fmt.Errorf("scheduler connection error")
	}
	if err, ok := errs[0].(error); ok {
		return err
	}
	return fmt.Errorf("scheduler connection error: %v", errs[0])
}

// Submit sends every job in the batch to the scheduler and waits for all
// completions. There is no mid-batch cancellation: once submitted, the batch
// either completes or the whole call fails (connection error, a failed job,
// or the walltime ceiling expiring).
func Submit(ctx context.Context, queue *control.QueueSpec, resources *control.ResourceSpec, runID string, jobs []Job) (map[string]model.BodyOutput, error) {
	logger := ctxlog.FromContext(ctx).With("backend", "queue", "runID", runID, "jobs", len(jobs))

	if queue == nil || queue.URL == "" {
		return nil, fmt.Errorf("queue backend requires a scheduler url")
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no jobs to submit")
	}

	timeout := defaultTimeout
	if d, err := resources.WalltimeDuration(); err != nil {
		return nil, err
	} else if d > 0 {
		timeout = d
	}

	parsedURL, err := url.Parse(queue.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scheduler URL: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	payloads := make([]map[string]any, 0, len(jobs))
	pending := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if _, dup := pending[job.Key]; dup {
			return nil, fmt.Errorf("duplicate job key %q in batch", job.Key)
		}
		pending[job.Key] = struct{}{}
		payloads = append(payloads, map[string]any{
			"run":       runID,
			"key":       job.Key,
			"control":   job.Control.Snapshot(),
			"resources": resources,
		})
	}

	var isConnected atomic.Bool
	done := make(chan batchResult, 1)

	var mu sync.Mutex
	results := make(map[string]model.BodyOutput, len(jobs))

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(queue.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting scheduler client.")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Connected to scheduler.", "sid", io.Id())
		for _, payload := range payloads {
			io.Emit(eventSubmit, payload)
		}
		logger.Debug("All jobs submitted.")
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		done <- batchResult{err: connectError(errs...)}
	})

	io.On(types.EventName(eventDone), func(data ...any) {
		if len(data) == 0 {
			return
		}
		msg, ok := data[0].(map[string]any)
		if !ok {
			done <- batchResult{err: fmt.Errorf("malformed %s event payload: %T", eventDone, data[0])}
			return
		}
		key, _ := msg["key"].(string)

		mu.Lock()
		defer mu.Unlock()
		if _, waiting := pending[key]; !waiting {
			logger.Warn("Ignoring completion for unknown or already-finished job.", "key", key)
			return
		}

		if errMsg, ok := msg["error"].(string); ok && errMsg != "" {
			done <- batchResult{err: fmt.Errorf("job %q failed on scheduler: %s", key, errMsg)}
			return
		}

		out, _ := msg["result"].(map[string]any)
		results[key] = model.BodyOutput(out)
		delete(pending, key)
		logger.Debug("Job completed.", "key", key, "remaining", len(pending))

		if len(pending) == 0 {
			done <- batchResult{results: results}
		}
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			mu.Lock()
			remaining := len(pending)
			mu.Unlock()
			return nil, fmt.Errorf("timed out after %s with %d of %d jobs unfinished", timeout, remaining, len(jobs))
		}
		return nil, fmt.Errorf("timed out after %s waiting for the initial scheduler connection", timeout)
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.results, nil
	}
}
