// Package presentation derives the sorted, filtered note view from the repository stream
// and keeps it fresh as scheduled deletions come due.
package presentation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/MarcoPoloResearchLab/notevault/internal/notes"
	"go.uber.org/zap"
)

var (
	errMissingRepository = errors.New("repository is required")
	errNoteNotFound      = errors.New("note not found")
	noOpLogger           = zap.NewNop()
)

const (
	noticeLoadFailed   = "Notes could not be refreshed; showing the last known list."
	noticeActionFailed = "%s failed: %s"

	eventQueueSize = 16
)

// Repository is the note surface the controller consumes.
type Repository interface {
	FetchAllNotes(ctx context.Context) <-chan failure.Result[[]notes.Note]
	Refresh()
	AddNote(ctx context.Context, note notes.Note) error
	UpdateNote(ctx context.Context, id int64, message *string, isPinned bool, deletedAt *int64) error
	DeleteNote(ctx context.Context, id int64) error
	PurgeNote(ctx context.Context, id int64) error
	SetPinned(ctx context.Context, id int64, pinned bool) error
	PrepareToExportNotes(ctx context.Context) (string, error)
	ImportNotes(ctx context.Context, path string) error
}

// Config wires a Controller.
type Config struct {
	Repository Repository
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Controller owns the view state. All state mutation happens on one goroutine started by
// Start; I/O runs on caller or command goroutines.
type Controller struct {
	repository Repository
	clock      clock.Clock
	logger     *zap.Logger
	states     *broadcaster

	events chan func()

	lifecycle sync.Mutex
	started   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	commands  sync.WaitGroup

	// Owned by the run goroutine.
	full   []notes.Note
	query  string
	notice string
	timer  clock.Timer
}

// NewController validates cfg and constructs a stopped Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Repository == nil {
		return nil, errMissingRepository
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	return &Controller{
		repository: cfg.Repository,
		clock:      clk,
		logger:     logger,
		states:     newBroadcaster(),
		events:     make(chan func(), eventQueueSize),
		runCtx:     stopped,
		cancel:     cancel,
	}, nil
}

// Start subscribes to the repository and launches the state goroutine. Calling Start on a
// running or stopped controller does nothing.
func (c *Controller) Start(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	stream := c.repository.FetchAllNotes(c.runCtx)
	go c.run(c.runCtx, stream)
}

// Stop cancels the subscription and the expiry timer and waits for the state goroutine
// and in-flight commands. Safe to call more than once.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	c.started = true
	c.cancel()
	done := c.done
	c.lifecycle.Unlock()

	if done != nil {
		<-done
	}
	c.commands.Wait()
}

// Current returns the latest published state.
func (c *Controller) Current() State {
	return c.states.Current()
}

// Subscribe streams state snapshots, starting with the current one, until ctx is done.
func (c *Controller) Subscribe(ctx context.Context) <-chan State {
	return c.states.subscribe(ctx)
}

// SearchChanged re-derives the visible list for query from the last known full list.
func (c *Controller) SearchChanged(query string) {
	c.submit(func() {
		c.query = query
		c.publish()
	})
}

// Add persists a new note. Completion is observed through the next published state.
func (c *Controller) Add(message string, isPinned bool, deletedAt *int64) {
	now := clock.NowMillis(c.clock)
	note := notes.Note{Message: &message, IsPinned: isPinned, CreatedAt: &now, DeletedAt: deletedAt}
	c.dispatch("add", func(ctx context.Context) error {
		return c.repository.AddNote(ctx, note)
	})
}

// Update overwrites one note's message, pin flag and scheduled deletion.
func (c *Controller) Update(id int64, message string, isPinned bool, deletedAt *int64) {
	c.dispatch("update", func(ctx context.Context) error {
		return c.repository.UpdateNote(ctx, id, &message, isPinned, deletedAt)
	})
}

// Delete soft-deletes one note.
func (c *Controller) Delete(id int64) {
	c.dispatch("delete", func(ctx context.Context) error {
		return c.repository.DeleteNote(ctx, id)
	})
}

// Purge removes one note permanently.
func (c *Controller) Purge(id int64) {
	c.dispatch("purge", func(ctx context.Context) error {
		return c.repository.PurgeNote(ctx, id)
	})
}

// TogglePin flips the pin flag of a note in the last known list.
func (c *Controller) TogglePin(id int64) {
	c.submit(func() {
		for _, note := range c.full {
			if note.ID != nil && *note.ID == id {
				pinned := !note.IsPinned
				c.dispatch("pin", func(ctx context.Context) error {
					return c.repository.SetPinned(ctx, id, pinned)
				})
				return
			}
		}
		c.fail("pin", fmt.Errorf("%w: %d", errNoteNotFound, id))
	})
}

// Export writes the encrypted export file and returns its path.
func (c *Controller) Export(ctx context.Context) (string, error) {
	path, err := c.repository.PrepareToExportNotes(ctx)
	if err != nil {
		c.reportFailure("export", err)
		return "", err
	}
	return path, nil
}

// Import loads encrypted records from path.
func (c *Controller) Import(ctx context.Context, path string) error {
	if err := c.repository.ImportNotes(ctx, path); err != nil {
		c.reportFailure("import", err)
		return err
	}
	return nil
}

func (c *Controller) run(ctx context.Context, stream <-chan failure.Result[[]notes.Note]) {
	defer close(c.done)
	defer c.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-stream:
			if !ok {
				return
			}
			c.apply(result)
		case event := <-c.events:
			event()
		}
	}
}

func (c *Controller) apply(result failure.Result[[]notes.Note]) {
	full, ok := result.Value()
	if !ok {
		c.logError("fetch_all_notes", "emission_failed", result.Err())
		c.notice = noticeLoadFailed
		c.publish()
		return
	}
	c.full = full
	c.notice = ""
	c.publish()
	c.scheduleExpiry()
}

func (c *Controller) publish() {
	c.states.publish(State{
		Notes:  VisibleNotes(c.full, c.query),
		Query:  c.query,
		Notice: c.notice,
	})
}

// scheduleExpiry arms one timer for the earliest future deletion, replacing any earlier timer.
func (c *Controller) scheduleExpiry() {
	c.stopTimer()
	now := clock.NowMillis(c.clock)
	deadline, ok := nextExpiry(c.full, now)
	if !ok {
		return
	}
	ctx := c.runCtx
	c.timer = c.clock.AfterFunc(time.Duration(deadline-now)*time.Millisecond, func() {
		if ctx.Err() != nil {
			return
		}
		c.repository.Refresh()
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// submit queues fn for the state goroutine. It is dropped unless the controller is running.
func (c *Controller) submit(fn func()) {
	c.lifecycle.Lock()
	ctx := c.runCtx
	c.lifecycle.Unlock()
	select {
	case <-ctx.Done():
	case c.events <- fn:
	}
}

func (c *Controller) dispatch(action string, command func(ctx context.Context) error) {
	c.lifecycle.Lock()
	if c.runCtx.Err() != nil {
		c.lifecycle.Unlock()
		c.logger.Warn("command dropped", zap.String("operation", action), zap.String("reason", "controller_stopped"))
		return
	}
	c.commands.Add(1)
	c.lifecycle.Unlock()

	go func() {
		defer c.commands.Done()
		if err := command(context.Background()); err != nil {
			c.reportFailure(action, err)
		}
	}()
}

func (c *Controller) reportFailure(action string, err error) {
	c.logError(action, "command_failed", err)
	c.submit(func() { c.fail(action, err) })
}

// fail runs on the state goroutine.
func (c *Controller) fail(action string, err error) {
	reason := "unexpected error"
	if kind, ok := failure.KindOf(err); ok {
		reason = string(kind) + " failure"
	} else if errors.Is(err, errNoteNotFound) {
		reason = "note not found"
	}
	c.notice = fmt.Sprintf(noticeActionFailed, action, reason)
	c.publish()
}

func (c *Controller) logError(operation, reason string, err error) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if kind, ok := failure.KindOf(err); ok {
		attrs = append(attrs, zap.String("kind", string(kind)))
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	c.logger.Error("presentation error", attrs...)
}
