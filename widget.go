package thebekit

import (
	"context"
	"sync"
	"time"
)

// StatusEvent is a lifecycle notification from the widget, e.g. "building" or "ready".
type StatusEvent struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusReady is the status after which init cells are executed.
const StatusReady = "ready"

// StatusHandler receives status events registered through Widget.On.
type StatusHandler func(StatusEvent)

// Widget is the interactive-code library driving the page.
type Widget interface {
	// On registers h for the named event. Only "status" is used.
	On(event string, h StatusHandler)

	// Bootstrap hands the decorated page to the widget.
	Bootstrap() error

	// Run clicks the run control matching trigger inside the cell with the given id.
	Run(cellID, trigger string) error
}

// Loader resolves to the widget once its library has loaded.
type Loader interface {
	Load(ctx context.Context) (Widget, error)
}

// Ready returns a Loader that is already resolved.
func Ready(w Widget) Loader {
	return readyLoader{w: w}
}

type readyLoader struct {
	w Widget
}

func (l readyLoader) Load(ctx context.Context) (Widget, error) {
	if l.w == nil {
		return nil, ErrNoWidget
	}
	return l.w, nil
}

// Pending is a Loader resolved once from elsewhere, typically when the browser
// reports that the library finished loading.
type Pending struct {
	once sync.Once
	done chan struct{}
	w    Widget
}

// NewPending creates an unresolved Pending loader.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolve sets the widget and wakes every waiter. Later calls are ignored.
func (p *Pending) Resolve(w Widget) {
	p.once.Do(func() {
		p.w = w
		close(p.done)
	})
}

// Load blocks until Resolve is called or ctx is done.
func (p *Pending) Load(ctx context.Context) (Widget, error) {
	select {
	case <-p.done:
		if p.w == nil {
			return nil, ErrNoWidget
		}
		return p.w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scheduler defers a call. Pending calls cannot be withdrawn.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// TimerScheduler schedules calls on the runtime timer.
type TimerScheduler struct{}

// AfterFunc runs f in its own goroutine after d.
func (TimerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
