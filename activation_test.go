package thebekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWidget records the calls made by a Controller.
type fakeWidget struct {
	mu           sync.Mutex
	handlers     map[string][]StatusHandler
	bootstraps   int
	bootstrapErr error
	runs         []string
}

func newFakeWidget() *fakeWidget {
	return &fakeWidget{handlers: make(map[string][]StatusHandler)}
}

func (w *fakeWidget) On(event string, h StatusHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = append(w.handlers[event], h)
}

func (w *fakeWidget) Bootstrap() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bootstraps++
	return w.bootstrapErr
}

func (w *fakeWidget) Run(cellID, trigger string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = append(w.runs, cellID+" "+trigger)
	return nil
}

func (w *fakeWidget) emit(status string) {
	w.mu.Lock()
	hs := append([]StatusHandler(nil), w.handlers["status"]...)
	w.mu.Unlock()
	for _, h := range hs {
		h(StatusEvent{Status: status, Message: status + " message"})
	}
}

// fakeScheduler captures deferred calls instead of running them.
type fakeScheduler struct {
	delays []time.Duration
	calls  []func()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) {
	s.delays = append(s.delays, d)
	s.calls = append(s.calls, f)
}

func TestAttemptActivationWithoutWidgetSchedulesOneRetry(t *testing.T) {
	doc := mustParse(t, cellsPage)
	before, err := doc.HTML()
	require.NoError(t, err)

	sched := &fakeScheduler{}
	c := NewController(doc, nil, DefaultOptions()).
		WithLookup(func() Widget { return nil }, sched)

	assert.Equal(t, OutcomeRetrying, c.AttemptActivation())

	after, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.Len(t, sched.calls, 1)
	assert.Equal(t, 500*time.Millisecond, sched.delays[0])
	assert.False(t, c.Activated())
}

func TestAttemptActivationRetriesUntilWidgetAppears(t *testing.T) {
	doc := mustParse(t, cellsPage)
	w := newFakeWidget()

	var available Widget
	sched := &fakeScheduler{}
	c := NewController(doc, nil, DefaultOptions()).
		WithLookup(func() Widget { return available }, sched)

	assert.Equal(t, OutcomeRetrying, c.AttemptActivation())
	sched.calls[0]()
	require.Len(t, sched.calls, 2)

	available = w
	sched.calls[1]()
	assert.Len(t, sched.calls, 2)
	assert.True(t, c.Activated())
	assert.Equal(t, 1, w.bootstraps)
}

func TestActivateDecoratesAndBootstraps(t *testing.T) {
	doc := mustParse(t, cellsPage)
	w := newFakeWidget()
	opts := DefaultOptions()
	opts.KernelName = "ir"

	c := NewController(doc, Ready(w), opts)
	require.NoError(t, c.Activate(context.Background()))

	assert.Equal(t, 1, w.bootstraps)
	assert.Len(t, w.handlers["status"], 1)

	assert.Equal(t, "r", doc.Find("#codecell0 pre").AttrOr("data-language", ""))
	assert.Equal(t, 1, doc.Find(".thebe-launch-button .spinner").Length())
	assert.Equal(t, 4, doc.Find(".thebe-launch-button .spinner > div").Length())
	assert.Equal(t, 1, doc.Find(".thebe-launch-button span.loading-text").Length())
	assert.Equal(t, "", doc.Find(".loading-text").Text())
}

func TestActivateIsIdempotent(t *testing.T) {
	doc := mustParse(t, cellsPage)
	w := newFakeWidget()
	c := NewController(doc, Ready(w), DefaultOptions())

	require.NoError(t, c.Activate(context.Background()))
	first, err := doc.HTML()
	require.NoError(t, err)

	require.NoError(t, c.Activate(context.Background()))
	second, err := doc.HTML()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, w.bootstraps)
	assert.Len(t, w.handlers["status"], 1)
}

func TestActivateSkipsAlreadyActivatedMarkup(t *testing.T) {
	page := `<html><body>
<button class="thebe-launch-button">Launch</button>
<div class="cell"><div class="thebe-cell"><pre>x</pre></div></div>
</body></html>`
	doc := mustParse(t, page)
	before, err := doc.HTML()
	require.NoError(t, err)

	w := newFakeWidget()
	c := NewController(doc, nil, DefaultOptions()).WithLookup(func() Widget { return w }, &fakeScheduler{})

	assert.Equal(t, OutcomeAlreadyActive, c.AttemptActivation())

	after, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, w.bootstraps)
	assert.Empty(t, w.handlers)
}

func TestActivateNoCells(t *testing.T) {
	doc := mustParse(t, `<html><body><p>prose only</p></body></html>`)
	w := newFakeWidget()
	c := NewController(doc, Ready(w), DefaultOptions())

	require.NoError(t, c.Activate(context.Background()))
	assert.Equal(t, 1, w.bootstraps)
}

func TestActivateBootstrapError(t *testing.T) {
	doc := mustParse(t, cellsPage)
	w := newFakeWidget()
	w.bootstrapErr = errors.New("kernel unavailable")
	c := NewController(doc, Ready(w), DefaultOptions())

	err := c.Activate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, w.bootstrapErr)

	sched := &fakeScheduler{}
	c2 := NewController(mustParse(t, cellsPage), nil, DefaultOptions()).WithLookup(func() Widget { return w }, sched)
	assert.Equal(t, OutcomeFailed, c2.AttemptActivation())
}

func TestActivateWaitsForPendingWidget(t *testing.T) {
	doc := mustParse(t, cellsPage)
	pending := NewPending()
	c := NewController(doc, pending, DefaultOptions())

	done := make(chan error, 1)
	go func() {
		done <- c.Activate(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("Activate returned before the widget was resolved")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, doc.Find("[data-executable]").Length())

	w := newFakeWidget()
	pending.Resolve(w)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Activate did not return after Resolve")
	}
	assert.Equal(t, 1, w.bootstraps)
}

func TestActivateContextCancelled(t *testing.T) {
	doc := mustParse(t, cellsPage)
	c := NewController(doc, NewPending(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Activate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Activated())
}

func TestActivateWithoutLoader(t *testing.T) {
	c := NewController(mustParse(t, cellsPage), nil, DefaultOptions())
	assert.ErrorIs(t, c.Activate(context.Background()), ErrNoWidget)
}
