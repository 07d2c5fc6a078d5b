package thebekit

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Outcome is the result of a single activation attempt.
type Outcome string

const (
	OutcomeRetrying      Outcome = "retrying"
	OutcomeAlreadyActive Outcome = "already_active"
	OutcomeActivated     Outcome = "activated"
	OutcomeFailed        Outcome = "failed"
)

// spinnerHTML replaces launch button content while the kernel starts.
const spinnerHTML = `
        <div class="spinner">
            <div class="rect1"></div>
            <div class="rect2"></div>
            <div class="rect3"></div>
            <div class="rect4"></div>
        </div>
        <span class="loading-text"></span>`

// Controller activates one page for the widget and relays the widget's
// status to the page's launch buttons. A Controller serves a single page load.
type Controller struct {
	doc    *Document
	opts   Options
	loader Loader

	// Lookup and Scheduler drive AttemptActivation; Activate uses loader.
	lookup    func() Widget
	scheduler Scheduler

	mu        sync.Mutex
	activated bool
	widget    Widget
	relay     *relay
	observers []RelayObserver
}

// NewController creates a controller for doc. The loader is awaited once by Activate.
func NewController(doc *Document, loader Loader, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		doc:       doc,
		opts:      opts,
		loader:    loader,
		scheduler: TimerScheduler{},
	}
	c.relay = newRelay(c)
	return c
}

// WithLookup sets the widget lookup and scheduler used by AttemptActivation.
func (c *Controller) WithLookup(lookup func() Widget, s Scheduler) *Controller {
	c.lookup = lookup
	if s != nil {
		c.scheduler = s
	}
	return c
}

// Document returns the page the controller operates on.
func (c *Controller) Document() *Document {
	return c.doc
}

// BodyHTML renders the page body. Status events mutate the page concurrently,
// so callers outside the controller read it through here.
func (c *Controller) BodyHTML() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.BodyHTML()
}

// Options returns the effective options.
func (c *Controller) Options() Options {
	return c.opts
}

// Activate waits for the widget and activates the page. A page that is already
// active is left untouched and nil is returned.
func (c *Controller) Activate(ctx context.Context) error {
	if c.loader == nil {
		return ErrNoWidget
	}

	w, err := c.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load widget: %w", err)
	}

	if _, err := c.activate(w); err != nil {
		return err
	}
	return nil
}

// AttemptActivation makes one activation attempt. If the widget is not loaded
// yet it schedules another attempt after the retry interval and returns
// without touching the page. Retries continue until the widget appears.
func (c *Controller) AttemptActivation() Outcome {
	var w Widget
	if c.lookup != nil {
		w = c.lookup()
	}
	if w == nil {
		log.Printf("[Thebe] widget not loaded, retrying in %s", c.opts.RetryInterval)
		c.scheduler.AfterFunc(c.opts.RetryInterval, func() {
			c.AttemptActivation()
		})
		return OutcomeRetrying
	}

	outcome, err := c.activate(w)
	if err != nil {
		log.Printf("[Thebe] activation failed: %v", err)
	}
	return outcome
}

// Activated reports whether this controller has activated its page.
func (c *Controller) Activated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

func (c *Controller) activate(w Widget) (Outcome, error) {
	c.mu.Lock()

	if c.activated || c.doc.Find(c.opts.ActivatedMarker).Length() > 0 {
		c.mu.Unlock()
		if c.opts.Debug {
			log.Printf("[Thebe] page already active, skipping")
		}
		return OutcomeAlreadyActive, nil
	}
	c.activated = true
	c.widget = w

	log.Printf("[Thebe] adding thebe to code cells...")

	c.doc.Find(c.opts.LaunchButton).SetHtml(spinnerHTML)

	w.On("status", c.relay.handle)

	language := DetectLanguage(c.opts.KernelName)
	n := c.doc.DecorateCells(c.opts.Selectors, language)
	if c.opts.Debug {
		log.Printf("[Thebe] decorated %d cell(s) as %q", n, language)
	}

	// The widget may emit status events synchronously from Bootstrap; the
	// relay takes the lock itself.
	c.mu.Unlock()

	if err := w.Bootstrap(); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to bootstrap widget: %w", err)
	}
	return OutcomeActivated, nil
}
