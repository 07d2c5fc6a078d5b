package thebekit

import (
	"fmt"
	"html"
	"log"

	"github.com/PuerkitoBio/goquery"
)

// RelayUpdate describes the page after one status event was applied.
type RelayUpdate struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Previous string        `json:"previous,omitempty"`
	Buttons  []ButtonState `json:"buttons"`
	InitRuns []string      `json:"initRuns,omitempty"` // cell ids whose run trigger was invoked
}

// RelayObserver is notified after every status event.
type RelayObserver func(RelayUpdate)

// OnRelay registers fn to observe status updates.
func (c *Controller) OnRelay(fn RelayObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Status returns the most recently relayed status, or "" before the first event.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relay.previous
}

// relay mirrors widget status onto launch buttons. previous is owned by the
// controller instance and guarded by its mutex.
type relay struct {
	c        *Controller
	previous string
}

func newRelay(c *Controller) *relay {
	return &relay{c: c}
}

// StatusClass returns the CSS class reflecting a widget status.
func StatusClass(status string) string {
	return "thebe-status-" + status
}

func (r *relay) handle(evt StatusEvent) {
	c := r.c

	if evt.Status == "" {
		if c.opts.Debug {
			log.Printf("[Thebe] ignoring status event without a status")
		}
		return
	}

	c.mu.Lock()
	if c.opts.Debug {
		log.Printf("[Thebe] status changed: %s %s", evt.Status, evt.Message)
	}

	buttons := c.doc.Find(c.opts.LaunchButton)
	if r.previous != "" {
		buttons.RemoveClass(StatusClass(r.previous))
	}
	buttons.AddClass(StatusClass(evt.Status))
	buttons.Find(".loading-text").SetHtml(fmt.Sprintf(
		"<span class='launch_msg'>%s</span><span class='status'>%s</span>",
		html.EscapeString(c.opts.LaunchMessage), html.EscapeString(evt.Status)))

	update := RelayUpdate{
		Status:   evt.Status,
		Message:  evt.Message,
		Previous: r.previous,
	}
	r.previous = evt.Status

	type initRun struct{ id, trigger string }
	var runs []initRun
	if evt.Status == StatusReady {
		c.doc.Find(c.opts.InitCell).Each(func(i int, cell *goquery.Selection) {
			id, ok := cell.Attr("id")
			if !ok || id == "" {
				id = fmt.Sprintf("initcell%d", i)
				cell.SetAttr("id", id)
			}
			runs = append(runs, initRun{id: id, trigger: c.opts.RunTrigger})
		})
	}

	update.Buttons = c.doc.ButtonStates(c.opts.LaunchButton)
	w := c.widget
	observers := append([]RelayObserver(nil), c.observers...)
	c.mu.Unlock()

	for _, run := range runs {
		log.Printf("[Thebe] initializing with cell: %s", run.id)
		if w == nil {
			continue
		}
		if err := w.Run(run.id, run.trigger); err != nil {
			log.Printf("[Thebe] failed to run init cell %s: %v", run.id, err)
			continue
		}
		update.InitRuns = append(update.InitRuns, run.id)
	}

	for _, fn := range observers {
		fn(update)
	}
}
