package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livetemplate/thebekit"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

const writeTimeout = 10 * time.Second

// Message is exchanged with the browser shim.
//
// Browser to server: "loaded" once the widget library is available, and
// "status" for every widget status event. Server to browser: "bootstrap" with
// the activated page body, "status" with the new launch button state, "run"
// to click an init cell's run control, and "reload" after a file change.
type Message struct {
	Action   string                 `json:"action"`
	Status   string                 `json:"status,omitempty"`
	Message  string                 `json:"message,omitempty"`
	HTML     string                 `json:"html,omitempty"`
	Buttons  []thebekit.ButtonState `json:"buttons,omitempty"`
	CellID   string                 `json:"cellID,omitempty"`
	Trigger  string                 `json:"trigger,omitempty"`
	FilePath string                 `json:"filePath,omitempty"`
}

// session is one page load: it owns the page's controller and acts as the
// widget for it, forwarding widget calls to the browser.
type session struct {
	conn    *websocket.Conn
	ctrl    *thebekit.Controller
	pending *thebekit.Pending
	debug   bool

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string][]thebekit.StatusHandler

	closeOnce sync.Once
}

var _ thebekit.Widget = (*session)(nil)

// On registers a widget event handler.
func (s *session) On(event string, h thebekit.StatusHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// Bootstrap sends the activated page body to the browser, which swaps it in
// and starts the widget.
func (s *session) Bootstrap() error {
	body, err := s.ctrl.BodyHTML()
	if err != nil {
		return err
	}
	return s.send(Message{Action: "bootstrap", HTML: body})
}

// Run asks the browser to click the run control of a cell.
func (s *session) Run(cellID, trigger string) error {
	return s.send(Message{Action: "run", CellID: cellID, Trigger: trigger})
}

func (s *session) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) dispatch(event string, evt thebekit.StatusEvent) {
	s.mu.Lock()
	hs := append([]thebekit.StatusHandler(nil), s.handlers[event]...)
	s.mu.Unlock()

	for _, h := range hs {
		h(evt)
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// serveWebSocket runs a session for the page named by the ?page= parameter.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("page")
	if pattern == "" {
		pattern = "/"
	}
	route, ok := s.Route(pattern)
	if !ok {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}

	html, err := s.renderRoute(route)
	if err != nil {
		log.Printf("[WS] Failed to render %s: %v", route.FilePath, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	doc, err := thebekit.ParseDocumentString(html)
	if err != nil {
		log.Printf("[WS] Failed to parse %s: %v", route.FilePath, err)
		http.Error(w, "Failed to parse page", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	pending := thebekit.NewPending()
	sess := &session{
		conn:     conn,
		pending:  pending,
		debug:    s.config.Server.Debug,
		handlers: make(map[string][]thebekit.StatusHandler),
	}
	sess.ctrl = thebekit.NewController(doc, pending, s.config.ActivationOptions(route.Kernel()))
	sess.ctrl.OnRelay(func(u thebekit.RelayUpdate) {
		s.metrics.statusEvents.WithLabelValues(u.Status).Inc()
		if err := sess.send(Message{Action: "status", Status: u.Status, Message: u.Message, Buttons: u.Buttons}); err != nil {
			log.Printf("[WS] Failed to send status: %v", err)
		}
	})

	s.registerSession(sess)
	defer s.unregisterSession(sess)
	defer sess.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		err := sess.ctrl.Activate(ctx)
		switch {
		case err == nil:
			s.metrics.activations.WithLabelValues(string(thebekit.OutcomeActivated)).Inc()
		case errors.Is(err, context.Canceled):
			s.metrics.activations.WithLabelValues("abandoned").Inc()
		default:
			s.metrics.activations.WithLabelValues(string(thebekit.OutcomeFailed)).Inc()
			log.Printf("[WS] Activation failed for %s: %v", route.Pattern, err)
		}
	}()

	if sess.debug {
		log.Printf("[WS] Session started for %s", route.Pattern)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if sess.debug && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] Invalid message: %v", err)
			continue
		}

		switch msg.Action {
		case "loaded":
			pending.Resolve(sess)
		case "status":
			sess.dispatch("status", thebekit.StatusEvent{Status: msg.Status, Message: msg.Message})
		default:
			if sess.debug {
				log.Printf("[WS] Unknown action: %s", msg.Action)
			}
		}
	}
}
