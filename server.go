package astiplayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiws"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server exposes a player over HTTP and pushes its events over websocket
type Server struct {
	l  astikit.SeverityLogger
	p  *Player
	ws *astiws.Manager
}

// ServerOptions represents server options
type ServerOptions struct {
	Logger astikit.StdLogger
}

// NewServer creates a new server
func NewServer(o ServerOptions) *Server {
	return &Server{
		l:  astikit.AdaptStdLogger(o.Logger),
		ws: astiws.NewManager(astiws.ManagerConfiguration{MaxMessageSize: 8192}, o.Logger),
	}
}

// SetPlayer sets the player
func (s *Server) SetPlayer(p *Player) {
	s.p = p
}

// Handler returns the server handler
func (s *Server) Handler() http.Handler {
	// Create router
	r := httprouter.New()

	// Add routes
	r.Handler(http.MethodGet, "/ok", s.serveOK())
	r.Handler(http.MethodPost, "/load", s.serveLoad())
	r.Handler(http.MethodGet, "/pause", s.serveState(func(p *Player) error { return p.Pause() }))
	r.Handler(http.MethodGet, "/pipeline", s.servePipeline())
	r.Handler(http.MethodGet, "/play", s.serveState(func(p *Player) error { return p.Play() }))
	r.Handler(http.MethodGet, "/position", s.servePosition())
	r.Handler(http.MethodGet, "/reset", s.serveState(func(p *Player) error {
		p.Reset()
		return nil
	}))
	r.Handler(http.MethodGet, "/stop", s.serveState(func(p *Player) error { return p.Stop() }))
	r.Handler(http.MethodGet, "/websocket", s.serveWebSocket())
	return r
}

// ServerError represents a server error body
type ServerError struct {
	Message string `json:"message"`
}

func (s *Server) writeError(rw http.ResponseWriter, code int, err error) {
	// Log
	if code >= http.StatusInternalServerError {
		s.l.Error(err)
	}

	// Write
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if errW := json.NewEncoder(rw).Encode(ServerError{Message: err.Error()}); errW != nil {
		s.l.Error(fmt.Errorf("astiplayer: writing failed: %w", errW))
	}
}

func (s *Server) write(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		s.l.Error(fmt.Errorf("astiplayer: writing failed: %w", err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
}

// Makes sure a player has been set
func (s *Server) player(rw http.ResponseWriter) *Player {
	if s.p == nil {
		s.writeError(rw, http.StatusServiceUnavailable, errors.New("astiplayer: no player"))
		return nil
	}
	return s.p
}

func (s *Server) serveOK() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})
}

// ServerLoad represents a load request body
type ServerLoad struct {
	Path string `json:"path"`
}

func (s *Server) serveLoad() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// Get player
		p := s.player(rw)
		if p == nil {
			return
		}

		// Unmarshal
		var b ServerLoad
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			s.writeError(rw, http.StatusBadRequest, fmt.Errorf("astiplayer: unmarshaling failed: %w", err))
			return
		}

		// No path
		if b.Path == "" {
			s.writeError(rw, http.StatusBadRequest, errors.New("astiplayer: path is mandatory"))
			return
		}

		// Load
		if err := p.Load(r.Context(), b.Path); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrPlayerClosed) {
				code = http.StatusServiceUnavailable
			}
			s.writeError(rw, code, err)
			return
		}

		// Write
		s.write(rw, s.newServerPipeline(p))
	})
}

func (s *Server) serveState(fn func(p *Player) error) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// Get player
		p := s.player(rw)
		if p == nil {
			return
		}

		// Execute
		if err := fn(p); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrPlayerClosed) {
				code = http.StatusServiceUnavailable
			}
			s.writeError(rw, code, err)
			return
		}

		// Write
		s.write(rw, s.newServerPipeline(p))
	})
}

// ServerPosition represents a position body
type ServerPosition struct {
	Available bool    `json:"available"`
	Position  float64 `json:"position"`
}

func (s *Server) servePosition() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// Get player
		p := s.player(rw)
		if p == nil {
			return
		}

		// Write
		d, ok := p.Position()
		s.write(rw, ServerPosition{
			Available: ok,
			Position:  d.Seconds(),
		})
	})
}

// ServerPipeline represents a pipeline body
type ServerPipeline struct {
	Elements []ServerElement `json:"elements"`
	Loaded   bool            `json:"loaded"`
	Path     string          `json:"path,omitempty"`
	State    string          `json:"state"`
}

// ServerElement represents an element body
type ServerElement struct {
	Children []ServerElement `json:"children,omitempty"`
	Name     string          `json:"name"`
	State    string          `json:"state"`
}

func (s *Server) newServerPipeline(p *Player) (sp ServerPipeline) {
	t := p.Topology()
	sp = ServerPipeline{
		Elements: []ServerElement{},
		Loaded:   t.Loaded,
		Path:     t.Path,
		State:    t.State.String(),
	}
	for _, e := range t.Elements {
		sp.Elements = append(sp.Elements, newServerElement(e))
	}
	return
}

func newServerElement(e TopologyElement) (s ServerElement) {
	s = ServerElement{
		Name:  e.Name,
		State: e.State.String(),
	}
	for _, c := range e.Children {
		s.Children = append(s.Children, newServerElement(c))
	}
	return
}

func (s *Server) servePipeline() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// Get player
		p := s.player(rw)
		if p == nil {
			return
		}

		// Write
		s.write(rw, s.newServerPipeline(p))
	})
}

func (s *Server) serveWebSocket() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if err := s.ws.ServeHTTP(rw, r, s.adaptWebSocketClient); err != nil {
			var e *websocket.CloseError
			if ok := errors.As(err, &e); !ok ||
				(e.Code != websocket.CloseNoStatusReceived && e.Code != websocket.CloseNormalClosure) {
				s.l.Error(fmt.Errorf("astiplayer: handling websocket failed: %w", err))
			}
			return
		}
	})
}

func (s *Server) adaptWebSocketClient(c *astiws.Client) (err error) {
	// Register client
	s.ws.AutoRegisterClient(c)

	// Add listeners
	c.AddListener(astiws.EventNameDisconnect, s.webSocketDisconnected)
	c.AddListener("ping", s.webSocketPing)
	return
}

func (s *Server) webSocketDisconnected(c *astiws.Client, eventName string, payload json.RawMessage) error {
	s.ws.UnregisterClient(c)
	return nil
}

func (s *Server) webSocketPing(c *astiws.Client, eventName string, payload json.RawMessage) error {
	if err := c.ExtendConnection(); err != nil {
		s.l.Error(fmt.Errorf("astiplayer: extending ws connection failed: %w", err))
	}
	return nil
}

func (s *Server) sendWebSocket(eventName string, payload interface{}) {
	s.ws.Loop(func(_ interface{}, c *astiws.Client) {
		if err := c.Write(eventName, payload); err != nil {
			s.l.Error(fmt.Errorf("astiplayer: writing event %s to websocket client %p failed: %w", eventName, c, err))
			return
		}
	})
}

// EventHandlerAdapter forwards player events to websocket clients
func (s *Server) EventHandlerAdapter(eh *EventHandler) {
	eh.AddForAll(func(e Event) bool {
		s.sendWebSocket(string(e.Name), newServerEventPayload(e))
		return false
	})
}

// ServerStat represents a stat body
type ServerStat struct {
	Description string      `json:"description"`
	Label       string      `json:"label"`
	Name        string      `json:"name"`
	Unit        string      `json:"unit"`
	Value       interface{} `json:"value"`
}

func newServerEventPayload(e Event) (p interface{}) {
	switch e.Name {
	case EventNameError, EventNameWarning:
		if err, okE := e.Payload.(error); okE {
			p = ServerError{Message: err.Error()}
		}
	case EventNamePipelineStateChanged:
		if v, okV := e.Payload.(EventPipelineStateChanged); okV {
			p = map[string]string{
				"new_state": v.NewState.String(),
				"old_state": v.OldState.String(),
			}
		}
	case EventNamePosition:
		if d, okD := e.Payload.(time.Duration); okD {
			p = ServerPosition{
				Available: true,
				Position:  d.Seconds(),
			}
		}
	case EventNameStats:
		ss := []ServerStat{}
		if vs, okV := e.Payload.([]EventStat); okV {
			for _, v := range vs {
				ss = append(ss, ServerStat{
					Description: v.Description,
					Label:       v.Label,
					Name:        v.Name,
					Unit:        v.Unit,
					Value:       v.Value,
				})
			}
		}
		p = ss
	case EventNameEOS, EventNamePlayerClosed:
	default:
		p = e.Payload
	}
	return
}
