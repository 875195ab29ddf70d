// Package web provides a real-time dashboard for the voice agent.
//
// The dashboard mirrors what the bridge reports: connected sessions,
// who is speaking, the running conversation, per-answer latency and
// recent log lines. Live updates are pushed over three websocket hubs.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceagent/pkg/agent"
	"github.com/teslashibe/go-voiceagent/pkg/bridge"
	"github.com/teslashibe/go-voiceagent/pkg/history"
	"github.com/teslashibe/go-voiceagent/pkg/hub"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

const (
	maxLogs         = 500
	maxConversation = 100
)

// AgentState represents the current state of the agent for the dashboard
type AgentState struct {
	Persona     string `json:"persona"`
	LLMModel    string `json:"llm_model"`
	Voice       string `json:"voice"`
	Sessions    int    `json:"sessions"`
	Responding  int    `json:"responding"` // sessions currently answering
	Speaking    bool   `json:"speaking"`
	LastUser    string `json:"last_user_message"`
	LastAgent   string `json:"last_agent_message"`
	Interrupted int    `json:"interrupted"`

	// Latency of the most recent answer, in milliseconds
	LLMFirstTokenMs int64 `json:"llm_first_token_ms"`
	TTSFirstAudioMs int64 `json:"tts_first_audio_ms"`
	TotalLatencyMs  int64 `json:"total_latency_ms"`
}

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warn, error, debug, session, metrics
	Message string `json:"message"`
}

// ConversationEntry represents a message in the conversation
type ConversationEntry struct {
	Time        string `json:"time"`
	Session     string `json:"session"`
	Role        string `json:"role"` // user, assistant
	Message     string `json:"message"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStaticDir serves dashboard assets from dir.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// Server is the web dashboard server
type Server struct {
	app       *fiber.App
	addr      string
	staticDir string
	logger    *slog.Logger

	// State
	state      AgentState
	responding map[string]bool
	stateMu    sync.RWMutex

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Conversation buffer
	conversation   []ConversationEntry
	conversationMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub       *hub.Hub
	logHub          *hub.Hub
	conversationHub *hub.Hub

	startOnce sync.Once
}

// NewServer creates a dashboard for persona listening on addr.
func NewServer(addr string, persona voice.Config, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		logger:       slog.Default(),
		responding:   make(map[string]bool),
		logs:         make([]LogEntry, 0, maxLogs),
		conversation: make([]ConversationEntry, 0, maxConversation),
		state: AgentState{
			Persona:  persona.Name,
			LLMModel: persona.LLMModel,
			Voice:    persona.Voice.ID,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusHub = hub.New("status", s.logger)
	s.logHub = hub.New("logs", s.logger)
	s.conversationHub = hub.New("conversation", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Voice Agent Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/conversation", s.handleGetConversation)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/conversation", websocket.New(s.handleConversationWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Attach mounts the bridge's routes and mirrors its events on the dashboard.
func (s *Server) Attach(b *bridge.Bridge) {
	b.RegisterRoutes(s.app)
	b.RegisterAPIRoutes(s.app.Group("/api"))

	b.OnSession(func(info bridge.SessionInfo, connected bool) {
		s.UpdateState(func(st *AgentState) {
			if connected {
				st.Sessions++
			} else {
				if st.Sessions > 0 {
					st.Sessions--
				}
				delete(s.responding, info.ID)
				st.Responding = len(s.responding)
				st.Speaking = st.Responding > 0
			}
		})
		if connected {
			s.AddLog("session", fmt.Sprintf("session %s connected", info.ID))
		} else {
			s.AddLog("session", fmt.Sprintf("session %s disconnected after %d turns", info.ID, info.Turns))
		}
	})

	b.OnState(func(sessionID string, state agent.State) {
		s.UpdateState(func(st *AgentState) {
			if state == agent.StateResponding {
				s.responding[sessionID] = true
			} else {
				delete(s.responding, sessionID)
			}
			st.Responding = len(s.responding)
			st.Speaking = st.Responding > 0
		})
	})

	b.OnTurn(func(sessionID string, turn history.Turn) {
		if turn.Text == "" {
			return
		}
		s.AddConversation(sessionID, turn)
	})

	b.OnSentence(func(sessionID, sentence string) {
		s.AddLog("speech", fmt.Sprintf("session %s: %s", sessionID, sentence))
	})

	b.OnMetrics(func(sessionID string, m voice.Metrics) {
		s.UpdateState(func(st *AgentState) {
			st.LLMFirstTokenMs = m.LLMFirstToken.Milliseconds()
			st.TTSFirstAudioMs = m.TTSFirstAudio.Milliseconds()
			st.TotalLatencyMs = m.TotalLatency.Milliseconds()
		})
		s.AddLog("metrics", fmt.Sprintf("session %s: first token %dms, first audio %dms, total %dms",
			sessionID, m.LLMFirstToken.Milliseconds(), m.TTSFirstAudio.Milliseconds(), m.TotalLatency.Milliseconds()))
	})
}

// Start starts the hubs and serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.startHubs()
	if s.staticDir != "" {
		s.app.Static("/", s.staticDir)
	}
	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

func (s *Server) startHubs() {
	s.startOnce.Do(func() {
		go s.statusHub.Run()
		go s.logHub.Run()
		go s.conversationHub.Run()
	})
}

// UpdateState updates the agent state and broadcasts to clients
func (s *Server) UpdateState(update func(*AgentState)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state // Copy for broadcast
	s.stateMu.Unlock()

	if err := s.statusHub.BroadcastJSON(state); err != nil {
		s.logger.Warn("broadcast state", "error", err)
	}
}

// State returns a snapshot of the agent state.
func (s *Server) State() AgentState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// AddLog adds a log entry and broadcasts to clients
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	if err := s.logHub.BroadcastJSON(entry); err != nil {
		s.logger.Warn("broadcast log", "error", err)
	}
}

// AddConversation records a turn and updates the last-message fields.
func (s *Server) AddConversation(sessionID string, turn history.Turn) {
	entry := ConversationEntry{
		Time:        turn.CreatedAt.Format("15:04:05"),
		Session:     sessionID,
		Role:        string(turn.Role),
		Message:     turn.Text,
		Interrupted: turn.Interrupted,
	}

	s.conversationMu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > maxConversation {
		s.conversation = s.conversation[1:]
	}
	s.conversationMu.Unlock()

	s.UpdateState(func(st *AgentState) {
		switch turn.Role {
		case history.RoleUser:
			st.LastUser = turn.Text
		case history.RoleAssistant:
			st.LastAgent = turn.Text
			if turn.Interrupted {
				st.Interrupted++
			}
		}
	})

	if err := s.conversationHub.BroadcastJSON(entry); err != nil {
		s.logger.Warn("broadcast conversation", "error", err)
	}
}

// Shutdown gracefully stops the web server and its hubs
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.statusHub.Stop()
	s.logHub.Stop()
	s.conversationHub.Stop()
	return err
}
