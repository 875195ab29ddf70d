package web

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceagent/pkg/hub"
)

// handleStatus returns the agent's current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleGetConversation returns recent conversation
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	s.conversationMu.RLock()
	defer s.conversationMu.RUnlock()
	return c.JSON(s.conversation)
}

// handleLogsWS replays buffered logs, then streams new ones
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	backlog := append([]LogEntry(nil), s.logs...)
	s.logsMu.RUnlock()
	for _, entry := range backlog {
		if err := c.WriteJSON(entry); err != nil {
			return
		}
	}
	s.serve(s.logHub, c)
}

// handleConversationWS replays the conversation, then streams new turns
func (s *Server) handleConversationWS(c *websocket.Conn) {
	s.conversationMu.RLock()
	backlog := append([]ConversationEntry(nil), s.conversation...)
	s.conversationMu.RUnlock()
	for _, entry := range backlog {
		if err := c.WriteJSON(entry); err != nil {
			return
		}
	}
	s.serve(s.conversationHub, c)
}

// handleStatusWS sends the current state, then streams updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if err := c.WriteJSON(s.State()); err != nil {
		return
	}
	s.serve(s.statusHub, c)
}

// serve hands the connection to h until it closes.
// Writes above happen before registration, so the hub's write pump
// is the only writer from here on.
func (s *Server) serve(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		return
	}
	client.Run()
}

// LogHandler returns a slog.Handler that forwards records to next and
// mirrors their message and attributes on the dashboard log stream.
func (s *Server) LogHandler(next slog.Handler) slog.Handler {
	return &logHandler{next: next, server: s}
}

type logHandler struct {
	next   slog.Handler
	server *Server
	attrs  []slog.Attr
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	h.server.AddLog(strings.ToLower(r.Level.String()), b.String())
	return h.next.Handle(ctx, r)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{
		next:   h.next.WithAttrs(attrs),
		server: h.server,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{next: h.next.WithGroup(name), server: h.server, attrs: h.attrs}
}
