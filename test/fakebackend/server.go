// Package fakebackend is an in-memory chat backend speaking the REST and
// push protocols of the real one. Every write is re-broadcast on the push
// channel like the real server does.
package fakebackend

import (
	"fmt"
	"guide-chat/auth"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/infrastructure/wire"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	log    *slog.Logger
	secret []byte
	http   *httptest.Server

	mu            sync.Mutex
	participants  map[domain.ParticipantID]domain.Participant
	conversations map[domain.ConversationID]domain.Conversation
	messages      map[domain.ConversationID][]domain.Message
	notifications []domain.Notification
	online        []domain.ParticipantID
	clients       map[*client]struct{}

	creations atomic.Int32
	sends     atomic.Int32
	failSends atomic.Int32
	createGap time.Duration
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New starts the server. Requests must carry a bearer token signed with secret.
func New(log *slog.Logger, secret []byte) *Server {
	s := &Server{
		log:           log,
		secret:        secret,
		participants:  make(map[domain.ParticipantID]domain.Participant),
		conversations: make(map[domain.ConversationID]domain.Conversation),
		messages:      make(map[domain.ConversationID][]domain.Message),
		clients:       make(map[*client]struct{}),
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.authenticate)
	r.GET("/conversations", s.listConversations)
	r.POST("/conversations", s.createConversation)
	r.GET("/conversations/:id/messages", s.getMessages)
	r.POST("/messages", s.sendMessage)
	r.GET("/users/online", s.onlineUsers)
	r.GET("/notifications", s.listNotifications)
	r.PATCH("/notifications/:id/read", s.markRead)
	r.PUT("/notifications/read-all", s.markAllRead)
	r.GET("/ws", s.serveWs)
	s.http = httptest.NewServer(r)
	return s
}

func (s *Server) URL() string { return s.http.URL }

func (s *Server) PushURL() string { return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws" }

func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
	s.http.Close()
}

// AddParticipant makes a participant known to creation lookups.
func (s *Server) AddParticipant(p domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
}

func (s *Server) AddConversation(c domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c.Clone()
	for _, p := range c.Participants {
		if _, ok := s.participants[p.ID]; !ok {
			s.participants[p.ID] = p
		}
	}
}

func (s *Server) AddNotification(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]domain.Notification{n}, s.notifications...)
}

func (s *Server) SetOnline(ids ...domain.ParticipantID) {
	s.mu.Lock()
	s.online = append([]domain.ParticipantID(nil), ids...)
	s.mu.Unlock()
	s.Broadcast(event.NewOnlineUsers(event.FromPush, ids))
}

// SlowCreation delays every conversation creation by d.
func (s *Server) SlowCreation(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createGap = d
}

// FailNextSends rejects the next n sends with a 503.
func (s *Server) FailNextSends(n int) { s.failSends.Store(int32(n)) }

func (s *Server) Creations() int { return int(s.creations.Load()) }

func (s *Server) Sends() int { return int(s.sends.Load()) }

func (s *Server) Messages(id domain.ConversationID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.messages[id], func(m domain.Message, _ int) domain.Message { return m.Clone() })
}

func (s *Server) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.CountBy(s.notifications, func(n domain.Notification) bool { return !n.IsRead })
}

// Broadcast pushes an event to every connected client.
func (s *Server) Broadcast(e event.Event) {
	frame, err := wire.Encode(e)
	if err != nil {
		s.log.Error("Unable to encode push frame", "type", e.Type, "error", err)
		return
	}
	s.BroadcastRaw(frame)
}

func (s *Server) BroadcastRaw(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			s.log.Warn("Push client is slow, frame dropped")
		}
	}
}

// Clients is the number of open push connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// DropClients closes every push connection without a close frame.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

func (s *Server) authenticate(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	session, err := auth.ValidateToken(token, s.secret)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Set("session", session)
	c.Next()
}

func sessionOf(c *gin.Context) domain.Session {
	return c.MustGet("session").(domain.Session)
}

func (s *Server) listConversations(c *gin.Context) {
	self := domain.ParticipantID(c.Query("userId"))
	s.mu.Lock()
	found := lo.Filter(lo.Values(s.conversations), func(conv domain.Conversation, _ int) bool {
		return lo.ContainsBy(conv.Participants, func(p domain.Participant) bool { return p.ID == self })
	})
	s.mu.Unlock()
	domain.SortByActivity(found)
	c.JSON(http.StatusOK, lo.Map(found, func(conv domain.Conversation, _ int) wire.Conversation {
		return wire.FromConversation(conv)
	}))
}

// createConversation is find-or-create on the pair of participants.
func (s *Server) createConversation(c *gin.Context) {
	var body wire.CreateConversationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.creations.Add(1)
	s.mu.Lock()
	gap := s.createGap
	s.mu.Unlock()
	time.Sleep(gap)

	s.mu.Lock()
	defer s.mu.Unlock()
	target := domain.Target{ID: domain.ParticipantID(body.ReceiverID), Slug: body.ReceiverSlug}
	sender := domain.ParticipantID(body.SenderID)
	for _, conv := range s.conversations {
		other, ok := conv.Counterpart(sender)
		if ok && target.Matches(other) {
			c.JSON(http.StatusOK, wire.FromConversation(conv))
			return
		}
	}
	receiver, ok := lo.Find(lo.Values(s.participants), func(p domain.Participant) bool { return target.Matches(p) })
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no participant for %s", target.Key())})
		return
	}
	self, ok := s.participants[sender]
	if !ok {
		self = domain.Participant{ID: sender, Role: domain.Role(body.SenderRole)}
	}
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:           domain.ConversationID(uuid.NewString()),
		Participants: []domain.Participant{self, receiver},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[conv.ID] = conv
	c.JSON(http.StatusCreated, wire.FromConversation(conv))
}

func (s *Server) getMessages(c *gin.Context) {
	id := domain.ConversationID(c.Param("id"))
	s.mu.Lock()
	_, ok := s.conversations[id]
	messages := append([]domain.Message(nil), s.messages[id]...)
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown conversation"})
		return
	}
	c.JSON(http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) wire.Message { return wire.FromMessage(m) }))
}

// sendMessage stores the message, answers with it and echoes it on the
// push channel with the conversation delta.
func (s *Server) sendMessage(c *gin.Context) {
	var body wire.SendMessageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.failSends.Load() > 0 {
		s.failSends.Add(-1)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try later"})
		return
	}
	cmd := body.ToDomain()
	s.sends.Add(1)

	s.mu.Lock()
	conv, ok := s.conversations[cmd.ConversationID]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown conversation"})
		return
	}
	now := time.Now().UTC()
	saved := domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ClientID:       cmd.ClientMessageID,
		ConversationID: conv.ID,
		SenderID:       cmd.SenderID,
		SenderRole:     cmd.SenderRole,
		Content:        cmd.Content,
		ContentType:    cmd.ContentType,
		Attachments:    cmd.Attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
		State:          domain.Confirmed,
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], saved)
	conv = conv.WithActivity(saved.Preview(), now)
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	c.JSON(http.StatusCreated, wire.FromMessage(saved))
	s.Broadcast(event.NewMessage(event.FromPush, saved))
	s.Broadcast(event.NewConversationUpdate(event.FromPush, event.ConversationUpdated{
		ConversationID: conv.ID,
		LastMessage:    conv.LastMessage,
		UpdatedAt:      conv.UpdatedAt,
	}))
}

func (s *Server) onlineUsers(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, lo.Map(s.online, func(id domain.ParticipantID, _ int) string { return string(id) }))
}

func (s *Server) listNotifications(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := wire.NotificationPage{
		Count:         lo.CountBy(s.notifications, func(n domain.Notification) bool { return !n.IsRead }),
		Notifications: lo.Map(s.notifications, func(n domain.Notification, _ int) wire.Notification { return wire.FromNotification(n) }),
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) markRead(c *gin.Context) {
	id := domain.NotificationID(c.Param("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].IsRead = true
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllRead(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		s.notifications[i].IsRead = true
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) serveWs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, 64)}
	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()
	s.log.Debug(fmt.Sprintf("Push client connected for %s", sessionOf(c).UserID))

	go s.writePump(cl)
	go s.readPump(cl)
}

// readPump only detects disconnection, clients never write frames.
func (s *Server) readPump(cl *client) {
	defer s.forget(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(cl *client) {
	defer func() { _ = cl.conn.Close() }()
	for frame := range cl.send {
		if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) forget(cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[cl]; ok {
		delete(s.clients, cl)
		close(cl.send)
	}
	_ = cl.conn.Close()
}
