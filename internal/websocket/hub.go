package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
	"github.com/linguaforge/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Time allowed for a provider to open a capture.
	startTimeout = 5 * time.Second

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	// The page is served from a different origin during development.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Conversation is the voice session the hub drives
type Conversation interface {
	Subscribe() (<-chan usecase.Event, func())
	Snapshot() usecase.ConversationSnapshot
	BeginListening(ctx context.Context, opts repositories.AudioConfig) error
	Feed(audio []byte) error
	FeedTranscript(text string, isFinal bool) error
	StopListening() error
	CancelListening() error
	Reset()
	Speak(text, language string) error
}

var _ Conversation = (*usecase.ConversationEngine)(nil)

// Hub maintains the set of active clients and broadcasts conversation events to them.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversation Conversation
	validator    *MessageValidator

	// Mirror of the engine's derived state, owned by Run.
	state    usecase.ConversationState
	speaking bool

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(conversation Conversation, logger *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		conversation: conversation,
		validator:    NewMessageValidator(),
		state:        usecase.ConversationIdle,
		logger:       logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.conversation.Subscribe()
	defer unsubscribe()
	defer close(h.done)

	snapshot := h.conversation.Snapshot()
	h.state = snapshot.State
	h.speaking = snapshot.IsSpeaking

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.close()
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))
			client.sendJSON(CreateStateMessage(usecase.ConversationSnapshot{
				State:       h.state,
				IsAnalyzing: h.state == usecase.ConversationAnalyzing,
				IsSpeaking:  h.speaking,
			}))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.close()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case ev, ok := <-events:
			if !ok {
				h.logger.Warn("Conversation event stream closed")
				return
			}
			h.dispatch(ev)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// dispatch translates an engine event into frames for every client
func (h *Hub) dispatch(ev usecase.Event) {
	if ev.State != "" {
		h.state = ev.State
	}

	var frames []WriteData
	switch ev.Type {
	case usecase.EventStateChanged:
		frames = append(frames, h.stateFrame())
	case usecase.EventTurnAppended:
		if ev.Turn == nil {
			return
		}
		frames = append(frames, textFrame(CreateTurnMessage(*ev.Turn)))
	case usecase.EventReset:
		frames = append(frames, textFrame(CreateControlMessage(MessageTypeReset)))
	case usecase.EventSpeakingStarted:
		h.speaking = true
		frames = append(frames, textFrame(CreateControlMessage(MessageTypeSpeakingStart)), h.stateFrame())
	case usecase.EventSpeakingEnded:
		h.speaking = false
		frames = append(frames, textFrame(CreateControlMessage(MessageTypeSpeakingEnd)), h.stateFrame())
	case usecase.EventSpeechAudio:
		frames = append(frames, WriteData{Type: websocket.BinaryMessage, Payload: ev.Audio})
	case usecase.EventCaptureFailed:
		frames = append(frames, textFrame(CreateErrorMessage(ErrorCodeCaptureFailed, ev.Message, "")))
	default:
		h.logger.Warn("Unknown conversation event", zap.String("event", string(ev.Type)))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		for _, frame := range frames {
			if !client.enqueue(frame) {
				h.logger.Warn("Dropping slow client", zap.String("clientID", id))
				delete(h.clients, id)
				client.close()
				break
			}
		}
	}
}

func (h *Hub) stateFrame() WriteData {
	return textFrame(CreateStateMessage(usecase.ConversationSnapshot{
		State:       h.state,
		IsAnalyzing: h.state == usecase.ConversationAnalyzing,
		IsSpeaking:  h.speaking,
	}))
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

func textFrame(v interface{}) WriteData {
	payload, _ := json.Marshal(v)
	return WriteData{Type: websocket.TextMessage, Payload: payload}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id string

	logger *zap.Logger

	// Guards send against use after close.
	mu     sync.Mutex
	closed bool
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, sendBuffer),
		id:     id,
		logger: logger.With(zap.String("clientID", id)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// enqueue queues a frame without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) enqueue(data WriteData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) sendJSON(v interface{}) {
	if !c.enqueue(textFrame(v)) {
		c.logger.Warn("Failed to queue message for client")
	}
}

func (c *Client) sendError(code, message, details string) {
	c.sendJSON(CreateErrorMessage(code, message, details))
}

// readPump pumps messages from the websocket connection to the conversation.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches a control message to the conversation
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "Invalid message", err.Error())
		return
	}

	conv := c.hub.conversation
	switch m := msg.(type) {
	case *ListeningStartMessage:
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		err = conv.BeginListening(ctx, repositories.AudioConfig{
			SampleRate: m.SampleRate,
			Encoding:   m.Encoding,
			Language:   m.Language,
		})

	case *ControlMessage:
		switch m.Type {
		case MessageTypeListeningEnd:
			err = conv.StopListening()
		case MessageTypeListeningCancel:
			err = conv.CancelListening()
		case MessageTypeReset:
			conv.Reset()
		}

	case *TranscriptMessage:
		err = conv.FeedTranscript(m.Text, m.Final())

	case *SpeakMessage:
		err = conv.Speak(m.Text, m.Language)

	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
	}

	if err != nil {
		c.reportError(err)
	}
}

// processBinaryAudioChunk forwards raw audio to the active capture
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.logger.Debug("Received binary audio chunk", zap.Int("size", len(data)))
	if err := c.hub.conversation.Feed(data); err != nil {
		c.reportError(err)
	}
}

// reportError tells the client why a command failed. Provider details stay in the log.
func (c *Client) reportError(err error) {
	switch {
	case errors.Is(err, entities.ErrInvalidState):
		c.sendError(ErrorCodeInvalidState, "Not possible right now", err.Error())
	case errors.Is(err, entities.ErrUnsupportedCapability):
		c.sendError(ErrorCodeUnsupported, "This feature is not available", err.Error())
	case errors.Is(err, entities.ErrValidation):
		c.sendError(ErrorCodeValidation, "Invalid request", err.Error())
	case errors.Is(err, entities.ErrProvider):
		c.logger.Error("Provider failure", zap.Error(err))
		c.sendError(ErrorCodeProvider, "The speech service is unavailable. Please try again.", "")
	default:
		c.logger.Error("Command failed", zap.Error(err))
		c.sendError(ErrorCodeInternal, "Something went wrong", "")
	}
}
