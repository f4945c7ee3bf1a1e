// Package ws is the realtime transport between interview clients and
// sessions.
//
// A [Hub] upgrades HTTP requests on /ws/interviews/{id} to websockets,
// forwards candidate input to the interview session and fans session events
// out to every connected participant. It implements [interview.Sink].
//
// Each connection has a bounded send queue drained by its own writer
// goroutine, so a slow client never blocks the session that emits events.
// Events for a full queue are dropped and logged.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxhire/internal/config"
	"github.com/MrWong99/voxhire/internal/interview"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/pkg/audio"
)

const (
	defaultSendQueue = 64
	writeTimeout     = 5 * time.Second
	readLimit        = 1 << 20
)

// Sessions hands out live interview sessions.
type Sessions interface {
	Get(ctx context.Context, id string) (*interview.Session, error)
	Release(id string)
}

// Option configures a [Hub].
type Option func(*Hub)

// WithOriginPatterns sets the origins accepted on upgrade. Empty means
// same-origin only.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithSendQueue sets the per-connection outbound queue length.
func WithSendQueue(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queue = n
		}
	}
}

// WithMetrics sets the metrics used for connection gauges.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub tracks connections per interview. Safe for concurrent use.
type Hub struct {
	sessions Sessions
	origins  []string
	queue    int
	metrics  *observe.Metrics

	mu     sync.RWMutex
	rooms  map[string]map[*conn]struct{}
	closed bool
}

var _ interview.Sink = (*Hub)(nil)

// NewHub creates a hub. Call [Hub.SetSessions] before serving if sessions
// were not known at construction.
func NewHub(sessions Sessions, opts ...Option) *Hub {
	h := &Hub{
		sessions: sessions,
		queue:    defaultSendQueue,
		rooms:    make(map[string]map[*conn]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// SetSessions sets the session source. The session manager needs the hub as
// its sink, so one of the two is wired after construction.
func (h *Hub) SetSessions(s Sessions) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = s
}

type conn struct {
	interviewID string
	role        interview.Participant
	mime        string
	ws          *websocket.Conn
	out         chan []byte
	done        chan struct{}
	once        sync.Once
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Broadcast implements [interview.Sink].
func (h *Hub) Broadcast(interviewID string, ev interview.Event) {
	h.send(interviewID, "", ev)
}

// SendToParticipant implements [interview.Sink].
func (h *Hub) SendToParticipant(interviewID string, role interview.Participant, ev interview.Event) {
	h.send(interviewID, role, ev)
}

func (h *Hub) send(interviewID string, role interview.Participant, ev interview.Event) {
	msg, err := encode(Outbound{Type: string(ev.Type), InterviewID: interviewID, Payload: ev.Payload, At: ev.At})
	if err != nil {
		observe.Logger(context.Background()).Error("ws: encode event", "type", string(ev.Type), "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[interviewID] {
		if role != "" && c.role != role {
			continue
		}
		select {
		case c.out <- msg:
		default:
			observe.Logger(context.Background()).Warn("ws: send queue full, dropping event",
				"interview_id", interviewID, "role", string(c.role), "type", string(ev.Type))
		}
	}
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it. The interview id is the {id} path value.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing interview id", http.StatusBadRequest)
		return
	}
	role := interview.Participant(r.URL.Query().Get("role"))
	switch role {
	case "":
		role = interview.ParticipantCandidate
	case interview.ParticipantCandidate, interview.ParticipantObserver:
	default:
		http.Error(w, "role must be candidate or observer", http.StatusBadRequest)
		return
	}
	mime := r.URL.Query().Get("mime")
	if mime == "" {
		mime = audio.MimePCM
	}

	h.mu.RLock()
	sessions, closed := h.sessions, h.closed
	h.mu.RUnlock()
	if closed || sessions == nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	sess, err := sessions.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "interview unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx := observe.WithInterviewID(r.Context(), id)
	log := observe.Logger(ctx)
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Warn("ws: accept failed", "err", err)
		return
	}
	wsConn.SetReadLimit(readLimit)

	c := &conn{
		interviewID: id,
		role:        role,
		mime:        mime,
		ws:          wsConn,
		out:         make(chan []byte, h.queue),
		done:        make(chan struct{}),
	}
	if !h.register(c) {
		wsConn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	attrs := metric.WithAttributes(observe.Attr("role", string(role)))
	h.metrics.ActiveConnections.Add(ctx, 1, attrs)
	log.Info("ws: participant connected", "role", string(role))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()
	go func() {
		select {
		case <-sess.Done():
			c.shutdown()
		case <-c.done:
		}
	}()

	err = h.readLoop(ctx, c, sess)
	c.shutdown()
	<-writerDone
	h.unregister(c)
	h.metrics.ActiveConnections.Add(context.WithoutCancel(ctx), -1, attrs)

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Info("ws: participant disconnected", "role", string(role))
	default:
		log.Info("ws: participant connection ended", "role", string(role), "err", err)
	}
}

// readLoop dispatches inbound messages until the connection fails.
func (h *Hub) readLoop(ctx context.Context, c *conn, sess *interview.Session) error {
	log := observe.Logger(ctx)
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if c.role != interview.ParticipantCandidate {
			continue
		}
		if err := h.dispatch(ctx, c, sess, typ, data); err != nil {
			if errors.Is(err, interview.ErrSessionDisposed) {
				return err
			}
			log.Debug("ws: message ignored", "err", err)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *conn, sess *interview.Session, typ websocket.MessageType, data []byte) error {
	if typ == websocket.MessageBinary {
		return sess.PushAudio(ctx, data, c.mime)
	}
	msg, err := decodeInbound(data)
	if err != nil {
		return err
	}
	switch msg.Type {
	case MsgAudioChunk:
		mime := msg.MimeType
		if mime == "" {
			mime = c.mime
		}
		return sess.PushAudio(ctx, msg.Data, mime)
	case MsgSpeakingStart:
		return sess.VoiceActivity(ctx, interview.VoiceStart)
	case MsgSpeakingStop:
		return sess.VoiceActivity(ctx, interview.VoiceStop)
	case MsgText:
		return sess.SubmitText(ctx, msg.Text)
	case MsgBegin:
		return sess.BeginGreeting(ctx, msg.Force)
	case MsgTTSMode:
		return sess.SetTTSMode(ctx, config.TTSMode(msg.Mode))
	}
	return fmt.Errorf("ws: unknown message type %q", msg.Type)
}

// writeLoop sends queued events. Once the connection is shut down it
// flushes what is already queued, then closes the socket.
func (c *conn) writeLoop(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	write := func(msg []byte) bool {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return c.ws.Write(wctx, websocket.MessageText, msg) == nil
	}
	for {
		select {
		case msg := <-c.out:
			if !write(msg) {
				c.ws.CloseNow()
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.out:
					if !write(msg) {
						c.ws.CloseNow()
						return
					}
				default:
					c.ws.Close(websocket.StatusNormalClosure, "")
					return
				}
			}
		}
	}
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	room := h.rooms[c.interviewID]
	if room == nil {
		room = make(map[*conn]struct{})
		h.rooms[c.interviewID] = room
	}
	room[c] = struct{}{}
	return true
}

// unregister removes c and releases the session once its last candidate has
// left. Release runs without the hub lock because disposal emits events.
func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	room := h.rooms[c.interviewID]
	delete(room, c)
	candidates := 0
	for other := range room {
		if other.role == interview.ParticipantCandidate {
			candidates++
		}
	}
	if len(room) == 0 {
		delete(h.rooms, c.interviewID)
	}
	sessions, closed := h.sessions, h.closed
	h.mu.Unlock()

	if c.role == interview.ParticipantCandidate && candidates == 0 && !closed && sessions != nil {
		sessions.Release(c.interviewID)
	}
}

// Connections returns the number of open connections for an interview.
func (h *Hub) Connections(interviewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[interviewID])
}

// Close shuts every connection down and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*conn
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		c.shutdown()
	}
}
