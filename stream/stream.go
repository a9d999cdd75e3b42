package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stevecastle/galleria/logging"
)

const (
	// Maximum number of concurrent SSE connections allowed
	MaxConcurrentConnections = 5000
	// Buffer size for each client's message channel
	ClientChannelBuffer = 256
	// How often to send keep-alive messages
	KeepAliveInterval = 30 * time.Second
	// How often to cleanup dead connections
	CleanupInterval = 60 * time.Second
	// Buffer size for hub broadcast queue
	HubBroadcastBuffer = 2048
)

// Event types pushed to the gallery pages.
const (
	EventAnalysis     = "analysis"
	EventPhotoCreated = "photo-created"
	EventPhotoDeleted = "photo-deleted"
)

type clientChan chan Message

// Client represents a connected SSE client
type Client struct {
	ID           string
	UserID       string
	Channel      clientChan
	LastSeen     int64 // Unix timestamp
	RemoteAddr   string
	UserAgent    string
	Connected    int64 // Unix timestamp when connected
	MessagesSent int64

	done chan struct{}
}

// ConnectionManager fans messages out to the SSE clients of each user.
type ConnectionManager struct {
	clients           sync.Map // map[clientChan]*Client
	activeCount       int64    // Atomic counter for active connections
	totalMessages     int64    // Atomic counter for total messages sent
	broadcast         chan Message
	droppedBroadcasts int64
	droppedClientMsgs int64
	rejectedConns     int64
	shutdown          chan struct{}
	shutdownOnce      sync.Once
}

var manager *ConnectionManager

func init() {
	manager = &ConnectionManager{
		shutdown:  make(chan struct{}),
		broadcast: make(chan Message, HubBroadcastBuffer),
	}
	// Start background loops
	go manager.runBroadcastLoop()
	go manager.cleanupRoutine()
}

// Message is one SSE event. An empty UserID reaches every client.
type Message struct {
	UserID string `json:"-"`
	Type   string `json:"type"`
	Msg    string `json:"msg"`
}

// GetConnectionStats returns current connection statistics
func GetConnectionStats() map[string]interface{} {
	return map[string]interface{}{
		"active_connections":   atomic.LoadInt64(&manager.activeCount),
		"total_messages":       atomic.LoadInt64(&manager.totalMessages),
		"max_connections":      int64(MaxConcurrentConnections),
		"dropped_broadcasts":   atomic.LoadInt64(&manager.droppedBroadcasts),
		"dropped_client_msgs":  atomic.LoadInt64(&manager.droppedClientMsgs),
		"rejected_connections": atomic.LoadInt64(&manager.rejectedConns),
	}
}

// AddClient registers a connection for userID. It returns the channel
// that is closed when the client is removed, or nil when the server is
// at capacity.
func AddClient(c clientChan, userID, remoteAddr, userAgent string) <-chan struct{} {
	if atomic.LoadInt64(&manager.activeCount) >= MaxConcurrentConnections {
		atomic.AddInt64(&manager.rejectedConns, 1)
		logging.L().Warn("connection limit reached, rejecting client",
			zap.Int("limit", MaxConcurrentConnections), zap.String("remote", remoteAddr))
		return nil
	}

	now := time.Now()
	client := &Client{
		ID:         fmt.Sprintf("%d-%s", now.UnixNano(), remoteAddr),
		UserID:     userID,
		Channel:    c,
		LastSeen:   now.Unix(),
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		Connected:  now.Unix(),
		done:       make(chan struct{}),
	}

	manager.clients.Store(c, client)
	active := atomic.AddInt64(&manager.activeCount, 1)

	logging.L().Debug("client connected",
		zap.String("client", client.ID), zap.String("user", userID), zap.Int64("active", active))
	return client.done
}

// RemoveClient unregisters a client and signals its handler to return.
// The message channel is left open so a concurrent fan-out cannot panic.
func RemoveClient(c clientChan) {
	if v, exists := manager.clients.LoadAndDelete(c); exists {
		client := v.(*Client)
		active := atomic.AddInt64(&manager.activeCount, -1)
		close(client.done)

		logging.L().Debug("client disconnected",
			zap.String("client", client.ID), zap.Int64("active", active))
	}
}

// Broadcast enqueues a message for fan-out without blocking callers
func Broadcast(msg Message) {
	if manager == nil {
		return
	}
	select {
	case manager.broadcast <- msg:
		// ok: dispatcher will fan-out and account metrics
	default:
		// hub busy; drop to protect producers
		atomic.AddInt64(&manager.droppedBroadcasts, 1)
	}
}

// Publish sends payload as JSON to every connection of userID.
func Publish(userID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.L().Error("failed to encode stream event", zap.String("type", eventType), zap.Error(err))
		return
	}
	Broadcast(Message{UserID: userID, Type: eventType, Msg: string(data)})
}

// runBroadcastLoop fans out messages to clients without blocking
func (cm *ConnectionManager) runBroadcastLoop() {
	for {
		select {
		case msg := <-cm.broadcast:
			cm.clients.Range(func(key, value any) bool {
				c := key.(clientChan)
				client := value.(*Client)
				if msg.UserID != "" && msg.UserID != client.UserID {
					return true
				}
				select {
				case c <- msg:
					atomic.StoreInt64(&client.LastSeen, time.Now().Unix())
					atomic.AddInt64(&client.MessagesSent, 1)
					atomic.AddInt64(&cm.totalMessages, 1)
				default:
					// client queue full; drop this message for this client
					atomic.AddInt64(&cm.droppedClientMsgs, 1)
				}
				return true
			})
		case <-cm.shutdown:
			return
		}
	}
}

// cleanupRoutine periodically removes stale connections
func (cm *ConnectionManager) cleanupRoutine() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.cleanupStaleConnections(time.Now())
		case <-cm.shutdown:
			return
		}
	}
}

// cleanupStaleConnections removes clients that haven't been seen recently
func (cm *ConnectionManager) cleanupStaleConnections(now time.Time) int {
	staleThreshold := now.Unix() - int64(CleanupInterval.Seconds()*2) // 2x cleanup interval

	var staleClients []clientChan

	cm.clients.Range(func(key, value any) bool {
		c := key.(clientChan)
		client := value.(*Client)

		if atomic.LoadInt64(&client.LastSeen) < staleThreshold {
			staleClients = append(staleClients, c)
		}
		return true
	})

	if len(staleClients) > 0 {
		logging.L().Info("cleaning up stale connections", zap.Int("count", len(staleClients)))
		for _, staleClient := range staleClients {
			RemoveClient(staleClient)
		}
	}
	return len(staleClients)
}

func touch(c clientChan) {
	if v, ok := manager.clients.Load(c); ok {
		atomic.StoreInt64(&v.(*Client).LastSeen, time.Now().Unix())
	}
}

// Shutdown gracefully shuts down the connection manager
func Shutdown() {
	manager.shutdownOnce.Do(func() {
		close(manager.shutdown)

		// Close all client connections
		manager.clients.Range(func(key, value any) bool {
			c := key.(clientChan)
			RemoveClient(c)
			return true
		})

		logging.L().Info("stream connection manager shutdown complete")
	})
}

// Handler serves the SSE endpoint. userOf resolves the authenticated user
// of the request; only that user's events are delivered.
func Handler(userOf func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userOf(r)
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Check if we can accept more connections
		if atomic.LoadInt64(&manager.activeCount) >= MaxConcurrentConnections {
			http.Error(w, "Server at capacity, please try again later", http.StatusServiceUnavailable)
			return
		}

		// Check if client supports streaming
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Del("Content-Encoding")

		messageChan := make(chan Message, ClientChannelBuffer)
		done := AddClient(messageChan, userID, r.RemoteAddr, r.UserAgent())
		if done == nil {
			http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
			return
		}
		defer RemoveClient(messageChan)

		ctx := r.Context()
		keepAliveTicker := time.NewTicker(KeepAliveInterval)
		defer keepAliveTicker.Stop()

		// Send initial connection confirmation
		if _, err := io.WriteString(w, "data: {\"type\":\"connected\",\"msg\":\"SSE connection established\"}\n\n"); err != nil {
			return
		}
		flusher.Flush()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg := <-messageChan:
				if _, err := io.WriteString(w, formatSSEResponse(msg)); err != nil {
					return // Connection broken
				}
				flusher.Flush()
			case <-keepAliveTicker.C:
				if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
					return // Connection broken
				}
				flusher.Flush()
				touch(messageChan)
			}
		}
	}
}

// formatSSEResponse writes one event. Multi-line payloads are split into
// several data lines.
func formatSSEResponse(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", msg.Type)
	for _, line := range strings.Split(msg.Msg, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}
