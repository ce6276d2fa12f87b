package websocket

import (
	"context"
	"log/slog"

	"teamline-chat/internal/observability"
)

// BroadcastMessage carries an event payload to every client watching a channel.
type BroadcastMessage struct {
	ChannelID string
	Payload   []byte
}

// Hub maintains active clients grouped by channel and pushes events to them.
// Clients never send application data upstream; the HTTP API is the write path.
type Hub struct {
	// Registered clients keyed by channel id
	clients map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.channelID] == nil {
				h.clients[client.channelID] = make(map[*Client]bool)
			}
			h.clients[client.channelID][client] = true
			observability.WebSocketConnectionsActive.WithLabelValues(client.channelID).Inc()
			slog.Info("client registered",
				slog.String("user_id", client.userID),
				slog.String("channel_id", client.channelID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			if clients, ok := h.clients[message.ChannelID]; ok {
				for client := range clients {
					select {
					case client.send <- message.Payload:
						observability.WebSocketEventsSent.WithLabelValues(message.ChannelID).Inc()
					default:
						// Client's send buffer is full, close connection
						h.closeClientSend(client)
						delete(clients, client)
					}
				}
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if clients, ok := h.clients[client.channelID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			h.closeClientSend(client)
			observability.WebSocketConnectionsActive.WithLabelValues(client.channelID).Dec()
			slog.Info("client unregistered",
				slog.String("user_id", client.userID),
				slog.String("channel_id", client.channelID))

			if len(clients) == 0 {
				delete(h.clients, client.channelID)
			}
		}
	}
}

func (h *Hub) closeClientSend(client *Client) {
	select {
	case <-client.send:
		// Channel already closed
	default:
		close(client.send)
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	for channelID, clients := range h.clients {
		for client := range clients {
			h.closeClientSend(client)
			slog.Info("closed client connection",
				slog.String("user_id", client.userID),
				slog.String("channel_id", channelID))
		}
	}

	slog.Info("hub shutdown complete")
}

// Broadcast delivers a payload to all clients watching a channel.
func (h *Hub) Broadcast(channelID string, payload []byte) {
	h.broadcast <- &BroadcastMessage{
		ChannelID: channelID,
		Payload:   payload,
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
