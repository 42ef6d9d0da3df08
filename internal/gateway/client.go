// Package gateway implements the chat-gateway transport: a long-lived
// websocket connection over which the bot receives message events from its
// chat platform and sends replies back. The wire protocol is owned by the
// remote gateway; this client only understands the two JSON frames the bot
// cares about (message_create in, message_send out) and leaves command
// semantics to the handler it dispatches to.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Attachment is a binary file attached to an inbound message.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Message is one inbound chat message event. GuildID scopes the message to a
// community; ChannelID addresses the reply.
type Message struct {
	GuildID     string       `json:"guild_id"`
	ChannelID   string       `json:"channel_id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Handler consumes inbound messages. Each message is dispatched on its own
// goroutine, so handlers may block on store calls without stalling the read
// loop; they must be safe for concurrent invocation.
type Handler func(ctx context.Context, msg Message)

// frame is the envelope shared by all gateway traffic.
type frame struct {
	Type      string   `json:"type"`
	Message   *Message `json:"message,omitempty"`
	ChannelID string   `json:"channel_id,omitempty"`
	Content   string   `json:"content,omitempty"`
}

const (
	frameMessageCreate = "message_create"
	frameMessageSend   = "message_send"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

// ErrNotConnected is returned by Send while no gateway connection is up.
var ErrNotConnected = errors.New("gateway: not connected")

// Client maintains the websocket session. It reconnects with capped
// exponential backoff until its context is cancelled.
type Client struct {
	url     string
	token   string
	handler Handler

	mu   sync.Mutex // guards conn and writes
	conn *websocket.Conn
}

// NewClient builds a gateway client. token, when non-empty, is presented as
// a bearer Authorization header during the handshake.
func NewClient(url, token string, h Handler) *Client {
	return &Client{url: url, token: token, handler: h}
}

// Run connects and processes events until ctx is cancelled. Connection
// drops are logged and retried; Run only returns the ctx error.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := c.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("gateway connection lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Send delivers a reply to a channel. Safe for concurrent use.
func (c *Client) Send(channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame{
		Type:      frameMessageSend,
		ChannelID: channelID,
		Content:   content,
	})
}

func (c *Client) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, hdr)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	log.Info().Str("url", c.url).Msg("gateway connected")

	// Unblock ReadMessage when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("gateway sent unparseable frame")
			continue
		}
		if f.Type != frameMessageCreate || f.Message == nil {
			continue
		}
		if c.handler != nil {
			go c.handler(ctx, *f.Message)
		}
	}
}
