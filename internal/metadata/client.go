package metadata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// reconnectDelay is the pause between connection attempts.
	reconnectDelay = 5 * time.Second

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 5 * time.Second

	// joinTimeout bounds how long Stop waits for the run loop to exit.
	joinTimeout = 5 * time.Second
)

// clientHello announces this client to the metadata server.
type clientHello struct {
	Type    string       `json:"type"`
	Payload helloPayload `json:"payload"`
}

type helloPayload struct {
	ClientID       string   `json:"client_id"`
	SupportedRoles []string `json:"supported_roles"`
}

// envelope is the generic inbound message frame.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// statePayload carries the now-playing metadata in server/state messages.
type statePayload struct {
	Metadata *wireMetadata `json:"metadata"`
}

type wireMetadata struct {
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Album      string        `json:"album"`
	ArtworkURL string        `json:"artwork_url"`
	Year       int           `json:"year"`
	Track      int           `json:"track"`
	Progress   *wireProgress `json:"progress"`
}

type wireProgress struct {
	TrackProgress float64 `json:"track_progress"`
	TrackDuration float64 `json:"track_duration"`
}

// Client keeps a reconnecting websocket session to one player's metadata
// server and exposes the latest track snapshot.
type Client struct {
	playerName string
	clientID   string
	url        string

	state  *trackState
	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewClient creates a metadata client for a player. Start must be called
// before the client does anything.
func NewClient(playerName, url string) *Client {
	return &Client{
		playerName: playerName,
		clientID:   "mop-metadata-" + playerName,
		url:        url,
		state:      &trackState{},
		done:       make(chan struct{}),
	}
}

// URL returns the metadata server URL this client connects to.
func (c *Client) URL() string { return c.url }

// Track returns the latest now-playing snapshot.
func (c *Client) Track() Track { return c.state.get() }

// Start launches the connect-read-reconnect loop in the background.
func (c *Client) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Stop shuts the client down and waits for the run loop to exit. The
// websocket connection is closed directly so a blocked read returns
// promptly instead of waiting out the network.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()

	select {
	case <-c.done:
	case <-time.After(joinTimeout):
		log.Warn().Str("player", c.playerName).Msg("Metadata client did not stop in time")
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("player", c.playerName).Str("url", c.url).
				Msg("Metadata connection lost, will reconnect")
		}

		// The last snapshot survives the disconnect and ages out through
		// IsStale; only the server can clear it.
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// session dials the server, sends the hello, and reads messages until the
// connection fails or the context is cancelled.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer c.closeConn()

	hello := clientHello{
		Type: "client/hello",
		Payload: helloPayload{
			ClientID:       c.clientID,
			SupportedRoles: []string{"metadata@v1"},
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return err
	}

	log.Info().Str("player", c.playerName).Str("url", c.url).Msg("Metadata client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

// handleMessage dispatches one inbound frame. Unknown message types are
// ignored so server protocol additions do not break the client.
func (c *Client) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("player", c.playerName).Msg("Unparseable metadata message")
		return
	}

	switch env.Type {
	case "server/hello":
		log.Debug().Str("player", c.playerName).Msg("Metadata server hello received")

	case "server/state":
		var p statePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Metadata == nil {
			return
		}
		track := Track{
			Title:      p.Metadata.Title,
			Artist:     p.Metadata.Artist,
			Album:      p.Metadata.Album,
			ArtworkURL: p.Metadata.ArtworkURL,
			Year:       p.Metadata.Year,
			TrackNum:   p.Metadata.Track,
			Playing:    true,
			UpdatedAt:  time.Now(),
		}
		if p.Metadata.Progress != nil {
			track.Progress = p.Metadata.Progress.TrackProgress
			track.Duration = p.Metadata.Progress.TrackDuration
		}
		c.state.set(track)

	case "stream/start":
		log.Debug().Str("player", c.playerName).Msg("Stream started")

	case "stream/end":
		// Cleared but fresh: an empty track with a current timestamp reads
		// as "nothing playing", not as a dead connection.
		c.state.set(Track{UpdatedAt: time.Now()})

	default:
		log.Debug().Str("player", c.playerName).Str("type", env.Type).
			Msg("Ignoring unknown metadata message type")
	}
}
