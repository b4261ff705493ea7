package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120
)

// Client represents one WebSocket connection bound to one room slot.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	connID     string
	roomID     string
	remoteAddr string
	binary     bool // state snapshots as msgpack instead of JSON
	msgCount   int
	msgResetAt time.Time
	arbTimer   *time.Timer // character-arbitration window
}

// NewClient creates a new Client.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr, roomID string, binary bool) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		connID:     GenerateID(8),
		roomID:     roomID,
		remoteAddr: remoteAddr,
		binary:     binary,
	}
}

// StartArbitration opens the character-selection window. When it expires
// without a valid explicit pick, the room auto-assigns the free character.
func (c *Client) StartArbitration(room *Room) {
	c.arbTimer = time.AfterFunc(ArbitrationWindow, func() {
		room.AutoAssign(c.connID)
	})
}

// ReadPump reads messages from the WebSocket connection.
func (c *Client) ReadPump() {
	defer func() {
		c.cancelArbitration()
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection.
func (c *Client) WritePump() {
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
			// 0xFF prefix marks binary payloads from SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
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

// SendJSON sends a JSON message to the client.
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendState sends a per-tick snapshot, msgpack binary for clients that
// opted in at connect time, JSON otherwise.
func (c *Client) SendState(state GameState) {
	if !c.binary {
		c.SendJSON(Envelope{T: MsgGameState, Data: state})
		return
	}
	data, err := msgpack.Marshal(&state)
	if err != nil {
		log.Printf("msgpack marshal error: %v", err)
		return
	}
	c.SendBinary(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client.
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Malformed input is dropped, not surfaced
		return
	}

	switch env.T {
	case MsgCharacterSelected:
		c.handleCharacterSelected(env.D)
	case MsgInput:
		c.handleInput(env.D)
	case MsgWebRTCOffer, MsgWebRTCAnswer, MsgICECandidate:
		c.handleSignal(env.T, env.D)
	}
}

func (c *Client) handleCharacterSelected(data json.RawMessage) {
	var msg CharacterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Character != CharFire && msg.Character != CharWater {
		return
	}
	room := c.hub.rooms.Get(c.roomID)
	if room == nil {
		return
	}
	if room.SelectCharacter(c.connID, msg.Character) {
		c.cancelArbitration()
	}
	// On a taken rejection the window stays open so the client can retry.
}

func (c *Client) handleInput(data json.RawMessage) {
	var in InputState
	if err := json.Unmarshal(data, &in); err != nil {
		return
	}
	room := c.hub.rooms.Get(c.roomID)
	if room == nil {
		return
	}
	room.SetInput(c.connID, in)
}

// handleSignal relays WebRTC signaling verbatim to the other occupant.
func (c *Client) handleSignal(msgType string, payload json.RawMessage) {
	room := c.hub.rooms.Get(c.roomID)
	if room == nil {
		return
	}
	room.Relay(c.connID, msgType, payload)
}

func (c *Client) cancelArbitration() {
	if c.arbTimer != nil {
		c.arbTimer.Stop()
		c.arbTimer = nil
	}
}
