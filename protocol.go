package main

import "encoding/json"

// Client -> Server message types
const (
	MsgCharacterSelected = "character-selected"
	MsgInput             = "input"
	MsgWebRTCOffer       = "webrtc-offer"
	MsgWebRTCAnswer      = "webrtc-answer"
	MsgICECandidate      = "ice-candidate"
)

// Server -> Client message types
const (
	MsgRoomFull          = "room-full"
	MsgCharacterTaken    = "character-taken"
	MsgPlayerAssigned    = "player-assigned"
	MsgWaitingForPartner = "waiting-for-partner"
	MsgGameStart         = "game-start"
	MsgGameState         = "game-state"
	MsgDeath             = "death"
	MsgWin               = "win"
	MsgGameReset         = "game-reset"
	MsgPartnerLeft       = "partner-left"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CharacterMsg carries a character selection or a taken rejection
type CharacterMsg struct {
	Character string `json:"character"`
}

// AssignedMsg confirms a character assignment
type AssignedMsg struct {
	Character string `json:"character"`
	RoomID    string `json:"roomId"`
}

// PlayerState is the public per-player snapshot broadcast each tick
type PlayerState struct {
	ID             string  `json:"id"`
	Character      string  `json:"character"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	VX             float64 `json:"vx"`
	VY             float64 `json:"vy"`
	OnGround       bool    `json:"onGround"`
	TouchingButton bool    `json:"touchingButton"`
	FacingRight    bool    `json:"facingRight"`
	IsMoving       bool    `json:"isMoving"`
}

// GameState is the full room snapshot broadcast each tick
type GameState struct {
	Players   map[string]PlayerState `json:"players"`
	DoorsOpen bool                   `json:"doorsOpen"`
	Finished  bool                   `json:"finished"`
	Level     int                    `json:"level"`
	Score     int                    `json:"score"`
	Deaths    int                    `json:"deaths"`
}

// DeathMsg notifies the room of a hazard death
type DeathMsg struct {
	Message string `json:"message"`
	Deaths  int    `json:"deaths"`
}

// WinMsg notifies the room of a level completion
type WinMsg struct {
	Message    string  `json:"message"`
	Score      int     `json:"score"`
	LevelScore int     `json:"levelScore"`
	Time       float64 `json:"time"`
	Level      int     `json:"level"`
}

// ResetMsg is broadcast when a death or win pause ends
type ResetMsg struct {
	Level  int `json:"level"`
	Score  int `json:"score"`
	Deaths int `json:"deaths"`
}

// SignalMsg is an opaque WebRTC signaling payload relayed to the other
// room occupant. The server never inspects it.
type SignalMsg = json.RawMessage

// RoomStatsMsg is the /stats response payload
type RoomStatsMsg struct {
	RoomID      string   `json:"roomId"`
	TotalGames  int      `json:"totalGames"`
	TotalWins   int      `json:"totalWins"`
	TotalDeaths int      `json:"totalDeaths"`
	BestTime    *float64 `json:"bestTime"`
	Created     string   `json:"created"`
}
