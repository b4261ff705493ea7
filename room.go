package main

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// Timing knobs. Package-level vars so tests can shorten them.
var (
	TickInterval      = 16 * time.Millisecond
	ArbitrationWindow = 8 * time.Second
	DeathResetDelay   = 2 * time.Second
	WinResetDelay     = 3 * time.Second
)

const MaxPlayersPerRoom = 2

// Broadcaster is the sending side of a room occupant's connection.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendState(state GameState)
}

// Room owns one authoritative simulation. All state behind mu; the tick
// loop, input handlers and timer callbacks each take the lock, so every
// mutation of a room happens in one total order.
type Room struct {
	ID string

	mu      sync.RWMutex
	clients map[string]Broadcaster // connID -> connection, includes unassigned
	players map[string]*Player     // connID -> entity, only after assignment
	inputs  map[string]InputState

	doorsOpen bool
	finished  bool // freeze flag during the death/win pause
	level     int
	score     int
	deaths    int
	completed int
	startTime time.Time

	resetTimer  *time.Timer
	loopRunning bool
	stopLoop    chan struct{}
	deleted     bool // set at teardown; late timers and ticks become no-ops

	stats *StatsRecorder
}

// NewRoom creates an empty room.
func NewRoom(id string, stats *StatsRecorder) *Room {
	return &Room{
		ID:        id,
		clients:   make(map[string]Broadcaster),
		players:   make(map[string]*Player),
		inputs:    make(map[string]InputState),
		level:     1,
		startTime: time.Now(),
		stats:     stats,
	}
}

// Admit adds a connection to the room's broadcast group. Returns false when
// both slots are taken or the room has been torn down; a caller holding a
// stale pointer to a deleted room must go back to the manager.
func (r *Room) Admit(connID string, b Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted || len(r.clients) >= MaxPlayersPerRoom {
		return false
	}
	r.clients[connID] = b
	return true
}

// ClientCount returns the number of admitted connections.
func (r *Room) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// PlayerCount returns the number of assigned players.
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// HasPlayer reports whether the connection has been assigned a character.
func (r *Room) HasPlayer(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[connID]
	return ok
}

// SelectCharacter handles an explicit character choice. Returns false with
// no state change if the other occupant already holds it; the caller leaves
// its arbitration timer running so the client may retry.
func (r *Room) SelectCharacter(connID, character string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[connID]; ok {
		return true // already assigned, ignore
	}
	if r.characterTaken(character) {
		if b, ok := r.clients[connID]; ok {
			b.SendJSON(Envelope{T: MsgCharacterTaken, Data: CharacterMsg{Character: character}})
		}
		return false
	}
	r.assign(connID, character)
	return true
}

// AutoAssign gives the connection a pseudo-random unused character. Called
// by the arbitration timer; a no-op if the room was torn down, the
// connection left, a selection already landed, or both characters are held.
func (r *Room) AutoAssign(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return
	}
	if _, ok := r.clients[connID]; !ok {
		return
	}
	if _, ok := r.players[connID]; ok {
		return
	}
	var available []string
	for _, c := range []string{CharFire, CharWater} {
		if !r.characterTaken(c) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return
	}
	character := available[rand.Intn(len(available))]
	log.Printf("auto-selected %s for %s in room %s", character, connID, r.ID)
	r.assign(connID, character)
}

// characterTaken assumes mu is held.
func (r *Room) characterTaken(character string) bool {
	for _, p := range r.players {
		if p.Character == character {
			return true
		}
	}
	return false
}

// assign creates the player and input records and fires the start or
// waiting notifications. Assumes mu is held.
func (r *Room) assign(connID, character string) {
	r.players[connID] = NewPlayer(connID, character)
	r.inputs[connID] = InputState{}

	log.Printf("player %s joined room %s as %s", connID, r.ID, character)

	if b, ok := r.clients[connID]; ok {
		b.SendJSON(Envelope{T: MsgPlayerAssigned, Data: AssignedMsg{Character: character, RoomID: r.ID}})
	}

	if len(r.players) == MaxPlayersPerRoom {
		r.broadcast(Envelope{T: MsgGameStart})
		log.Printf("game started in room %s", r.ID)
		r.stats.TrackGameStart(r.ID)
		r.startTime = time.Now()
		r.startLoop()
	} else if b, ok := r.clients[connID]; ok {
		b.SendJSON(Envelope{T: MsgWaitingForPartner})
	}
}

// SetInput overwrites the connection's input record wholesale. Input from a
// connection with no assigned character is dropped.
func (r *Room) SetInput(connID string, in InputState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inputs[connID]; ok {
		r.inputs[connID] = in
	}
}

// Relay forwards an opaque signaling payload to every other occupant.
func (r *Room) Relay(fromConnID, msgType string, payload SignalMsg) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, b := range r.clients {
		if id != fromConnID {
			b.SendJSON(Envelope{T: msgType, Data: payload})
		}
	}
}

// RemoveClient drops a connection and its player/input records. Returns
// true when the room is now empty and should be deleted by the manager.
func (r *Room) RemoveClient(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, connID)
	if _, ok := r.players[connID]; ok {
		delete(r.players, connID)
		delete(r.inputs, connID)
		if len(r.players) == 1 {
			r.broadcast(Envelope{T: MsgPartnerLeft})
		}
	}

	if len(r.players) == 0 {
		r.stopLoopLocked()
		r.cancelResetLocked()
	}
	return len(r.clients) == 0
}

// Teardown marks the room dead and releases its loop and timers. The
// manager calls this exactly once, just before dropping the registry entry.
func (r *Room) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = true
	r.stopLoopLocked()
	r.cancelResetLocked()
}

// startLoop launches the tick goroutine. Idempotent; assumes mu is held.
func (r *Room) startLoop() {
	if r.loopRunning {
		return
	}
	r.loopRunning = true
	r.stopLoop = make(chan struct{})
	stop := r.stopLoop
	go func() {
		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Tick()
			case <-stop:
				return
			}
		}
	}()
}

// stopLoopLocked assumes mu is held.
func (r *Room) stopLoopLocked() {
	if r.loopRunning {
		r.loopRunning = false
		close(r.stopLoop)
	}
}

// cancelResetLocked assumes mu is held.
func (r *Room) cancelResetLocked() {
	if r.resetTimer != nil {
		r.resetTimer.Stop()
		r.resetTimer = nil
	}
}

// Tick runs one complete simulation step: physics for every player, then
// triggers, hazards and the win rule, then a snapshot broadcast. The
// snapshot goes out every tick, including during the frozen death/win
// pause, where it reflects the frozen values.
func (r *Room) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleted {
		return
	}

	if !r.finished {
		dt := TickInterval.Seconds()

		ordered := r.orderedPlayers()
		for _, p := range ordered {
			p.Step(r.inputs[p.ID], dt)
		}

		// Doors need both buttons held; only meaningful with a full room.
		if len(ordered) == MaxPlayersPerRoom {
			r.doorsOpen = ordered[0].TouchingButton && ordered[1].TouchingButton
		}

		// Hazards beat the win rule, and fire is checked before water so a
		// same-tick double hit reports deterministically.
		for _, p := range ordered {
			if p.InHazard() {
				if p.Character == CharFire {
					r.handleDeath("Fire died in water!")
				} else {
					r.handleDeath("Water died in lava!")
				}
				r.broadcastState()
				return
			}
		}

		if len(ordered) == MaxPlayersPerRoom && r.doorsOpen && allAtExits(ordered) {
			r.handleWin()
		}
	}

	r.broadcastState()
}

// orderedPlayers returns the players in fixed character-priority order,
// fire first. Assumes mu is held.
func (r *Room) orderedPlayers() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.Character == CharFire {
			out = append(out, p)
		}
	}
	for _, p := range r.players {
		if p.Character != CharFire {
			out = append(out, p)
		}
	}
	return out
}

// allAtExits reports whether every player stands at its own exit.
func allAtExits(players []*Player) bool {
	for _, p := range players {
		if !p.AtExit() {
			return false
		}
	}
	return true
}

// handleDeath freezes the room and schedules the respawn. Assumes mu is held.
func (r *Room) handleDeath(message string) {
	r.finished = true
	r.deaths++
	r.stats.TrackDeath(r.ID)

	r.broadcast(Envelope{T: MsgDeath, Data: DeathMsg{Message: message, Deaths: r.deaths}})

	r.cancelResetLocked()
	r.resetTimer = time.AfterFunc(DeathResetDelay, func() {
		r.reset(false)
	})
}

// handleWin freezes the room, applies scoring and schedules the level
// advance. Assumes mu is held.
func (r *Room) handleWin() {
	r.finished = true
	r.completed++

	elapsed := time.Since(r.startTime).Seconds()
	timeBonus := 100 - int(elapsed)
	if timeBonus < 0 {
		timeBonus = 0
	}
	levelScore := 100 + timeBonus - r.deaths*10
	if levelScore < 0 {
		levelScore = 0
	}
	r.score += levelScore
	r.stats.TrackWin(r.ID, elapsed)

	r.broadcast(Envelope{T: MsgWin, Data: WinMsg{
		Message:    "Level completed!",
		Score:      r.score,
		LevelScore: levelScore,
		Time:       elapsed,
		Level:      r.level,
	}})

	r.cancelResetLocked()
	r.resetTimer = time.AfterFunc(WinResetDelay, func() {
		r.reset(true)
	})
}

// reset unfreezes the room for the next attempt. advance is true on the win
// path, which moves to the next level; the death path replays the current
// one. Deaths and score carry across either way.
func (r *Room) reset(advance bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return
	}

	if advance {
		r.level++
	}
	r.finished = false
	r.doorsOpen = false
	r.startTime = time.Now()

	for _, p := range r.players {
		p.Respawn()
	}
	for id := range r.inputs {
		r.inputs[id] = InputState{}
	}

	r.broadcast(Envelope{T: MsgGameReset, Data: ResetMsg{Level: r.level, Score: r.score, Deaths: r.deaths}})
}

// Snapshot returns the current public state. Assumes mu is held when called
// from the tick path; the exported wrapper below locks for callers.
func (r *Room) snapshot() GameState {
	players := make(map[string]PlayerState, len(r.players))
	for id, p := range r.players {
		players[id] = p.ToState()
	}
	return GameState{
		Players:   players,
		DoorsOpen: r.doorsOpen,
		Finished:  r.finished,
		Level:     r.level,
		Score:     r.score,
		Deaths:    r.deaths,
	}
}

// Snapshot returns the current public state of the room.
func (r *Room) Snapshot() GameState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

// broadcastState assumes mu is held.
func (r *Room) broadcastState() {
	state := r.snapshot()
	for _, b := range r.clients {
		b.SendState(state)
	}
}

// broadcast sends an event to every admitted connection. Assumes mu is held.
func (r *Room) broadcast(msg Envelope) {
	for _, b := range r.clients {
		b.SendJSON(msg)
	}
}
