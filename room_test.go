package main

import (
	"sync"
	"testing"
	"time"
)

// mockConn captures messages sent to one room occupant
type mockConn struct {
	mu     sync.Mutex
	events []Envelope
	states []GameState
}

func (m *mockConn) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env, ok := msg.(Envelope); ok {
		m.events = append(m.events, env)
	}
}

func (m *mockConn) SendState(state GameState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}

func (m *mockConn) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.T)
	}
	return out
}

func (m *mockConn) hasEvent(msgType string) bool {
	for _, t := range m.eventTypes() {
		if t == msgType {
			return true
		}
	}
	return false
}

func (m *mockConn) lastState() (GameState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return GameState{}, false
	}
	return m.states[len(m.states)-1], true
}

// newTestRoom builds a room with two assigned players and no running tick
// loop, so tests can drive Tick explicitly.
func newTestRoom(t *testing.T) (*Room, *mockConn, *mockConn) {
	t.Helper()
	r := NewRoom("test", nil)
	m1 := &mockConn{}
	m2 := &mockConn{}
	if !r.Admit("c1", m1) || !r.Admit("c2", m2) {
		t.Fatal("admit failed")
	}
	r.players["c1"] = NewPlayer("c1", CharFire)
	r.players["c2"] = NewPlayer("c2", CharWater)
	r.inputs["c1"] = InputState{}
	r.inputs["c2"] = InputState{}
	return r, m1, m2
}

func TestAdmitCapacity(t *testing.T) {
	r := NewRoom("test", nil)
	if !r.Admit("c1", &mockConn{}) {
		t.Error("first admit should succeed")
	}
	if !r.Admit("c2", &mockConn{}) {
		t.Error("second admit should succeed")
	}
	if r.Admit("c3", &mockConn{}) {
		t.Error("third admit should be rejected")
	}
	if r.ClientCount() != 2 {
		t.Errorf("client count = %d, want 2", r.ClientCount())
	}
}

func TestAdmitAfterTeardown(t *testing.T) {
	r := NewRoom("test", nil)
	r.Teardown()
	if r.Admit("c1", &mockConn{}) {
		t.Error("torn-down room must not admit connections")
	}
}

func TestJoinAfterRoomRemoval(t *testing.T) {
	rm := NewRoomManager(nil)
	rA, ok := rm.Join("x", "c1", &mockConn{})
	if !ok {
		t.Fatal("join should admit into a fresh room")
	}
	rm.RemoveClient("x", "c1")
	if rm.Count() != 0 {
		t.Fatalf("room count = %d, want 0 after the last occupant left", rm.Count())
	}

	// A stale pointer to the deleted room refuses new admissions instead of
	// stranding the connection in a room the registry no longer knows.
	if rA.Admit("c2", &mockConn{}) {
		t.Error("deleted room must not admit a new connection")
	}

	// Joining the same id again lands in a fresh, live room
	rB, ok := rm.Join("x", "c2", &mockConn{})
	if !ok {
		t.Fatal("re-join should create and admit into a fresh room")
	}
	if rB == rA {
		t.Error("re-join must not resurrect the deleted room")
	}
	if !rB.SelectCharacter("c2", CharFire) {
		t.Error("fresh room should accept a character selection")
	}
}

func TestSelectCharacterExclusive(t *testing.T) {
	r := NewRoom("test", nil)
	defer r.Teardown()
	m1 := &mockConn{}
	m2 := &mockConn{}
	r.Admit("c1", m1)
	r.Admit("c2", m2)

	if !r.SelectCharacter("c1", CharFire) {
		t.Fatal("first fire selection should succeed")
	}
	if !m1.hasEvent(MsgPlayerAssigned) {
		t.Error("c1 should receive player-assigned")
	}
	if !m1.hasEvent(MsgWaitingForPartner) {
		t.Error("lone player should receive waiting-for-partner")
	}

	if r.SelectCharacter("c2", CharFire) {
		t.Fatal("second fire selection should be rejected")
	}
	if !m2.hasEvent(MsgCharacterTaken) {
		t.Error("c2 should receive character-taken")
	}
	if r.PlayerCount() != 1 {
		t.Errorf("player count = %d, want 1 after rejection", r.PlayerCount())
	}

	if !r.SelectCharacter("c2", CharWater) {
		t.Fatal("water selection should succeed")
	}
	if !m1.hasEvent(MsgGameStart) || !m2.hasEvent(MsgGameStart) {
		t.Error("both clients should receive game-start at two players")
	}

	r.mu.RLock()
	running := r.loopRunning
	r.mu.RUnlock()
	if !running {
		t.Error("tick loop should start when the room fills")
	}
}

func TestSelectCharacterIgnoredAfterAssignment(t *testing.T) {
	r := NewRoom("test", nil)
	m := &mockConn{}
	r.Admit("c1", m)
	r.SelectCharacter("c1", CharFire)
	if !r.SelectCharacter("c1", CharWater) {
		t.Error("re-selection should report success without effect")
	}
	r.mu.RLock()
	character := r.players["c1"].Character
	r.mu.RUnlock()
	if character != CharFire {
		t.Errorf("character = %s, want fire (re-selection ignored)", character)
	}
}

func TestAutoAssign(t *testing.T) {
	r := NewRoom("test", nil)
	m1 := &mockConn{}
	m2 := &mockConn{}
	r.Admit("c1", m1)
	r.Admit("c2", m2)
	r.SelectCharacter("c1", CharFire)
	defer r.Teardown()

	r.AutoAssign("c2")
	if !r.HasPlayer("c2") {
		t.Fatal("auto-assign should create the player")
	}
	r.mu.RLock()
	p := r.players["c2"]
	r.mu.RUnlock()
	if p.Character != CharWater {
		t.Errorf("character = %s, want the only free one (water)", p.Character)
	}
	if !m2.hasEvent(MsgPlayerAssigned) {
		t.Error("c2 should receive player-assigned")
	}

	// Firing again is a no-op
	r.AutoAssign("c2")
	if r.PlayerCount() != 2 {
		t.Errorf("player count = %d, want 2", r.PlayerCount())
	}
}

func TestAutoAssignUnknownConnIsNoop(t *testing.T) {
	r := NewRoom("test", nil)
	r.AutoAssign("ghost")
	if r.HasPlayer("ghost") || r.PlayerCount() != 0 {
		t.Error("auto-assign for an unknown connection must not create players")
	}
}

func TestSetInputRequiresAssignment(t *testing.T) {
	r := NewRoom("test", nil)
	m := &mockConn{}
	r.Admit("c1", m)

	r.SetInput("c1", InputState{Left: true})
	r.mu.RLock()
	_, ok := r.inputs["c1"]
	r.mu.RUnlock()
	if ok {
		t.Error("pre-assignment input should be dropped")
	}

	r.SelectCharacter("c1", CharFire)
	r.SetInput("c1", InputState{Left: true})
	r.mu.RLock()
	in := r.inputs["c1"]
	r.mu.RUnlock()
	if !in.Left {
		t.Error("post-assignment input should be recorded")
	}
}

func TestTickBroadcastsSnapshot(t *testing.T) {
	r, m1, m2 := newTestRoom(t)
	r.Tick()

	for _, m := range []*mockConn{m1, m2} {
		state, ok := m.lastState()
		if !ok {
			t.Fatal("tick should broadcast a snapshot to every occupant")
		}
		if len(state.Players) != 2 {
			t.Errorf("snapshot players = %d, want 2", len(state.Players))
		}
		if state.Level != 1 || state.Score != 0 || state.Deaths != 0 {
			t.Errorf("unexpected snapshot counters: %+v", state)
		}
	}
}

func TestTickAppliesInput(t *testing.T) {
	r, m1, _ := newTestRoom(t)
	r.SetInput("c1", InputState{Right: true})
	r.Tick()

	state, _ := m1.lastState()
	fire := state.Players["c1"]
	if fire.X <= 64 {
		t.Errorf("fire x = %v, want > 64 after right input", fire.X)
	}
	if !fire.IsMoving || !fire.FacingRight {
		t.Error("fire should be moving right")
	}
	water := state.Players["c2"]
	if water.IsMoving {
		t.Error("water received no input and should be idle")
	}
}

func TestDoorsNeedBothButtons(t *testing.T) {
	r, m1, _ := newTestRoom(t)

	// Fire on the red button platform, water elsewhere
	r.players["c1"].X, r.players["c1"].Y = 64, 288
	r.Tick()
	state, _ := m1.lastState()
	if state.DoorsOpen {
		t.Error("one button is not enough to open the doors")
	}

	// Water onto the blue button platform (row 10 col 22 sits over row 11)
	r.players["c2"].X, r.players["c2"].Y = 704, 288
	r.Tick()
	state, _ = m1.lastState()
	if !state.DoorsOpen {
		t.Error("both buttons held should open the doors")
	}

	// Releasing one closes them again
	r.players["c2"].X, r.players["c2"].Y = 400, 100
	r.Tick()
	state, _ = m1.lastState()
	if state.DoorsOpen {
		t.Error("doors should close when a button is released")
	}
}

func TestHazardDeath(t *testing.T) {
	oldDelay := DeathResetDelay
	DeathResetDelay = 20 * time.Millisecond
	defer func() { DeathResetDelay = oldDelay }()

	r, m1, m2 := newTestRoom(t)

	// Fire resting on the right platform dips into the water pool
	r.players["c1"].X, r.players["c1"].Y = 736, 512
	r.Tick()

	r.mu.RLock()
	finished, deaths := r.finished, r.deaths
	r.mu.RUnlock()
	if !finished {
		t.Error("hazard should freeze the room")
	}
	if deaths != 1 {
		t.Errorf("deaths = %d, want 1", deaths)
	}
	for _, m := range []*mockConn{m1, m2} {
		if !m.hasEvent(MsgDeath) {
			t.Error("death should be broadcast to the room")
		}
	}
	m1.mu.Lock()
	var deathMsg DeathMsg
	for _, e := range m1.events {
		if e.T == MsgDeath {
			deathMsg = e.Data.(DeathMsg)
		}
	}
	m1.mu.Unlock()
	if deathMsg.Message != "Fire died in water!" {
		t.Errorf("message = %q, want fire death notice", deathMsg.Message)
	}

	// Frozen room: ticks keep broadcasting but stop simulating
	r.SetInput("c2", InputState{Right: true})
	before := r.Snapshot().Players["c2"].X
	r.Tick()
	after := r.Snapshot().Players["c2"].X
	if before != after {
		t.Error("players must not move while the room is frozen")
	}
	if _, ok := m2.lastState(); !ok {
		t.Error("frozen room still broadcasts snapshots")
	}

	// Reset fires after the delay and respawns everyone
	time.Sleep(100 * time.Millisecond)
	r.mu.RLock()
	finished = r.finished
	fire := *r.players["c1"]
	in := r.inputs["c2"]
	level, score, deathsAfter := r.level, r.score, r.deaths
	r.mu.RUnlock()
	if finished {
		t.Error("room should unfreeze after the reset delay")
	}
	if fire.X != 64 || fire.Y != 500 {
		t.Errorf("fire respawn = (%v, %v), want (64, 500)", fire.X, fire.Y)
	}
	if in.Right {
		t.Error("reset should clear input records")
	}
	if level != 1 || score != 0 || deathsAfter != 1 {
		t.Errorf("death reset must keep level/score/deaths, got %d/%d/%d", level, score, deathsAfter)
	}
	if !m1.hasEvent(MsgGameReset) {
		t.Error("reset should be broadcast")
	}
}

func TestWaterDiesInLava(t *testing.T) {
	oldDelay := DeathResetDelay
	DeathResetDelay = time.Hour // keep frozen for inspection
	defer func() { DeathResetDelay = oldDelay }()

	r, m1, _ := newTestRoom(t)
	defer r.Teardown()
	r.players["c2"].X, r.players["c2"].Y = 0, 512
	r.Tick()

	m1.mu.Lock()
	var deathMsg DeathMsg
	for _, e := range m1.events {
		if e.T == MsgDeath {
			deathMsg = e.Data.(DeathMsg)
		}
	}
	m1.mu.Unlock()
	if deathMsg.Message != "Water died in lava!" {
		t.Errorf("message = %q, want water death notice", deathMsg.Message)
	}
}

func TestWinScoring(t *testing.T) {
	oldDelay := WinResetDelay
	WinResetDelay = 20 * time.Millisecond
	defer func() { WinResetDelay = oldDelay }()

	r, m1, _ := newTestRoom(t)

	// elapsed 50s with 1 prior death: 100 + 50 - 10 = 140
	r.mu.Lock()
	r.startTime = time.Now().Add(-50 * time.Second)
	r.deaths = 1
	r.handleWin()
	r.mu.Unlock()

	m1.mu.Lock()
	var winMsg WinMsg
	for _, e := range m1.events {
		if e.T == MsgWin {
			winMsg = e.Data.(WinMsg)
		}
	}
	m1.mu.Unlock()
	if winMsg.LevelScore != 140 {
		t.Errorf("level score = %d, want 140", winMsg.LevelScore)
	}
	if winMsg.Score != 140 {
		t.Errorf("score = %d, want 140", winMsg.Score)
	}
	if winMsg.Level != 1 {
		t.Errorf("win reports level %d, want 1", winMsg.Level)
	}

	// Advance happens after the delay: level 2, score kept
	time.Sleep(100 * time.Millisecond)
	r.mu.RLock()
	level, score, finished := r.level, r.score, r.finished
	r.mu.RUnlock()
	if level != 2 {
		t.Errorf("level = %d, want 2 after win reset", level)
	}
	if score != 140 {
		t.Errorf("score = %d, want 140 preserved across reset", score)
	}
	if finished {
		t.Error("room should unfreeze after the win reset")
	}
}

func TestWinScoringFloor(t *testing.T) {
	oldDelay := WinResetDelay
	WinResetDelay = time.Hour
	defer func() { WinResetDelay = oldDelay }()

	r, m1, _ := newTestRoom(t)
	defer r.Teardown()

	// elapsed 150s with 3 deaths: max(0, 100 + 0 - 30) = 70
	r.mu.Lock()
	r.startTime = time.Now().Add(-150 * time.Second)
	r.deaths = 3
	r.handleWin()
	r.mu.Unlock()

	m1.mu.Lock()
	var winMsg WinMsg
	for _, e := range m1.events {
		if e.T == MsgWin {
			winMsg = e.Data.(WinMsg)
		}
	}
	m1.mu.Unlock()
	if winMsg.LevelScore != 70 {
		t.Errorf("level score = %d, want 70", winMsg.LevelScore)
	}
}

func TestNoWinWithDoorsClosed(t *testing.T) {
	r, _, _ := newTestRoom(t)

	// Both players parked at their exits, but nobody on a button
	r.players["c1"].X, r.players["c1"].Y = 32, 480
	r.players["c2"].X, r.players["c2"].Y = 736, 480
	r.Tick()

	r.mu.RLock()
	finished := r.finished
	r.mu.RUnlock()
	if finished {
		t.Error("exits without open doors must not win")
	}
}

func TestNoWinWithExitsNotReached(t *testing.T) {
	r, m1, _ := newTestRoom(t)

	// Both on their buttons: doors open, nobody at an exit
	r.players["c1"].X, r.players["c1"].Y = 64, 288
	r.players["c2"].X, r.players["c2"].Y = 704, 288
	r.Tick()

	state, _ := m1.lastState()
	if !state.DoorsOpen {
		t.Fatal("both buttons held should open the doors")
	}
	if state.Finished {
		t.Error("open doors without both exits reached must not win")
	}
}

func TestAllAtExits(t *testing.T) {
	fire := NewPlayer("f", CharFire)
	water := NewPlayer("w", CharWater)
	fire.X, fire.Y = 32, 480
	water.X, water.Y = 736, 480
	if !allAtExits([]*Player{fire, water}) {
		t.Error("both standing on their exits should satisfy the win rule")
	}

	// One player short of its exit blocks the win
	water.X, water.Y = 400, 100
	if allAtExits([]*Player{fire, water}) {
		t.Error("a single missing player must block the win")
	}
}

func TestRemoveClientPartnerLeft(t *testing.T) {
	r, _, m2 := newTestRoom(t)

	if r.RemoveClient("c1") {
		t.Error("room with a remaining occupant must not report empty")
	}
	if !m2.hasEvent(MsgPartnerLeft) {
		t.Error("remaining player should receive partner-left")
	}
	if r.PlayerCount() != 1 {
		t.Errorf("player count = %d, want 1", r.PlayerCount())
	}

	if !r.RemoveClient("c2") {
		t.Error("removing the last occupant should report empty")
	}
}

func TestRemoveLastPlayerStopsLoopAndTimers(t *testing.T) {
	oldDelay := DeathResetDelay
	DeathResetDelay = 30 * time.Millisecond
	defer func() { DeathResetDelay = oldDelay }()

	r := NewRoom("test", nil)
	m1 := &mockConn{}
	m2 := &mockConn{}
	r.Admit("c1", m1)
	r.Admit("c2", m2)
	r.SelectCharacter("c1", CharFire)
	r.SelectCharacter("c2", CharWater)

	// Freeze via a death so a reset timer is pending
	r.mu.Lock()
	r.handleDeath("Fire died in water!")
	r.mu.Unlock()

	r.RemoveClient("c1")
	r.RemoveClient("c2")
	r.Teardown()

	r.mu.RLock()
	running := r.loopRunning
	timer := r.resetTimer
	r.mu.RUnlock()
	if running {
		t.Error("loop should stop when the room empties")
	}
	if timer != nil {
		t.Error("pending reset timer should be cancelled")
	}

	// A late reset against the dead room is a guarded no-op
	time.Sleep(60 * time.Millisecond)
	r.mu.RLock()
	finished := r.finished
	r.mu.RUnlock()
	if !finished {
		t.Error("no reset may act on a torn-down room")
	}
}

func TestSnapshotWhileFinishedKeepsValues(t *testing.T) {
	r, m1, _ := newTestRoom(t)
	r.mu.Lock()
	r.finished = true
	r.score = 240
	r.level = 3
	r.mu.Unlock()

	r.Tick()
	state, _ := m1.lastState()
	if !state.Finished || state.Score != 240 || state.Level != 3 {
		t.Errorf("frozen snapshot mismatch: %+v", state)
	}
}

func TestRelaySkipsSender(t *testing.T) {
	r, m1, m2 := newTestRoom(t)
	payload := SignalMsg(`{"sdp":"offer"}`)
	r.Relay("c1", MsgWebRTCOffer, payload)

	if m1.hasEvent(MsgWebRTCOffer) {
		t.Error("sender must not receive its own signaling message")
	}
	if !m2.hasEvent(MsgWebRTCOffer) {
		t.Error("other occupant should receive the relayed message")
	}
}
