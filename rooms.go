package main

import (
	"log"
	"sync"
)

// DefaultRoomID is used when a connection supplies no room parameter.
const DefaultRoomID = "default"

// RoomManager owns the room-id -> Room registry. Rooms are created lazily
// on first reference and deleted the moment their last connection leaves;
// an empty room never stays in the registry.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	stats *StatsRecorder
}

// NewRoomManager creates a RoomManager.
func NewRoomManager(stats *StatsRecorder) *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*Room),
		stats: stats,
	}
}

// Join resolves the room for id, creating it if absent, and admits the
// connection into it. Lookup and admission happen under the registry lock,
// the same lock RemoveClient holds for teardown, so a room can never be
// deleted between the two steps. Returns false when both seats are taken.
func (rm *RoomManager) Join(id, connID string, b Broadcaster) (*Room, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r, ok := rm.rooms[id]
	if !ok {
		r = NewRoom(id, rm.stats)
		rm.rooms[id] = r
		rm.stats.TrackRoomCreated(id)
		log.Printf("room %s created", id)
	}
	return r, r.Admit(connID, b)
}

// Get returns the room for id, or nil.
func (rm *RoomManager) Get(id string) *Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.rooms[id]
}

// RemoveClient detaches a connection from its room and tears the room down
// if that was the last occupant. Statistics records outlive the room.
func (rm *RoomManager) RemoveClient(roomID, connID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r, ok := rm.rooms[roomID]
	if !ok {
		return
	}

	if r.RemoveClient(connID) {
		r.Teardown()
		delete(rm.rooms, roomID)
		log.Printf("room %s deleted", roomID)
	}
}

// Count returns the number of live rooms.
func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}
