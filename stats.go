package main

import (
	"log"
	"sync"
	"time"
)

// Statistics event kinds
const (
	evtRoomCreated = "room_created"
	evtGameStart   = "game_start"
	evtDeath       = "death"
	evtWin         = "win"
)

type statsEvent struct {
	Kind    string
	RoomID  string
	Elapsed float64 // win only, seconds
}

// StatsRecorder persists room statistics off the tick path. Events are
// enqueued non-blocking from room code and applied by a background writer,
// so a slow disk can never stall a simulation step. A nil *StatsRecorder is
// valid and drops everything, which keeps rooms testable without a DB.
type StatsRecorder struct {
	db     *DB
	events chan statsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewStatsRecorder creates and starts the background writer.
func NewStatsRecorder(db *DB) *StatsRecorder {
	s := &StatsRecorder{
		db:     db,
		events: make(chan statsEvent, 1024),
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// TrackRoomCreated records the first reference to a room id.
func (s *StatsRecorder) TrackRoomCreated(roomID string) {
	s.track(statsEvent{Kind: evtRoomCreated, RoomID: roomID})
}

// TrackGameStart records a room reaching two players.
func (s *StatsRecorder) TrackGameStart(roomID string) {
	s.track(statsEvent{Kind: evtGameStart, RoomID: roomID})
}

// TrackDeath records a hazard death.
func (s *StatsRecorder) TrackDeath(roomID string) {
	s.track(statsEvent{Kind: evtDeath, RoomID: roomID})
}

// TrackWin records a level completion and its duration.
func (s *StatsRecorder) TrackWin(roomID string, elapsed float64) {
	s.track(statsEvent{Kind: evtWin, RoomID: roomID, Elapsed: elapsed})
}

func (s *StatsRecorder) track(evt statsEvent) {
	if s == nil {
		return
	}
	select {
	case s.events <- evt:
	default:
		// Channel full — drop the event rather than blocking a tick
	}
}

// Stop flushes pending events and shuts down the writer.
func (s *StatsRecorder) Stop() {
	if s == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

// writer is the background goroutine applying events to the database.
func (s *StatsRecorder) writer() {
	defer s.wg.Done()
	for {
		select {
		case evt := <-s.events:
			s.apply(evt)
		case <-s.stop:
			// Drain remaining events
			for {
				select {
				case evt := <-s.events:
					s.apply(evt)
				default:
					return
				}
			}
		}
	}
}

func (s *StatsRecorder) apply(evt statsEvent) {
	if s.db == nil {
		return
	}
	var err error
	switch evt.Kind {
	case evtRoomCreated:
		err = s.db.EnsureRoom(evt.RoomID)
	case evtGameStart:
		err = s.db.AddGame(evt.RoomID)
	case evtDeath:
		err = s.db.AddDeath(evt.RoomID)
	case evtWin:
		err = s.db.AddWin(evt.RoomID, evt.Elapsed)
	}
	if err != nil {
		log.Printf("stats: %s for room %s: %v", evt.Kind, evt.RoomID, err)
	}
}

// Flush blocks until events enqueued so far have been applied. Test helper;
// the writer itself stays asynchronous in normal operation.
func (s *StatsRecorder) Flush(timeout time.Duration) {
	if s == nil {
		return
	}
	deadline := time.Now().Add(timeout)
	for len(s.events) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}
