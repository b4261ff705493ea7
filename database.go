package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database holding room statistics. Game state itself
// is never persisted; these are monotonic observability counters that
// outlive room deletion.
type DB struct {
	conn *sql.DB
}

// RoomStatsRow represents one room's lifetime statistics.
type RoomStatsRow struct {
	RoomID      string
	TotalGames  int
	TotalWins   int
	TotalDeaths int
	BestTime    sql.NullFloat64 // seconds, best level completion
	CreatedAt   time.Time
}

// OpenDB opens (or creates) the SQLite database.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_stats (
		room_id TEXT PRIMARY KEY,
		total_games INTEGER NOT NULL DEFAULT 0,
		total_wins INTEGER NOT NULL DEFAULT 0,
		total_deaths INTEGER NOT NULL DEFAULT 0,
		best_time REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// EnsureRoom inserts the stats row for a room id if it is not known yet.
func (db *DB) EnsureRoom(roomID string) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO room_stats (room_id) VALUES (?)",
		roomID,
	)
	return err
}

// AddGame increments the games-started counter.
func (db *DB) AddGame(roomID string) error {
	_, err := db.conn.Exec(
		"UPDATE room_stats SET total_games = total_games + 1 WHERE room_id = ?",
		roomID,
	)
	return err
}

// AddDeath increments the death counter.
func (db *DB) AddDeath(roomID string) error {
	_, err := db.conn.Exec(
		"UPDATE room_stats SET total_deaths = total_deaths + 1 WHERE room_id = ?",
		roomID,
	)
	return err
}

// AddWin increments the win counter and lowers best_time if beaten.
func (db *DB) AddWin(roomID string, elapsed float64) error {
	_, err := db.conn.Exec(`
		UPDATE room_stats SET
			total_wins = total_wins + 1,
			best_time = CASE WHEN best_time IS NULL OR ? < best_time THEN ? ELSE best_time END
		WHERE room_id = ?`,
		elapsed, elapsed, roomID,
	)
	return err
}

// GetRoomStats returns a room's statistics, or nil if the id was never seen.
func (db *DB) GetRoomStats(roomID string) (*RoomStatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT room_id, total_games, total_wins, total_deaths, best_time, created_at FROM room_stats WHERE room_id = ?",
		roomID,
	)
	s := &RoomStatsRow{}
	err := row.Scan(&s.RoomID, &s.TotalGames, &s.TotalWins, &s.TotalDeaths, &s.BestTime, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// TopRooms returns the rooms with the most wins.
func (db *DB) TopRooms(limit int) ([]RoomStatsRow, error) {
	rows, err := db.conn.Query(`
		SELECT room_id, total_games, total_wins, total_deaths, best_time, created_at
		FROM room_stats ORDER BY total_wins DESC, total_games DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RoomStatsRow
	for rows.Next() {
		var s RoomStatsRow
		if err := rows.Scan(&s.RoomID, &s.TotalGames, &s.TotalWins, &s.TotalDeaths, &s.BestTime, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
