package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func statsMsg(row *RoomStatsRow) RoomStatsMsg {
	msg := RoomStatsMsg{
		RoomID:      row.RoomID,
		TotalGames:  row.TotalGames,
		TotalWins:   row.TotalWins,
		TotalDeaths: row.TotalDeaths,
		Created:     row.CreatedAt.Format(time.RFC3339),
	}
	if row.BestTime.Valid {
		msg.BestTime = &row.BestTime.Float64
	}
	return msg
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes.
func SetupRoutes(hub *Hub, db *DB, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// Serve static files with no-cache so browsers always revalidate
	fs := http.FileServer(http.Dir(clientDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fs.ServeHTTP(w, r)
	}))

	// WebSocket endpoint: /ws?room=ABCDEF&bin=1
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = DefaultRoomID
		}
		binary := r.URL.Query().Get("bin") == "1"

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)
		client := NewClient(hub, conn, ip, roomID, binary)

		room, ok := hub.rooms.Join(roomID, client.connID, client)
		if !ok {
			// Write directly; the pumps never start for a rejected client.
			data, _ := json.Marshal(Envelope{T: MsgRoomFull})
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.TextMessage, data)
			conn.Close()
			hub.TrackDisconnect(ip)
			log.Printf("room %s full, rejecting %s", roomID, ip)
			return
		}

		hub.register <- client
		client.StartArbitration(room)

		go client.WritePump()
		go client.ReadPump()
	})

	// Room statistics: /stats?room=ABCDEF for one room, bare /stats for the
	// most-winning rooms.
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "stats disabled", http.StatusNotFound)
			return
		}
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			rows, err := db.TopRooms(10)
			if err != nil {
				http.Error(w, "query failed", http.StatusInternalServerError)
				return
			}
			msgs := make([]RoomStatsMsg, 0, len(rows))
			for i := range rows {
				msgs = append(msgs, statsMsg(&rows[i]))
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(msgs)
			return
		}
		row, err := db.GetRoomStats(roomID)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		if row == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statsMsg(row))
	})

	// Join QR: /qr?room=ABCDEF renders the room join URL as a PNG
	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = DefaultRoomID
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		joinURL := scheme + "://" + r.Host + "/?room=" + url.QueryEscape(roomID)
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return mux
}
