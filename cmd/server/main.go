package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"versechain.app/internal/config"
	persistlog "versechain.app/internal/persistence/log"
	"versechain.app/internal/persistence/snapshot"
	"versechain.app/internal/persistence/versedb"
	"versechain.app/internal/poem/grid"
	"versechain.app/internal/poem/placement"
	"versechain.app/internal/poem/room"
	"versechain.app/internal/protocol"
	"versechain.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "", "path to config yaml (optional)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the verse store (rooms live in memory only)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Listen = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	var store room.Store
	if !*disableDB {
		db, err := versedb.Open(filepath.Join(cfg.DataDir, "verses.db"))
		if err != nil {
			logger.Fatalf("open verse store: %v", err)
		}
		defer db.Close()
		store = db
	} else {
		logger.Printf("verse store disabled; rooms are memory only")
	}

	decisions := persistlog.NewDecisionLogger(cfg.DataDir)
	defer decisions.Close()

	hub := ws.NewHub()
	reg := room.NewRegistry(room.Options{
		GridSize: cfg.Grid.Size,
		Rules: placement.Rules{
			FirstAnchor: grid.Coord{X: cfg.Grid.FirstAnchorX, Y: cfg.Grid.FirstAnchorY},
			MinTextLen:  cfg.Verse.MinLen,
			MaxTextLen:  cfg.Verse.MaxLen,
		},
		Store:       store,
		Broadcaster: hub,
		Snapshots:   snapshot.NewArchiver(cfg.DataDir),
		Decisions:   decisions,
		Logger:      logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	// Idle-room sweeper.
	if cfg.Rooms.SweepEveryMinutes > 0 {
		go func() {
			t := time.NewTicker(time.Duration(cfg.Rooms.SweepEveryMinutes) * time.Minute)
			defer t.Stop()
			maxIdle := time.Duration(cfg.Rooms.InactiveAfterMinutes) * time.Minute
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n := reg.Sweep(maxIdle); n > 0 {
						logger.Printf("swept %d idle rooms", n)
					}
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := reg.Metrics()

		fmt.Fprintf(rw, "# HELP versechain_rooms Live rooms in the registry.\n")
		fmt.Fprintf(rw, "# TYPE versechain_rooms gauge\n")
		fmt.Fprintf(rw, "versechain_rooms %d\n", m.Rooms)

		fmt.Fprintf(rw, "# HELP versechain_online Connected participants across rooms.\n")
		fmt.Fprintf(rw, "# TYPE versechain_online gauge\n")
		fmt.Fprintf(rw, "versechain_online %d\n", m.Online)

		fmt.Fprintf(rw, "# HELP versechain_ws_subscribers Websocket subscriptions.\n")
		fmt.Fprintf(rw, "# TYPE versechain_ws_subscribers gauge\n")
		fmt.Fprintf(rw, "versechain_ws_subscribers %d\n", hub.Total())

		fmt.Fprintf(rw, "# HELP versechain_verses_placed_total Accepted placements since start.\n")
		fmt.Fprintf(rw, "# TYPE versechain_verses_placed_total counter\n")
		fmt.Fprintf(rw, "versechain_verses_placed_total %d\n", m.VersesPlaced)

		fmt.Fprintf(rw, "# HELP versechain_rejections_total Rejected operations since start.\n")
		fmt.Fprintf(rw, "# TYPE versechain_rejections_total counter\n")
		fmt.Fprintf(rw, "versechain_rejections_total %d\n", m.Rejections)
	})

	api := &apiServer{reg: reg, logger: logger}
	mux.HandleFunc("/api/v1/rooms", api.rooms)
	mux.HandleFunc("/api/v1/rooms/", api.roomByCode)
	mux.HandleFunc("/v1/ws", ws.NewServer(reg, hub, logger).Handler())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

type apiServer struct {
	reg    *room.Registry
	logger *log.Logger
}

// rooms handles POST /api/v1/rooms (create) and GET /api/v1/rooms (list).
func (a *apiServer) rooms(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Creator string `json:"creator"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Creator) == "" {
			httpError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "creator required")
			return
		}
		info, err := a.reg.CreateRoom(r.Context(), strings.TrimSpace(body.Creator))
		if err != nil {
			a.logger.Printf("create room: %v", err)
			httpError(rw, http.StatusInternalServerError, protocol.ErrInternal, "could not create room")
			return
		}
		writeJSON(rw, http.StatusCreated, info)
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, a.reg.ListRooms())
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// roomByCode handles /api/v1/rooms/{code}[/verses|/reset].
func (a *apiServer) roomByCode(rw http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/rooms/")
	code, sub, _ := strings.Cut(rest, "/")
	if code == "" {
		rw.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		info, err := a.reg.RoomInfo(r.Context(), code)
		if err != nil {
			writeRejection(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, info)

	case sub == "" && r.Method == http.MethodDelete:
		// Destructive; local operators only, like the admin surface upstream.
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		by := strings.TrimSpace(r.URL.Query().Get("by"))
		if err := a.reg.DeleteRoom(r.Context(), code, by); err != nil {
			writeRejection(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})

	case sub == "verses" && r.Method == http.MethodGet:
		verses, err := a.reg.Verses(r.Context(), code)
		if err != nil {
			writeRejection(rw, err)
			return
		}
		out := make([]protocol.VerseRecord, 0, len(verses))
		for _, v := range verses {
			out = append(out, room.VerseRecord(v))
		}
		writeJSON(rw, http.StatusOK, out)

	case sub == "reset" && r.Method == http.MethodPost:
		var body struct {
			Participant string `json:"participant"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if err := a.reg.ResetRoom(r.Context(), code, strings.TrimSpace(body.Participant)); err != nil {
			writeRejection(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})

	default:
		rw.WriteHeader(http.StatusNotFound)
	}
}

func writeRejection(rw http.ResponseWriter, err error) {
	if rej, ok := err.(*protocol.Rejection); ok {
		status := http.StatusUnprocessableEntity
		switch rej.Code {
		case protocol.ErrRoomNotFound:
			status = http.StatusNotFound
		case protocol.ErrInternal:
			status = http.StatusInternalServerError
		}
		writeJSON(rw, status, rej)
		return
	}
	writeJSON(rw, http.StatusInternalServerError, protocol.Reject(protocol.ErrInternal, "internal error"))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func httpError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.Rejection{Code: code, Message: msg})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
