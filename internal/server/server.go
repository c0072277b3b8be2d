// Package server wires the websocket handlers, REST endpoints, and
// background sweeps into one HTTP server with graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/kungfuchess/internal/config"
	"github.com/hailam/kungfuchess/internal/game"
	"github.com/hailam/kungfuchess/internal/lobby"
	"github.com/hailam/kungfuchess/internal/logging"
	"github.com/hailam/kungfuchess/internal/session"
	"github.com/hailam/kungfuchess/internal/ws"
)

var log = logging.GetLog("server")

// Server is the running service: managers, handlers, and the HTTP
// listener.
type Server struct {
	cfg      config.Config
	sessions *session.Manager
	lobbies  *lobby.Manager
	replays  ws.ReplayStore

	gameHandler   *ws.GameHandler
	lobbyHandler  *ws.LobbyHandler
	replayHandler *ws.ReplayHandler

	http *http.Server
}

// New assembles a server from its parts. store may be nil to run
// without persistence.
func New(cfg config.Config, sessions *session.Manager, lobbies *lobby.Manager, store ws.ReplayStore) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		lobbies:  lobbies,
		replays:  store,
	}

	gameHub := ws.NewHub()
	lobbyHub := ws.NewHub()
	s.lobbyHandler = ws.NewLobbyHandler(lobbies, sessions, lobbyHub)
	s.gameHandler = ws.NewGameHandler(sessions, gameHub, store, s.lobbyHandler)
	s.replayHandler = ws.NewReplayHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/game/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.gameHandler.ServeWS(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /ws/lobby/{code}", func(w http.ResponseWriter, r *http.Request) {
		s.lobbyHandler.ServeWS(w, r, r.PathValue("code"))
	})
	mux.HandleFunc("GET /ws/replay/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.replayHandler.ServeWS(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("POST /api/lobbies", s.handleCreateLobby)
	mux.HandleFunc("POST /api/lobbies/{code}/join", s.handleJoinLobby)
	mux.HandleFunc("GET /api/lobbies", s.handleListLobbies)
	mux.HandleFunc("GET /api/replays/{id}", s.handleGetReplay)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is canceled or SIGINT/SIGTERM arrives,
// then shuts down gracefully. The background cleanup sweep runs for the
// server's lifetime.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("listening on %s", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.lobbies.CleanupStaleLobbies(s.cfg.LobbyWaitingTTL(), s.cfg.LobbyFinishedTTL())
				s.sessions.CleanupStaleGames(s.cfg.GameTTL())
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// handleCreateGame starts a quick-play game against bots.
//
// Request: {"speed": "standard", "boardType": "standard",
// "opponent": "bot:dummy"}.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed     string `json:"speed"`
		BoardType string `json:"boardType"`
		Opponent  string `json:"opponent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}

	speed := game.SpeedStandard
	if req.Speed != "" {
		parsed, err := game.ParseSpeed(req.Speed)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_speed", err.Error())
			return
		}
		speed = parsed
	}
	boardType := game.StandardBoard
	if req.BoardType != "" {
		parsed, err := game.ParseBoardType(req.BoardType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_board", err.Error())
			return
		}
		boardType = parsed
	}
	opponent := req.Opponent
	if opponent == "" {
		opponent = "bot:dummy"
	}

	gameID, playerKey, player, err := s.sessions.CreateGame(speed, boardType, opponent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"gameId":       gameID,
		"playerKey":    playerKey,
		"playerNumber": player,
	})
}

// handleCreateLobby creates a lobby with the caller as host.
func (s *Server) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		PlayerID string `json:"playerId"`
		AddAI    bool   `json:"addAi"`
		AIType   string `json:"aiType"`
		Settings *struct {
			IsPublic    bool   `json:"isPublic"`
			Speed       string `json:"speed"`
			PlayerCount int    `json:"playerCount"`
			IsRanked    bool   `json:"isRanked"`
		} `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing_username", "Username is required")
		return
	}

	var settings *lobby.Settings
	if req.Settings != nil {
		speed := game.SpeedStandard
		if req.Settings.Speed != "" {
			parsed, err := game.ParseSpeed(req.Settings.Speed)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_speed", err.Error())
				return
			}
			speed = parsed
		}
		count := req.Settings.PlayerCount
		if count == 0 {
			count = 2
		}
		settings = &lobby.Settings{
			IsPublic:    req.Settings.IsPublic,
			Speed:       speed,
			PlayerCount: count,
			IsRanked:    req.Settings.IsRanked,
		}
	}

	l, key, err := s.lobbies.CreateLobby(req.UserID, req.Username, settings, req.AddAI, req.AIType, req.PlayerID)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"lobby":     ws.SerializeLobby(l),
		"playerKey": key,
	})
}

// handleJoinLobby joins an existing lobby by code.
func (s *Server) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var req struct {
		UserID        string `json:"userId"`
		Username      string `json:"username"`
		PlayerID      string `json:"playerId"`
		PreferredSlot int    `json:"preferredSlot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing_username", "Username is required")
		return
	}

	l, key, slot, err := s.lobbies.JoinLobby(code, req.UserID, req.Username, req.PlayerID, req.PreferredSlot)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lobby":     ws.SerializeLobby(l),
		"playerKey": key,
		"slot":      slot,
	})
}

// handleListLobbies lists public waiting lobbies. Optional query
// filters: speed, playerCount.
func (s *Server) handleListLobbies(w http.ResponseWriter, r *http.Request) {
	filter := lobby.PublicLobbyFilter{Speed: r.URL.Query().Get("speed")}
	if pc := r.URL.Query().Get("playerCount"); pc != "" {
		switch pc {
		case "2":
			filter.PlayerCount = 2
		case "4":
			filter.PlayerCount = 4
		default:
			writeError(w, http.StatusBadRequest, "invalid_player_count", "playerCount must be 2 or 4")
			return
		}
	}

	lobbies := s.lobbies.GetPublicLobbies(filter)
	out := make([]any, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, ws.SerializeLobby(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobbies": out})
}

// handleGetReplay returns a stored replay document.
func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	if s.replays == nil {
		writeError(w, http.StatusNotFound, "not_found", "Replay storage unavailable")
		return
	}
	gameID := r.PathValue("id")
	replay, err := s.replays.GetReplay(gameID)
	if err != nil {
		log.Errorf("load replay %s: %v", gameID, err)
		writeError(w, http.StatusInternalServerError, "storage_error", "Failed to load replay")
		return
	}
	if replay == nil {
		writeError(w, http.StatusNotFound, "not_found", "Replay not found")
		return
	}
	writeJSON(w, http.StatusOK, replay)
}

func writeLobbyError(w http.ResponseWriter, err error) {
	lerr, ok := err.(*lobby.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	status := http.StatusBadRequest
	switch lerr.Code {
	case "not_found":
		status = http.StatusNotFound
	case "game_in_progress", "lobby_full", "invalid_state":
		status = http.StatusConflict
	case "invalid_key", "not_host":
		status = http.StatusForbidden
	}
	writeError(w, status, lerr.Code, lerr.Message)
}
