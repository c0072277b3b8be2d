package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hailam/kungfuchess/internal/game"
	"github.com/hailam/kungfuchess/internal/session"
)

// Application close codes for rejected game sockets.
const (
	closeGameNotFound = 4004
	closeInvalidKey   = 4001
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ReplayStore persists finished games for later playback.
type ReplayStore interface {
	SaveReplay(gameID string, r *game.Replay) error
	GetReplay(gameID string) (*game.Replay, error)
}

// GameEndNotifier is told when a game finishes so its lobby (if any)
// can move to the post-game state.
type GameEndNotifier interface {
	NotifyGameEnded(gameID string, winner int, reason string)
}

// GameHandler serves /ws/game/{id} sockets and runs the tick loop for
// each live game.
type GameHandler struct {
	sessions *session.Manager
	hub      *Hub
	replays  ReplayStore
	notifier GameEndNotifier

	loopMu sync.Mutex // serializes loop startup per process
}

// NewGameHandler creates the live-game websocket handler. replays and
// notifier may be nil (no persistence, no lobby integration).
func NewGameHandler(sessions *session.Manager, hub *Hub, replays ReplayStore, notifier GameEndNotifier) *GameHandler {
	return &GameHandler{
		sessions: sessions,
		hub:      hub,
		replays:  replays,
		notifier: notifier,
	}
}

// ServeWS upgrades and runs a game socket. The player key arrives in
// the "key" query parameter; connections without one are spectators.
func (h *GameHandler) ServeWS(w http.ResponseWriter, r *http.Request, gameID string) {
	playerKey := r.URL.Query().Get("key")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("game %s: upgrade failed: %v", gameID, err)
		return
	}
	conn := NewConn(ws)

	g := h.sessions.Get(gameID)
	if g == nil {
		log.Warningf("game socket rejected: game %s not found", gameID)
		conn.CloseWithCode(closeGameNotFound, "Game not found")
		return
	}

	player := 0
	if playerKey != "" {
		player = h.sessions.ValidatePlayerKey(gameID, playerKey)
		if player == 0 {
			log.Warningf("game socket rejected: invalid player key for game %s", gameID)
			conn.CloseWithCode(closeInvalidKey, "Invalid player key")
			return
		}
	}

	log.Infof("client connected to game %s as player %d", gameID, player)
	h.hub.Attach(gameID, conn, player)
	defer func() {
		h.hub.Detach(gameID, conn)
		conn.Close()
	}()

	g.Mu.Lock()
	hz := g.State.TickRateHz
	joined := joinedMessage{Type: "joined", PlayerNumber: player, TickRateHz: hz}
	initial := buildStateMessage(g.State, nil, 0)
	g.Mu.Unlock()

	if err := conn.SendJSON(joined); err != nil {
		return
	}
	if err := conn.SendJSON(initial); err != nil {
		return
	}

	h.startLoopIfNeeded(gameID)

	for {
		msg, err := conn.ReadJSON()
		if err != nil {
			if err == errInvalidJSON {
				_ = conn.SendJSON(errorMessage{Type: "error", Message: "Invalid JSON"})
				continue
			}
			break
		}
		h.handleMessage(conn, gameID, player, playerKey, msg)
	}
}

func (h *GameHandler) handleMessage(conn *Conn, gameID string, player int, playerKey string, msg map[string]any) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "ping":
		_ = conn.SendJSON(pongMessage{Type: "pong"})

	case "move":
		pieceID, _ := msg["piece_id"].(string)
		toRow, rowOK := msg["to_row"].(float64)
		toCol, colOK := msg["to_col"].(float64)
		if pieceID == "" || !rowOK || !colOK {
			_ = conn.SendJSON(errorMessage{Type: "error", Message: "Malformed move message"})
			return
		}
		if player == 0 {
			_ = conn.SendJSON(moveRejectedMessage{Type: "move_rejected", PieceID: pieceID, Reason: "spectators_cannot_move"})
			return
		}
		result := h.sessions.MakeMove(gameID, playerKey, pieceID, int(toRow), int(toCol))
		if !result.Success {
			reason := result.Error
			if reason == "" {
				reason = "invalid_move"
			}
			_ = conn.SendJSON(moveRejectedMessage{Type: "move_rejected", PieceID: pieceID, Reason: reason})
		}

	case "ready":
		if player == 0 {
			_ = conn.SendJSON(errorMessage{Type: "error", Message: "Spectators cannot mark ready"})
			return
		}
		_, started := h.sessions.MarkReady(gameID, playerKey)
		if started {
			h.hub.Broadcast(gameID, gameStartedMessage{Type: "game_started", Tick: 0})
			h.startLoopIfNeeded(gameID)
		}

	case "resign":
		if player == 0 {
			_ = conn.SendJSON(errorMessage{Type: "error", Message: "Spectators cannot resign"})
			return
		}
		// The running tick loop observes the finished state and does
		// the game-over broadcast; resigning a waiting game is a no-op.
		h.sessions.Resign(gameID, playerKey)

	case "legal_moves":
		if player == 0 {
			_ = conn.SendJSON(errorMessage{Type: "error", Message: "Spectators have no legal moves"})
			return
		}
		moves := h.sessions.LegalMoves(gameID, playerKey)
		if moves == nil {
			moves = []session.LegalMoveGroup{}
		}
		_ = conn.SendJSON(legalMovesMessage{Type: "legal_moves", Moves: moves})

	default:
		_ = conn.SendJSON(errorMessage{Type: "error", Message: "Unknown message type"})
	}
}

// startLoopIfNeeded starts the per-game tick loop exactly once while
// the game is playing. The loop stops itself when the game finishes or
// every client leaves; a later reconnect may start a fresh one.
func (h *GameHandler) startLoopIfNeeded(gameID string) {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()

	g := h.sessions.Get(gameID)
	if g == nil {
		return
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	if !g.State.IsPlaying() || g.LoopRunning {
		return
	}
	g.LoopRunning = true
	go h.runLoop(gameID, g)
}

func (h *GameHandler) runLoop(gameID string, g *session.ManagedGame) {
	defer func() {
		g.Mu.Lock()
		g.LoopRunning = false
		g.Mu.Unlock()
	}()

	g.Mu.Lock()
	hz := g.State.TickRateHz
	g.Mu.Unlock()
	interval := time.Second / time.Duration(hz)

	log.Infof("starting tick loop for game %s at %d Hz", gameID, hz)

	for {
		start := time.Now()

		g.Mu.Lock()
		playing := g.State.IsPlaying()
		g.Mu.Unlock()
		if !playing {
			log.Infof("game %s is no longer playing, stopping loop", gameID)
			return
		}
		if !h.hub.HasConnections(gameID) {
			log.Infof("no connections for game %s, stopping loop", gameID)
			return
		}

		state, events := h.sessions.Tick(gameID)
		if state == nil {
			log.Infof("game %s gone, stopping loop", gameID)
			return
		}

		g.Mu.Lock()
		msg := buildStateMessage(state, events, float64(time.Since(start))/float64(time.Millisecond))
		finished := state.IsFinished()
		winner := state.Winner
		reason := gameOverReason(state)
		g.Mu.Unlock()

		h.hub.Broadcast(gameID, msg)

		if finished {
			if winner < 0 {
				winner = 0
			}
			h.hub.Broadcast(gameID, gameOverMessage{Type: "game_over", Winner: winner, Reason: reason})
			log.Infof("game %s finished, winner: %d (%s)", gameID, winner, reason)
			h.saveReplay(gameID)
			if h.notifier != nil {
				h.notifier.NotifyGameEnded(gameID, winner, reason)
			}
			return
		}

		if elapsed := time.Since(start); elapsed < interval {
			time.Sleep(interval - elapsed)
		}
	}
}

func (h *GameHandler) saveReplay(gameID string) {
	if h.replays == nil {
		return
	}
	replay := h.sessions.Replay(gameID)
	if replay == nil {
		log.Warningf("could not build replay for game %s", gameID)
		return
	}
	if err := h.replays.SaveReplay(gameID, replay); err != nil {
		log.Errorf("failed to save replay for game %s: %v", gameID, err)
		return
	}
	log.Infof("saved replay for game %s (%d moves)", gameID, len(replay.Moves))
}
