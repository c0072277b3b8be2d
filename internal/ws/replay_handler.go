package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/hailam/kungfuchess/internal/game"
)

// ReplayHandler serves /ws/replay/{id} sockets: one playback session
// per connection with play, pause, and seek controls.
type ReplayHandler struct {
	replays ReplayStore
}

// NewReplayHandler creates the replay websocket handler.
func NewReplayHandler(replays ReplayStore) *ReplayHandler {
	return &ReplayHandler{replays: replays}
}

// ServeWS upgrades and runs a replay socket.
func (h *ReplayHandler) ServeWS(w http.ResponseWriter, r *http.Request, gameID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("replay %s: upgrade failed: %v", gameID, err)
		return
	}
	conn := NewConn(ws)

	if h.replays == nil {
		sendErrorAndClose(conn, "Replay storage unavailable")
		return
	}
	replay, err := h.replays.GetReplay(gameID)
	if err != nil {
		log.Warningf("failed to load replay %s: %v", gameID, err)
		sendErrorAndClose(conn, "Failed to load replay")
		return
	}
	if replay == nil {
		log.Warningf("replay %s not found", gameID)
		sendErrorAndClose(conn, "Replay not found")
		return
	}
	log.Infof("loaded replay %s: %d moves, %d ticks", gameID, len(replay.Moves), replay.TotalTicks)

	session := newReplaySession(replay, conn, gameID)
	if err := session.start(); err != nil {
		session.close()
		return
	}
	defer session.close()

	for {
		msg, err := conn.ReadJSON()
		if err != nil {
			if err == errInvalidJSON {
				_ = conn.SendJSON(errorMessage{Type: "error", Message: "Invalid JSON"})
				continue
			}
			log.Infof("replay client disconnected: %s", gameID)
			return
		}
		session.handleMessage(msg)
	}
}

func sendErrorAndClose(conn *Conn, message string) {
	_ = conn.SendJSON(errorMessage{Type: "error", Message: message})
	conn.Close()
}

// replaySession drives playback for one client. Sequential frames
// advance the engine cache one tick at a time; seeks rebuild. During
// playback a frame is only sent when the move or cooldown sets changed,
// which keeps idle stretches quiet on the wire.
type replaySession struct {
	replay *game.Replay
	engine *game.ReplayEngine
	conn   *Conn
	gameID string

	mu          sync.Mutex
	currentTick int
	playing     bool
	closed      bool
	stop        chan struct{} // closes to cancel the playback goroutine

	prevMoveIDs     map[string]bool
	prevCooldownIDs map[string]bool
	firstFrame      bool
}

func newReplaySession(replay *game.Replay, conn *Conn, gameID string) *replaySession {
	return &replaySession{
		replay:     replay,
		engine:     game.NewReplayEngine(replay),
		conn:       conn,
		gameID:     gameID,
		firstFrame: true,
	}
}

// start sends the replay metadata and the initial frame.
func (s *replaySession) start() error {
	if err := s.sendReplayInfo(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendFrameLocked(0, 0)
}

func (s *replaySession) handleMessage(msg map[string]any) {
	msgType, _ := msg["type"].(string)
	switch msgType {
	case "play":
		s.play()
	case "pause":
		s.pause()
	case "seek":
		tick, _ := msg["tick"].(float64)
		s.seek(int(tick))
	default:
		log.Warningf("replay %s: unknown message type %q", s.gameID, msgType)
	}
}

func (s *replaySession) play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing || s.closed || s.currentTick >= s.replay.TotalTicks {
		return
	}
	s.playing = true
	s.stop = make(chan struct{})
	s.sendPlaybackStatusLocked()
	go s.playbackLoop(s.stop)
	log.Infof("replay %s: playback started at tick %d", s.gameID, s.currentTick)
}

func (s *replaySession) pause() {
	s.mu.Lock()
	wasPlaying := s.playing
	s.playing = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if wasPlaying && !s.closed {
		s.sendPlaybackStatusLocked()
		log.Infof("replay %s: playback paused at tick %d", s.gameID, s.currentTick)
	}
	s.mu.Unlock()
}

func (s *replaySession) seek(tick int) {
	s.pause()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if tick < 0 {
		tick = 0
	}
	if tick > s.replay.TotalTicks {
		tick = s.replay.TotalTicks
	}
	s.currentTick = tick

	// Force the next playback frame out even if nothing changed.
	s.prevMoveIDs = nil
	s.prevCooldownIDs = nil
	s.firstFrame = true

	_ = s.sendFrameLocked(tick, 0)
	s.sendPlaybackStatusLocked()
	log.Infof("replay %s: seeked to tick %d", s.gameID, tick)
}

func (s *replaySession) close() {
	s.mu.Lock()
	s.closed = true
	s.playing = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	log.Infof("replay %s: session closed", s.gameID)
}

func (s *replaySession) playbackLoop(stop chan struct{}) {
	hz := s.replay.TickRateHz
	if hz <= 0 {
		hz = game.DefaultTickRateHz
	}
	interval := time.Second / time.Duration(hz)
	intervalMs := float64(interval) / float64(time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		frameStart := time.Now()

		s.mu.Lock()
		if !s.playing || s.closed {
			s.mu.Unlock()
			return
		}
		if s.currentTick >= s.replay.TotalTicks {
			s.playing = false
			s.mu.Unlock()
			return
		}

		s.currentTick++
		if err := s.sendFrameIfChangedLocked(s.currentTick, frameStart, intervalMs); err != nil {
			s.closed = true
			s.playing = false
			s.mu.Unlock()
			return
		}

		if s.currentTick >= s.replay.TotalTicks {
			s.playing = false
			s.sendGameOverLocked()
			s.sendPlaybackStatusLocked()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *replaySession) sendFrameLocked(tick int, timeSinceTick float64) error {
	state := s.engine.StateAtTick(tick)
	return s.conn.SendJSON(buildStateMessage(state, nil, timeSinceTick))
}

func (s *replaySession) sendFrameIfChangedLocked(tick int, frameStart time.Time, intervalMs float64) error {
	state := s.engine.StateAtTick(tick)

	moveIDs := make(map[string]bool, len(state.ActiveMoves))
	for _, m := range state.ActiveMoves {
		moveIDs[m.PieceID] = true
	}
	cooldownIDs := make(map[string]bool, len(state.Cooldowns))
	for _, c := range state.Cooldowns {
		cooldownIDs[c.PieceID] = true
	}

	changed := s.firstFrame || !sameIDSet(s.prevMoveIDs, moveIDs) || !sameIDSet(s.prevCooldownIDs, cooldownIDs)
	s.prevMoveIDs = moveIDs
	s.prevCooldownIDs = cooldownIDs
	s.firstFrame = false

	if !changed {
		return nil
	}
	elapsed := float64(time.Since(frameStart)) / float64(time.Millisecond)
	if elapsed > intervalMs {
		elapsed = intervalMs
	}
	return s.conn.SendJSON(buildStateMessage(state, nil, elapsed))
}

func (s *replaySession) sendReplayInfo() error {
	players := make(map[int]string, len(s.replay.Players))
	for num, id := range s.replay.Players {
		players[num] = id
	}
	return s.conn.SendJSON(map[string]any{
		"type":         "replay_info",
		"game_id":      s.gameID,
		"speed":        s.replay.Speed.String(),
		"board_type":   s.replay.BoardType.String(),
		"players":      players,
		"total_ticks":  s.replay.TotalTicks,
		"winner":       s.replay.Winner,
		"win_reason":   s.replay.WinReason,
		"tick_rate_hz": s.replay.TickRateHz,
	})
}

func (s *replaySession) sendPlaybackStatusLocked() {
	_ = s.conn.SendJSON(map[string]any{
		"type":         "playback_status",
		"is_playing":   s.playing,
		"current_tick": s.currentTick,
		"total_ticks":  s.replay.TotalTicks,
	})
}

func (s *replaySession) sendGameOverLocked() {
	_ = s.conn.SendJSON(map[string]any{
		"type":   "game_over",
		"winner": s.replay.Winner,
		"reason": s.replay.WinReason,
	})
}

func sameIDSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
