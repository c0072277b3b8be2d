package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hailam/kungfuchess/internal/logging"
)

var replayLog = logging.GetLog("replay")

// ReplayVersion is the current replay document version.
const ReplayVersion = 2

// Replay is the persistent record of a finished game: the starting
// conditions plus every move intent. Replaying the intents through the
// engine at the recorded tick rate reproduces the game exactly, so no
// per-tick state needs storing.
type Replay struct {
	Version    int            `json:"version"`
	Speed      Speed          `json:"speed"`
	BoardType  BoardType      `json:"board_type"`
	Players    map[int]string `json:"players"`
	Moves      []ReplayMove   `json:"moves"`
	TotalTicks int            `json:"total_ticks"`
	// Winner is nil for legacy records that never stored a result;
	// 0 means draw.
	Winner     *int       `json:"winner"`
	WinReason  string     `json:"win_reason,omitempty"`
	TickRateHz int        `json:"tick_rate_hz"`
	CreatedAt  *time.Time `json:"created_at"`
}

// ReplayFromState builds a replay document from a game state. Intended
// for finished games, but tolerates in-progress ones (no winner yet).
func ReplayFromState(state *GameState) *Replay {
	r := &Replay{
		Version:    ReplayVersion,
		Speed:      state.Speed,
		BoardType:  state.Board.Type,
		Players:    make(map[int]string, len(state.Players)),
		Moves:      append([]ReplayMove(nil), state.ReplayMoves...),
		TotalTicks: state.CurrentTick,
		TickRateHz: state.TickRateHz,
	}
	for k, v := range state.Players {
		r.Players[k] = v
	}
	if state.Winner != NoWinner {
		winner := state.Winner
		r.Winner = &winner
		r.WinReason = string(state.WinReason)
	}
	if !state.FinishedAt.IsZero() {
		created := state.FinishedAt
		r.CreatedAt = &created
	}
	return r
}

// replayV1 is the legacy export format: camelCase move keys, "ticks"
// for the total, standard board only, and no recorded result.
type replayV1 struct {
	Speed   string            `json:"speed"`
	Players map[string]string `json:"players"`
	Moves   []struct {
		PieceID string `json:"pieceId"`
		Player  int    `json:"player"`
		Row     int    `json:"row"`
		Col     int    `json:"col"`
		Tick    int    `json:"tick"`
	} `json:"moves"`
	Ticks int `json:"ticks"`
}

// DecodeReplay parses a replay document, upgrading legacy version-1
// records to the current format on the fly. Writing v1 is not
// supported.
func DecodeReplay(data []byte) (*Replay, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}

	if probe.Version < 2 {
		return decodeReplayV1(data)
	}

	var r Replay
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}
	if r.TickRateHz <= 0 {
		r.TickRateHz = DefaultTickRateHz
	}
	return &r, nil
}

func decodeReplayV1(data []byte) (*Replay, error) {
	var v1 replayV1
	if err := json.Unmarshal(data, &v1); err != nil {
		return nil, fmt.Errorf("decode v1 replay: %w", err)
	}

	speed := SpeedStandard
	if v1.Speed != "" {
		parsed, err := ParseSpeed(v1.Speed)
		if err != nil {
			return nil, fmt.Errorf("decode v1 replay: %w", err)
		}
		speed = parsed
	}

	players := make(map[int]string, len(v1.Players))
	for k, v := range v1.Players {
		var num int
		if _, err := fmt.Sscanf(k, "%d", &num); err != nil {
			return nil, fmt.Errorf("decode v1 replay: bad player key %q", k)
		}
		players[num] = v
	}

	moves := make([]ReplayMove, 0, len(v1.Moves))
	for _, m := range v1.Moves {
		moves = append(moves, ReplayMove{
			Tick:    m.Tick,
			PieceID: m.PieceID,
			ToRow:   m.Row,
			ToCol:   m.Col,
			Player:  m.Player,
		})
	}

	return &Replay{
		Version:    ReplayVersion,
		Speed:      speed,
		BoardType:  StandardBoard,
		Players:    players,
		Moves:      moves,
		TotalTicks: v1.Ticks,
		TickRateHz: DefaultTickRateHz,
	}, nil
}

// Encode serializes the replay document as JSON.
func (r *Replay) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// MovesAtTick returns the moves recorded at exactly the given tick.
func (r *Replay) MovesAtTick(tick int) []ReplayMove {
	var out []ReplayMove
	for _, m := range r.Moves {
		if m.Tick == tick {
			out = append(out, m)
		}
	}
	return out
}

// ReplayEngine materializes game states from a replay.
//
// It keeps the last computed (tick, state) pair so that driving the
// playback forward one tick at a time is O(1) per tick; any other
// target rebuilds from the initial position.
type ReplayEngine struct {
	replay      *Replay
	movesByTick map[int][]ReplayMove

	cachedState *GameState
	cachedTick  int
}

// NewReplayEngine creates a playback engine for a replay.
func NewReplayEngine(r *Replay) *ReplayEngine {
	byTick := make(map[int][]ReplayMove)
	for _, m := range r.Moves {
		byTick[m.Tick] = append(byTick[m.Tick], m)
	}
	return &ReplayEngine{
		replay:      r,
		movesByTick: byTick,
		cachedTick:  -1,
	}
}

// Replay returns the underlying replay document.
func (e *ReplayEngine) Replay() *Replay {
	return e.replay
}

// TotalTicks returns the recorded game length.
func (e *ReplayEngine) TotalTicks() int {
	return e.replay.TotalTicks
}

// InitialState returns the state at tick zero.
func (e *ReplayEngine) InitialState() *GameState {
	return e.StateAtTick(0)
}

// StateAtTick computes the game state at the target tick. Sequential
// targets advance the cached state one tick; anything else replays from
// the start. The returned state is the cache itself, so callers must
// not mutate it.
func (e *ReplayEngine) StateAtTick(targetTick int) *GameState {
	if targetTick < 0 {
		targetTick = 0
	}

	if e.cachedState == nil || targetTick < e.cachedTick {
		e.cachedState = e.freshState()
		e.cachedTick = 0
	}

	for e.cachedTick < targetTick {
		e.advance()
	}
	return e.cachedState
}

// advance drives the cached state one tick forward, re-validating and
// applying the moves recorded at the current tick. Moves that fail
// validation are skipped; that indicates a corrupt record or an engine
// version mismatch.
func (e *ReplayEngine) advance() {
	state := e.cachedState
	for _, rm := range e.movesByTick[state.CurrentTick] {
		move := ValidateMove(state, rm.Player, rm.PieceID, rm.ToRow, rm.ToCol)
		if move == nil {
			replayLog.Warningf("replay move skipped at tick %d: player=%d piece=%s to=(%d,%d)",
				state.CurrentTick, rm.Player, rm.PieceID, rm.ToRow, rm.ToCol)
			continue
		}
		ApplyMove(state, move)
	}
	Tick(state)
	e.cachedTick++
}

// freshState builds the initial playing state for the replay.
func (e *ReplayEngine) freshState() *GameState {
	state, err := NewGame(e.replay.Speed, e.replay.BoardType, e.replay.Players, "", e.replay.TickRateHz)
	if err != nil {
		// Replays always carry a valid player set; a decode that got
		// this far cannot produce one the engine rejects.
		panic(err)
	}
	state.Status = StatusPlaying
	return state
}
