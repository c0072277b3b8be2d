package ws

import (
	"github.com/hailam/kungfuchess/internal/game"
)

// Server message shapes for game and replay sockets. Lobby messages are
// built inline in the lobby handler because their payloads come from
// the serializer helpers there.

type joinedMessage struct {
	Type         string `json:"type"`
	PlayerNumber int    `json:"player_number"`
	TickRateHz   int    `json:"tick_rate_hz"`
}

type pieceSnapshot struct {
	ID         string         `json:"id"`
	Type       game.PieceType `json:"type"`
	Player     int            `json:"player"`
	Row        float64        `json:"row"`
	Col        float64        `json:"col"`
	Captured   bool           `json:"captured"`
	Moving     bool           `json:"moving"`
	OnCooldown bool           `json:"on_cooldown"`
	Moved      bool           `json:"moved"`
}

type moveSnapshot struct {
	PieceID   string           `json:"piece_id"`
	Path      []game.PathPoint `json:"path"`
	StartTick int              `json:"start_tick"`
	Progress  float64          `json:"progress"`
}

type cooldownSnapshot struct {
	PieceID        string `json:"piece_id"`
	RemainingTicks int    `json:"remaining_ticks"`
}

type stateMessage struct {
	Type          string             `json:"type"`
	Tick          int                `json:"tick"`
	Pieces        []pieceSnapshot    `json:"pieces"`
	ActiveMoves   []moveSnapshot     `json:"active_moves"`
	Cooldowns     []cooldownSnapshot `json:"cooldowns"`
	Events        []map[string]any   `json:"events"`
	TimeSinceTick float64            `json:"time_since_tick"`
}

type gameStartedMessage struct {
	Type string `json:"type"`
	Tick int    `json:"tick"`
}

type gameOverMessage struct {
	Type   string `json:"type"`
	Winner int    `json:"winner"`
	Reason string `json:"reason"`
}

type moveRejectedMessage struct {
	Type    string `json:"type"`
	PieceID string `json:"piece_id"`
	Reason  string `json:"reason"`
}

type pongMessage struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type legalMovesMessage struct {
	Type  string `json:"type"`
	Moves any    `json:"moves"`
}

// buildStateMessage renders a game state as the wire snapshot shared by
// live games and replay playback. Captured pieces are omitted except on
// the tick they fell, which the capture events identify.
func buildStateMessage(state *game.GameState, events []game.Event, timeSinceTick float64) stateMessage {
	config := state.Config()

	justCaptured := make(map[string]bool)
	for _, e := range events {
		if e.Type == game.EventCapture {
			if id, ok := e.Data["captured_piece_id"].(string); ok {
				justCaptured[id] = true
			}
		}
	}

	pieces := make([]pieceSnapshot, 0, len(state.Board.Pieces))
	for _, piece := range state.Board.Pieces {
		if piece.Captured && !justCaptured[piece.ID] {
			continue
		}
		row, col := game.InterpolatedPosition(piece, state.ActiveMoves, state.CurrentTick, config.TicksPerSquare)
		pieces = append(pieces, pieceSnapshot{
			ID:         piece.ID,
			Type:       piece.Type,
			Player:     piece.Player,
			Row:        row,
			Col:        col,
			Captured:   piece.Captured,
			Moving:     game.IsPieceMoving(piece.ID, state.ActiveMoves),
			OnCooldown: game.IsPieceOnCooldown(piece.ID, state.Cooldowns, state.CurrentTick),
			Moved:      piece.Moved,
		})
	}

	moves := make([]moveSnapshot, 0, len(state.ActiveMoves))
	for _, m := range state.ActiveMoves {
		totalTicks := m.NumSquares() * config.TicksPerSquare
		elapsed := state.CurrentTick - m.StartTick
		if elapsed < 0 {
			elapsed = 0
		}
		progress := 1.0
		if totalTicks > 0 {
			progress = float64(elapsed) / float64(totalTicks)
			if progress > 1.0 {
				progress = 1.0
			}
		}
		moves = append(moves, moveSnapshot{
			PieceID:   m.PieceID,
			Path:      m.Path,
			StartTick: m.StartTick,
			Progress:  progress,
		})
	}

	cooldowns := make([]cooldownSnapshot, 0, len(state.Cooldowns))
	for _, cd := range state.Cooldowns {
		remaining := cd.StartTick + cd.Duration - state.CurrentTick
		if remaining < 0 {
			remaining = 0
		}
		cooldowns = append(cooldowns, cooldownSnapshot{
			PieceID:        cd.PieceID,
			RemainingTicks: remaining,
		})
	}

	eventData := make([]map[string]any, 0, len(events))
	for _, e := range events {
		flat := map[string]any{
			"type": string(e.Type),
			"tick": e.Tick,
		}
		for k, v := range e.Data {
			flat[k] = v
		}
		eventData = append(eventData, flat)
	}

	return stateMessage{
		Type:          "state",
		Tick:          state.CurrentTick,
		Pieces:        pieces,
		ActiveMoves:   moves,
		Cooldowns:     cooldowns,
		Events:        eventData,
		TimeSinceTick: timeSinceTick,
	}
}

// gameOverReason maps a finished state to its wire reason.
func gameOverReason(state *game.GameState) string {
	switch {
	case state.WinReason == game.ReasonResignation:
		return "resignation"
	case state.Winner == 0:
		return "draw_timeout"
	default:
		return "king_captured"
	}
}
