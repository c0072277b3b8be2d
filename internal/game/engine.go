package game

import (
	"fmt"
	"time"
)

// EventType classifies an engine event.
type EventType string

// Event type constants.
const (
	EventMoveStarted     EventType = "move_started"
	EventMoveCompleted   EventType = "move_completed"
	EventCapture         EventType = "capture"
	EventPromotion       EventType = "promotion"
	EventCooldownStarted EventType = "cooldown_started"
	EventCooldownEnded   EventType = "cooldown_ended"
	EventGameStarted     EventType = "game_started"
	EventGameOver        EventType = "game_over"
	EventDraw            EventType = "draw"
)

// Event is something that happened during an engine operation. Events
// are forwarded verbatim to connected clients.
type Event struct {
	Type EventType      `json:"type"`
	Tick int            `json:"tick"`
	Data map[string]any `json:"data"`
}

// NewGame creates a game in the waiting state with the initial layout
// for the board type. A standard board takes exactly 2 players; the
// four-player board takes 2-4. An empty gameID generates one.
func NewGame(speed Speed, boardType BoardType, players map[int]string, gameID string, tickRateHz int) (*GameState, error) {
	var board *Board
	if boardType == StandardBoard {
		if len(players) != 2 {
			return nil, fmt.Errorf("standard board requires exactly 2 players, got %d", len(players))
		}
		board = NewStandardBoard()
	} else {
		if len(players) < 2 || len(players) > 4 {
			return nil, fmt.Errorf("four-player board requires 2-4 players, got %d", len(players))
		}
		board = NewFourPlayerBoard()
	}
	return NewGameFromBoard(speed, board, players, gameID, tickRateHz)
}

// NewGameFromBoard creates a game with a custom board, used by tests and
// scripted scenarios.
func NewGameFromBoard(speed Speed, board *Board, players map[int]string, gameID string, tickRateHz int) (*GameState, error) {
	if gameID == "" {
		gameID = NewGameID()
	}
	if tickRateHz <= 0 {
		tickRateHz = DefaultTickRateHz
	}
	playersCopy := make(map[int]string, len(players))
	for k, v := range players {
		playersCopy[k] = v
	}
	return &GameState{
		GameID:       gameID,
		Board:        board,
		Speed:        speed,
		TickRateHz:   tickRateHz,
		Players:      playersCopy,
		Status:       StatusWaiting,
		Winner:       NoWinner,
		ReadyPlayers: make(map[int]bool),
	}, nil
}

// SetPlayerReady marks a player ready. Bots are always ready. When every
// seat is ready the game flips to playing at tick zero and a
// game_started event is emitted.
func SetPlayerReady(state *GameState, player int) []Event {
	if state.Status != StatusWaiting {
		return nil
	}
	if _, ok := state.Players[player]; !ok {
		return nil
	}

	state.ReadyPlayers[player] = true
	for num, id := range state.Players {
		if IsBotID(id) {
			state.ReadyPlayers[num] = true
		}
	}

	for num := range state.Players {
		if !state.ReadyPlayers[num] {
			return nil
		}
	}
	if len(state.Players) < 2 {
		return nil
	}

	state.Status = StatusPlaying
	state.StartedAt = time.Now().UTC()
	state.CurrentTick = 0
	state.LastMoveTick = 0
	state.LastCaptureTick = 0

	return []Event{{
		Type: EventGameStarted,
		Tick: 0,
		Data: map[string]any{"players": state.Players},
	}}
}

// ValidateMove checks a move intent and returns the computed Move, or
// nil if it is not allowed. The returned move starts on the next tick,
// which absorbs network delay: a client acting on tick N's snapshot gets
// consistent behavior whether its intent lands during tick N or N+1.
func ValidateMove(state *GameState, player int, pieceID string, toRow, toCol int) *Move {
	if state.Status != StatusPlaying {
		return nil
	}

	piece := state.Board.PieceByID(pieceID)
	if piece == nil || piece.Captured {
		return nil
	}
	if piece.Player != player {
		return nil
	}
	if IsPieceMoving(pieceID, state.ActiveMoves) {
		return nil
	}
	if IsPieceOnCooldown(pieceID, state.Cooldowns, state.CurrentTick) {
		return nil
	}

	if castle := CheckCastling(piece, state.Board, toRow, toCol, state.ActiveMoves, state.Cooldowns, state.CurrentTick); castle != nil {
		castle.StartTick = state.CurrentTick + 1
		castle.ExtraMove.StartTick = state.CurrentTick + 1
		return castle
	}

	path := ComputeMovePath(piece, state.Board, toRow, toCol, state.ActiveMoves)
	if path == nil {
		return nil
	}

	return &Move{
		PieceID:   pieceID,
		Path:      path,
		StartTick: state.CurrentTick + 1,
	}
}

// ApplyMove commits a validated move: it joins the active set, is
// recorded for replay (castling records both sub-moves), and
// move_started events are emitted.
func ApplyMove(state *GameState, move *Move) []Event {
	var events []Event

	state.ActiveMoves = append(state.ActiveMoves, move)
	state.LastMoveTick = state.CurrentTick

	if piece := state.Board.PieceByID(move.PieceID); piece != nil {
		end := move.EndPosition()
		state.ReplayMoves = append(state.ReplayMoves, ReplayMove{
			Tick:    state.CurrentTick,
			PieceID: move.PieceID,
			ToRow:   int(end.Row),
			ToCol:   int(end.Col),
			Player:  piece.Player,
		})
	}

	if move.ExtraMove != nil {
		state.ActiveMoves = append(state.ActiveMoves, move.ExtraMove)
		if rook := state.Board.PieceByID(move.ExtraMove.PieceID); rook != nil {
			end := move.ExtraMove.EndPosition()
			state.ReplayMoves = append(state.ReplayMoves, ReplayMove{
				Tick:    state.CurrentTick,
				PieceID: move.ExtraMove.PieceID,
				ToRow:   int(end.Row),
				ToCol:   int(end.Col),
				Player:  rook.Player,
			})
		}
	}

	events = append(events, Event{
		Type: EventMoveStarted,
		Tick: state.CurrentTick,
		Data: map[string]any{"piece_id": move.PieceID, "path": move.Path},
	})
	if move.ExtraMove != nil {
		events = append(events, Event{
			Type: EventMoveStarted,
			Tick: state.CurrentTick,
			Data: map[string]any{"piece_id": move.ExtraMove.PieceID, "path": move.ExtraMove.Path},
		})
	}

	return events
}

// Tick advances the game by one tick:
//
//  1. collision detection and captures
//  2. move completion (snap to destination, start cooldown)
//  3. pawn promotion
//  4. cooldown expiry
//  5. terminal check (win or draw)
func Tick(state *GameState) []Event {
	if state.Status != StatusPlaying {
		return nil
	}

	var events []Event
	state.CurrentTick++
	config := state.Config()

	// 1. Collisions.
	captures := DetectCollisions(state.Board.Pieces, state.ActiveMoves, state.CurrentTick, config.TicksPerSquare)
	for _, capture := range captures {
		captured := state.Board.PieceByID(capture.CapturedPieceID)
		if captured == nil {
			continue
		}
		captured.Captured = true
		state.LastCaptureTick = state.CurrentTick

		// Drop the captured piece's move, and if that move carried a
		// linked extra move (castling), cancel the partner too: a king
		// captured mid-castle takes the rook's slide with it.
		removed := map[string]bool{capture.CapturedPieceID: true}
		if m := findMove(capture.CapturedPieceID, state.ActiveMoves); m != nil && m.ExtraMove != nil {
			removed[m.ExtraMove.PieceID] = true
		}
		state.ActiveMoves = filterMoves(state.ActiveMoves, func(m *Move) bool {
			return !removed[m.PieceID]
		})
		state.Cooldowns = filterCooldowns(state.Cooldowns, func(c Cooldown) bool {
			return c.PieceID != capture.CapturedPieceID
		})

		events = append(events, Event{
			Type: EventCapture,
			Tick: state.CurrentTick,
			Data: map[string]any{
				"capturing_piece_id": capture.CapturingPieceID,
				"captured_piece_id":  capture.CapturedPieceID,
				"position":           []float64{capture.Row, capture.Col},
			},
		})
	}

	// 2. Move completion.
	var completed []*Move
	for _, m := range state.ActiveMoves {
		totalTicks := m.NumSquares() * config.TicksPerSquare
		if state.CurrentTick-m.StartTick >= totalTicks {
			completed = append(completed, m)
		}
	}
	for _, m := range completed {
		piece := state.Board.PieceByID(m.PieceID)
		if piece != nil && !piece.Captured {
			end := m.EndPosition()
			piece.Row = end.Row
			piece.Col = end.Col
			piece.Moved = true

			state.Cooldowns = append(state.Cooldowns, Cooldown{
				PieceID:   piece.ID,
				StartTick: state.CurrentTick,
				Duration:  config.CooldownTicks,
			})

			events = append(events, Event{
				Type: EventMoveCompleted,
				Tick: state.CurrentTick,
				Data: map[string]any{"piece_id": m.PieceID, "position": []float64{end.Row, end.Col}},
			})
			events = append(events, Event{
				Type: EventCooldownStarted,
				Tick: state.CurrentTick,
				Data: map[string]any{"piece_id": piece.ID, "duration": config.CooldownTicks},
			})

			// 3. Promotion.
			if ShouldPromotePawn(piece, state.Board, int(end.Row), int(end.Col)) {
				piece.Type = Queen
				events = append(events, Event{
					Type: EventPromotion,
					Tick: state.CurrentTick,
					Data: map[string]any{"piece_id": piece.ID, "new_type": Queen.Name()},
				})
			}
		}

		moveID := m.PieceID
		state.ActiveMoves = filterMoves(state.ActiveMoves, func(am *Move) bool {
			return am.PieceID != moveID
		})
	}

	// 4. Cooldown expiry.
	var kept []Cooldown
	for _, c := range state.Cooldowns {
		if c.Active(state.CurrentTick) {
			kept = append(kept, c)
			continue
		}
		events = append(events, Event{
			Type: EventCooldownEnded,
			Tick: state.CurrentTick,
			Data: map[string]any{"piece_id": c.PieceID},
		})
	}
	state.Cooldowns = kept

	// 5. Terminal check.
	if winner, done := CheckWinner(state); done {
		reason := ReasonKingCaptured
		if winner == 0 {
			reason = ReasonDraw
		}
		events = append(events, finishGame(state, winner, reason)...)
	}

	return events
}

// finishGame flips the game to finished and emits the terminal event.
func finishGame(state *GameState, winner int, reason WinReason) []Event {
	state.Status = StatusFinished
	state.FinishedAt = time.Now().UTC()
	state.Winner = winner
	state.WinReason = reason

	if winner == 0 {
		return []Event{{Type: EventDraw, Tick: state.CurrentTick, Data: map[string]any{"reason": string(reason)}}}
	}
	return []Event{{
		Type: EventGameOver,
		Tick: state.CurrentTick,
		Data: map[string]any{"winner": winner, "reason": string(reason)},
	}}
}

// Resign forfeits the game for a player. Their king is treated as
// captured; if that decides the game immediately the result is recorded
// as a resignation. On the four-player board the game continues while
// two or more kings remain.
func Resign(state *GameState, player int) []Event {
	if state.Status != StatusPlaying {
		return nil
	}
	if _, ok := state.Players[player]; !ok {
		return nil
	}
	king := state.Board.King(player)
	if king == nil {
		return nil
	}

	king.Captured = true
	removed := map[string]bool{king.ID: true}
	if m := findMove(king.ID, state.ActiveMoves); m != nil && m.ExtraMove != nil {
		removed[m.ExtraMove.PieceID] = true
	}
	state.ActiveMoves = filterMoves(state.ActiveMoves, func(m *Move) bool {
		return !removed[m.PieceID]
	})
	state.Cooldowns = filterCooldowns(state.Cooldowns, func(c Cooldown) bool {
		return c.PieceID != king.ID
	})

	events := []Event{{
		Type: EventCapture,
		Tick: state.CurrentTick,
		Data: map[string]any{
			"capturing_piece_id": "",
			"captured_piece_id":  king.ID,
			"position":           []float64{king.Row, king.Col},
		},
	}}

	if winner, done := CheckWinner(state); done {
		reason := ReasonResignation
		if winner == 0 {
			reason = ReasonDraw
		}
		events = append(events, finishGame(state, winner, reason)...)
	}
	return events
}

// CheckWinner evaluates the terminal conditions. It returns
// (winner, true) when the game is over: the sole player with a living
// king wins; zero living kings is a draw; a long stretch with no moves
// and no captures (after the minimum game length) is a draw. Otherwise
// it returns (0, false).
func CheckWinner(state *GameState) (int, bool) {
	config := state.Config()

	var playersWithKing []int
	for num := range state.Players {
		if state.Board.King(num) != nil {
			playersWithKing = append(playersWithKing, num)
		}
	}

	if len(playersWithKing) == 1 {
		return playersWithKing[0], true
	}
	if len(playersWithKing) == 0 {
		return 0, true
	}

	if state.CurrentTick < config.MinDrawTicks {
		return 0, false
	}
	ticksSinceMove := state.CurrentTick - state.LastMoveTick
	ticksSinceCapture := state.CurrentTick - state.LastCaptureTick
	if ticksSinceMove >= config.DrawNoMoveTicks && ticksSinceCapture >= config.DrawNoCaptureTicks {
		return 0, true
	}

	return 0, false
}

// LegalMove is one destination a piece may move to.
type LegalMove struct {
	PieceID string `json:"piece_id"`
	ToRow   int    `json:"to_row"`
	ToCol   int    `json:"to_col"`
}

// LegalMoves enumerates every legal move for a player by probing all
// board squares for each idle piece. Brute force, but the board is
// small and this only serves AI drivers and hint queries.
func LegalMoves(state *GameState, player int) []LegalMove {
	var out []LegalMove

	for _, piece := range state.Board.PiecesForPlayer(player) {
		if IsPieceMoving(piece.ID, state.ActiveMoves) {
			continue
		}
		if IsPieceOnCooldown(piece.ID, state.Cooldowns, state.CurrentTick) {
			continue
		}
		for toRow := 0; toRow < state.Board.Height; toRow++ {
			for toCol := 0; toCol < state.Board.Width; toCol++ {
				if ValidateMove(state, player, piece.ID, toRow, toCol) != nil {
					out = append(out, LegalMove{PieceID: piece.ID, ToRow: toRow, ToCol: toCol})
				}
			}
		}
	}

	return out
}

// PieceState is a piece's live view: interpolated position plus
// movement and cooldown flags.
type PieceState struct {
	ID                string    `json:"id"`
	Type              PieceType `json:"type"`
	Player            int       `json:"player"`
	Row               float64   `json:"row"`
	Col               float64   `json:"col"`
	Captured          bool      `json:"captured"`
	Moving            bool      `json:"moving"`
	OnCooldown        bool      `json:"on_cooldown"`
	CooldownRemaining int       `json:"cooldown_remaining"`
}

// GetPieceState returns the live view of one piece, or nil if the ID is
// unknown.
func GetPieceState(state *GameState, pieceID string) *PieceState {
	piece := state.Board.PieceByID(pieceID)
	if piece == nil {
		return nil
	}
	config := state.Config()

	row, col := InterpolatedPosition(piece, state.ActiveMoves, state.CurrentTick, config.TicksPerSquare)
	onCooldown := IsPieceOnCooldown(pieceID, state.Cooldowns, state.CurrentTick)

	remaining := 0
	if onCooldown {
		for _, c := range state.Cooldowns {
			if c.PieceID == pieceID {
				if r := c.StartTick + c.Duration - state.CurrentTick; r > 0 {
					remaining = r
				}
				break
			}
		}
	}

	return &PieceState{
		ID:                piece.ID,
		Type:              piece.Type,
		Player:            piece.Player,
		Row:               row,
		Col:               col,
		Captured:          piece.Captured,
		Moving:            IsPieceMoving(pieceID, state.ActiveMoves),
		OnCooldown:        onCooldown,
		CooldownRemaining: remaining,
	}
}

func filterMoves(moves []*Move, keep func(*Move) bool) []*Move {
	out := moves[:0]
	for _, m := range moves {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func filterCooldowns(cooldowns []Cooldown, keep func(Cooldown) bool) []Cooldown {
	out := cooldowns[:0]
	for _, c := range cooldowns {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
