package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/kungfuchess/internal/game"
)

func newWireGame(t *testing.T) *game.GameState {
	t.Helper()
	state, err := game.NewGame(game.SpeedStandard, game.StandardBoard,
		map[int]string{1: "u:alice", 2: "u:bob"}, "", game.DefaultTickRateHz)
	require.NoError(t, err)
	state.Status = game.StatusPlaying
	return state
}

func findPiece(msg stateMessage, id string) *pieceSnapshot {
	for i := range msg.Pieces {
		if msg.Pieces[i].ID == id {
			return &msg.Pieces[i]
		}
	}
	return nil
}

func TestBuildStateMessage(t *testing.T) {
	state := newWireGame(t)

	t.Run("initial snapshot", func(t *testing.T) {
		msg := buildStateMessage(state, nil, 42.5)
		assert.Equal(t, "state", msg.Type)
		assert.Equal(t, 0, msg.Tick)
		assert.Len(t, msg.Pieces, 32)
		assert.Empty(t, msg.ActiveMoves)
		assert.Empty(t, msg.Cooldowns)
		assert.Empty(t, msg.Events)
		assert.Equal(t, 42.5, msg.TimeSinceTick)
	})

	t.Run("interpolated moving piece", func(t *testing.T) {
		pawn := state.Board.PieceAt(6, 4)
		move := game.ValidateMove(state, 1, pawn.ID, 4, 4)
		require.NotNil(t, move)
		game.ApplyMove(state, move)
		for i := 0; i < 11; i++ {
			game.Tick(state)
		}

		msg := buildStateMessage(state, nil, 0)
		snap := findPiece(msg, pawn.ID)
		require.NotNil(t, snap)
		assert.True(t, snap.Moving)
		assert.InDelta(t, 5.0, snap.Row, 1e-9)

		require.Len(t, msg.ActiveMoves, 1)
		assert.InDelta(t, 0.5, msg.ActiveMoves[0].Progress, 1e-9)
	})

	t.Run("progress clamps at one", func(t *testing.T) {
		s := newWireGame(t)
		s.ActiveMoves = []*game.Move{{
			PieceID:   "P:1:6:0",
			Path:      []game.PathPoint{{Row: 6, Col: 0}, {Row: 5, Col: 0}},
			StartTick: 0,
		}}
		s.CurrentTick = 500

		msg := buildStateMessage(s, nil, 0)
		require.Len(t, msg.ActiveMoves, 1)
		assert.Equal(t, 1.0, msg.ActiveMoves[0].Progress)
	})

	t.Run("cooldown remaining ticks", func(t *testing.T) {
		s := newWireGame(t)
		s.CurrentTick = 30
		s.Cooldowns = []game.Cooldown{{PieceID: "P:1:6:0", StartTick: 0, Duration: 100}}

		msg := buildStateMessage(s, nil, 0)
		require.Len(t, msg.Cooldowns, 1)
		assert.Equal(t, 70, msg.Cooldowns[0].RemainingTicks)

		snap := findPiece(msg, "P:1:6:0")
		require.NotNil(t, snap)
		assert.True(t, snap.OnCooldown)
	})

	t.Run("captured pieces appear only on their capture tick", func(t *testing.T) {
		s := newWireGame(t)
		victim := s.Board.PieceAt(1, 4)
		victim.Captured = true

		quiet := buildStateMessage(s, nil, 0)
		assert.Nil(t, findPiece(quiet, victim.ID))

		events := []game.Event{{
			Type: game.EventCapture,
			Tick: s.CurrentTick,
			Data: map[string]any{
				"capturing_piece_id": "Q:1:7:3",
				"captured_piece_id":  victim.ID,
			},
		}}
		loud := buildStateMessage(s, events, 0)
		snap := findPiece(loud, victim.ID)
		require.NotNil(t, snap)
		assert.True(t, snap.Captured)
	})

	t.Run("events are flattened", func(t *testing.T) {
		events := []game.Event{{
			Type: game.EventMoveStarted,
			Tick: 7,
			Data: map[string]any{"piece_id": "N:1:7:1"},
		}}
		msg := buildStateMessage(state, events, 0)
		require.Len(t, msg.Events, 1)
		assert.Equal(t, "move_started", msg.Events[0]["type"])
		assert.Equal(t, 7, msg.Events[0]["tick"])
		assert.Equal(t, "N:1:7:1", msg.Events[0]["piece_id"])
	})
}

func TestGameOverReason(t *testing.T) {
	state := newWireGame(t)

	state.Status = game.StatusFinished
	state.Winner = 2
	state.WinReason = game.ReasonKingCaptured
	assert.Equal(t, "king_captured", gameOverReason(state))

	state.Winner = 0
	state.WinReason = game.ReasonDraw
	assert.Equal(t, "draw_timeout", gameOverReason(state))

	state.Winner = 1
	state.WinReason = game.ReasonResignation
	assert.Equal(t, "resignation", gameOverReason(state))
}
