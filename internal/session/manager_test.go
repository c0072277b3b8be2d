package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/kungfuchess/internal/game"
)

func createQuickGame(t *testing.T) (*Manager, string, string) {
	t.Helper()
	m := NewManager(game.DefaultTickRateHz)
	gameID, playerKey, player, err := m.CreateGame(game.SpeedStandard, game.StandardBoard, "bot:dummy")
	require.NoError(t, err)
	require.Equal(t, 1, player)
	return m, gameID, playerKey
}

func TestCreateGame(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)

	g := m.Get(gameID)
	require.NotNil(t, g)
	assert.Equal(t, game.StatusWaiting, g.State.Status)
	assert.Equal(t, "bot:dummy", g.State.Players[2])
	assert.Len(t, g.AIPlayers, 1)

	assert.Equal(t, 1, m.ValidatePlayerKey(gameID, playerKey))
	assert.Equal(t, 0, m.ValidatePlayerKey(gameID, "wrong"))
	assert.Equal(t, 0, m.ValidatePlayerKey("missing", playerKey))

	t.Run("four player board fills three bot seats", func(t *testing.T) {
		id, _, _, err := m.CreateGame(game.SpeedLightning, game.FourPlayerBoard, "dummy")
		require.NoError(t, err)
		g := m.Get(id)
		require.NotNil(t, g)
		assert.Len(t, g.AIPlayers, 3)
		assert.Equal(t, "bot:dummy", g.State.Players[4])
	})
}

func TestCreateLobbyGame(t *testing.T) {
	m := NewManager(game.DefaultTickRateHz)

	keys := map[int]string{1: "p1_aaa", 2: "p2_bbb"}
	require.NoError(t, m.CreateLobbyGame("LOBBYGAME", game.SpeedStandard, game.StandardBoard, keys, nil))

	assert.Equal(t, 1, m.ValidatePlayerKey("LOBBYGAME", "p1_aaa"))
	assert.Equal(t, 2, m.ValidatePlayerKey("LOBBYGAME", "p2_bbb"))
	g := m.Get("LOBBYGAME")
	require.NotNil(t, g)
	assert.Empty(t, g.AIPlayers)

	t.Run("mixed seats", func(t *testing.T) {
		require.NoError(t, m.CreateLobbyGame("MIXED", game.SpeedStandard, game.StandardBoard,
			map[int]string{1: "p1_ccc"}, map[int]string{2: "dummy"}))
		g := m.Get("MIXED")
		require.NotNil(t, g)
		assert.Len(t, g.AIPlayers, 1)
		assert.Equal(t, "bot:dummy", g.State.Players[2])
	})
}

func TestMarkReady(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)

	t.Run("single human vs bot starts immediately", func(t *testing.T) {
		accepted, started := m.MarkReady(gameID, playerKey)
		assert.True(t, accepted)
		assert.True(t, started)
		assert.True(t, m.Get(gameID).State.IsPlaying())
	})

	t.Run("ready after start is rejected", func(t *testing.T) {
		accepted, started := m.MarkReady(gameID, playerKey)
		assert.False(t, accepted)
		assert.False(t, started)
	})

	t.Run("bad key", func(t *testing.T) {
		accepted, _ := m.MarkReady(gameID, "nope")
		assert.False(t, accepted)
	})

	t.Run("two humans start together", func(t *testing.T) {
		require.NoError(t, m.CreateLobbyGame("DUO", game.SpeedStandard, game.StandardBoard,
			map[int]string{1: "k1", 2: "k2"}, nil))

		accepted, started := m.MarkReady("DUO", "k1")
		assert.True(t, accepted)
		assert.False(t, started)

		accepted, started = m.MarkReady("DUO", "k2")
		assert.True(t, accepted)
		assert.True(t, started)
	})
}

func TestMakeMove(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)

	t.Run("before the game starts", func(t *testing.T) {
		res := m.MakeMove(gameID, playerKey, "P:1:6:4", 4, 4)
		assert.False(t, res.Success)
		assert.Equal(t, "game_not_started", res.Error)
	})

	m.MarkReady(gameID, playerKey)

	t.Run("legal move", func(t *testing.T) {
		res := m.MakeMove(gameID, playerKey, "P:1:6:4", 4, 4)
		require.True(t, res.Success, "error: %s", res.Error)
		assert.Equal(t, "P:1:6:4", res.MoveData["piece_id"])
		assert.Equal(t, 1, res.MoveData["start_tick"])
	})

	t.Run("error codes", func(t *testing.T) {
		res := m.MakeMove("missing", playerKey, "P:1:6:4", 4, 4)
		assert.Equal(t, "game_not_found", res.Error)

		res = m.MakeMove(gameID, "nope", "P:1:6:4", 4, 4)
		assert.Equal(t, "invalid_key", res.Error)

		res = m.MakeMove(gameID, playerKey, "P:9:9:9", 4, 4)
		assert.Equal(t, "piece_not_found", res.Error)

		res = m.MakeMove(gameID, playerKey, "P:2:1:4", 3, 4)
		assert.Equal(t, "not_your_piece", res.Error)

		res = m.MakeMove(gameID, playerKey, "P:1:6:0", 0, 0)
		assert.Equal(t, "invalid_move", res.Error)
	})

	t.Run("captured piece", func(t *testing.T) {
		g := m.Get(gameID)
		g.Mu.Lock()
		g.State.Board.PieceByID("P:1:6:7").Captured = true
		g.Mu.Unlock()

		res := m.MakeMove(gameID, playerKey, "P:1:6:7", 5, 7)
		assert.Equal(t, "piece_captured", res.Error)
	})

	t.Run("after the game ends", func(t *testing.T) {
		g := m.Get(gameID)
		g.Mu.Lock()
		g.State.Status = game.StatusFinished
		g.Mu.Unlock()

		res := m.MakeMove(gameID, playerKey, "P:1:6:5", 5, 5)
		assert.Equal(t, "game_over", res.Error)
	})
}

func TestTickRunsAIAndEngine(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)
	m.MarkReady(gameID, playerKey)

	// The dummy moves on average every 4 seconds; a few minutes of ticks
	// makes silence astronomically unlikely.
	var botMoved bool
	for i := 0; i < 2000 && !botMoved; i++ {
		state, _ := m.Tick(gameID)
		require.NotNil(t, state)
		for _, rm := range state.ReplayMoves {
			if rm.Player == 2 {
				botMoved = true
			}
		}
	}
	assert.True(t, botMoved)

	state, _ := m.Tick(gameID)
	assert.Greater(t, state.CurrentTick, 0)

	t.Run("unknown game", func(t *testing.T) {
		state, events := m.Tick("missing")
		assert.Nil(t, state)
		assert.Nil(t, events)
	})
}

func TestResign(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)

	t.Run("before start is a no-op", func(t *testing.T) {
		assert.Nil(t, m.Resign(gameID, playerKey))
	})

	m.MarkReady(gameID, playerKey)

	t.Run("resigning forfeits to the bot", func(t *testing.T) {
		events := m.Resign(gameID, playerKey)
		assert.NotEmpty(t, events)
		g := m.Get(gameID)
		assert.True(t, g.State.IsFinished())
		assert.Equal(t, 2, g.State.Winner)
		assert.Equal(t, game.ReasonResignation, g.State.WinReason)
	})
}

func TestLegalMovesGrouping(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)

	t.Run("waiting game returns an empty list", func(t *testing.T) {
		groups := m.LegalMoves(gameID, playerKey)
		require.NotNil(t, groups)
		assert.Empty(t, groups)
	})

	m.MarkReady(gameID, playerKey)

	groups := m.LegalMoves(gameID, playerKey)
	require.NotEmpty(t, groups)

	seen := make(map[string]bool)
	for _, g := range groups {
		assert.False(t, seen[g.PieceID], "piece %s grouped twice", g.PieceID)
		seen[g.PieceID] = true
		assert.NotEmpty(t, g.Targets)
	}
	// Opening position: 8 pawns and 2 knights can move.
	assert.Len(t, groups, 10)

	t.Run("bad key", func(t *testing.T) {
		assert.Nil(t, m.LegalMoves(gameID, "nope"))
	})
}

func TestReplayExport(t *testing.T) {
	m, gameID, playerKey := createQuickGame(t)
	m.MarkReady(gameID, playerKey)
	m.MakeMove(gameID, playerKey, "P:1:6:4", 4, 4)

	r := m.Replay(gameID)
	require.NotNil(t, r)
	assert.Equal(t, game.ReplayVersion, r.Version)
	require.Len(t, r.Moves, 1)
	assert.Equal(t, "P:1:6:4", r.Moves[0].PieceID)

	assert.Nil(t, m.Replay("missing"))
}

func TestCleanupStaleGames(t *testing.T) {
	m, gameID, _ := createQuickGame(t)

	assert.Equal(t, 0, m.CleanupStaleGames(time.Hour))
	require.NotNil(t, m.Get(gameID))

	g := m.Get(gameID)
	g.Mu.Lock()
	g.LastActivity = time.Now().Add(-2 * time.Hour)
	g.Mu.Unlock()

	assert.Equal(t, 1, m.CleanupStaleGames(time.Hour))
	assert.Nil(t, m.Get(gameID))
}

func TestRemove(t *testing.T) {
	m, gameID, _ := createQuickGame(t)
	require.NotNil(t, m.Get(gameID))
	m.Remove(gameID)
	assert.Nil(t, m.Get(gameID))
}
