package lobby

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/kungfuchess/internal/game"
)

func lobbyError(t *testing.T, err error) *Error {
	t.Helper()
	require.Error(t, err)
	lerr, ok := err.(*Error)
	require.True(t, ok, "expected *lobby.Error, got %T", err)
	return lerr
}

func newTestManager() *Manager {
	return NewManager(nil, time.Minute)
}

func TestCreateLobby(t *testing.T) {
	m := newTestManager()

	l, key, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.Len(t, l.Code, 6)
	assert.Equal(t, 1, l.HostSlot)
	assert.Equal(t, StatusWaiting, l.Status)
	assert.Equal(t, 2, l.Settings.PlayerCount)
	require.Contains(t, l.Players, 1)
	assert.Equal(t, "Alice", l.Players[1].Username)
	assert.True(t, l.Players[1].IsConnected)
	assert.NotEmpty(t, key)

	slot, ok := m.ValidatePlayerKey(l.Code, key)
	require.True(t, ok)
	assert.Equal(t, 1, slot)

	t.Run("with AI fill", func(t *testing.T) {
		l, _, err := m.CreateLobby("u2", "Bob", &Settings{PlayerCount: 4}, true, "", "p2")
		require.NoError(t, err)
		assert.Len(t, l.Players, 4)
		for slot := 2; slot <= 4; slot++ {
			assert.True(t, l.Players[slot].IsAI)
		}
	})

	t.Run("ranked never fills with AI", func(t *testing.T) {
		l, _, err := m.CreateLobby("u3", "Carol", &Settings{PlayerCount: 2, IsRanked: true}, true, "", "p3")
		require.NoError(t, err)
		assert.Len(t, l.Players, 1)
	})

	t.Run("invalid player count", func(t *testing.T) {
		_, _, err := m.CreateLobby("u4", "Dave", &Settings{PlayerCount: 3}, false, "", "p4")
		assert.Equal(t, "invalid_settings", lobbyError(t, err).Code)
	})

	t.Run("creating again moves the player", func(t *testing.T) {
		first, _, err := m.CreateLobby("u5", "Eve", nil, false, "", "p5")
		require.NoError(t, err)
		second, _, err := m.CreateLobby("u5", "Eve", nil, false, "", "p5")
		require.NoError(t, err)

		assert.Nil(t, m.GetLobby(first.Code), "abandoned lobby is deleted")
		assert.NotNil(t, m.GetLobby(second.Code))
	})
}

func TestJoinLobby(t *testing.T) {
	m := newTestManager()
	l, _, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)

	t.Run("fills the next free slot", func(t *testing.T) {
		joined, key, slot, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, slot)
		assert.NotEmpty(t, key)
		assert.Equal(t, "Bob", joined.Players[2].Username)
	})

	t.Run("rejoining returns the existing seat", func(t *testing.T) {
		_, key1, slot1, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, slot1)

		_, key2, slot2, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
		require.NoError(t, err)
		assert.Equal(t, key1, key2)
		assert.Equal(t, slot1, slot2)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, _, _, err := m.JoinLobby("ZZZZZZ", "u3", "Carol", "p3", 0)
		assert.Equal(t, "not_found", lobbyError(t, err).Code)
	})

	t.Run("full lobby", func(t *testing.T) {
		_, _, _, err := m.JoinLobby(l.Code, "u3", "Carol", "p3", 0)
		assert.Equal(t, "lobby_full", lobbyError(t, err).Code)
	})

	t.Run("preferred slot", func(t *testing.T) {
		big, _, err := m.CreateLobby("u4", "Dave", &Settings{PlayerCount: 4}, false, "", "p4")
		require.NoError(t, err)
		_, _, slot, err := m.JoinLobby(big.Code, "u5", "Eve", "p5", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, slot)
	})
}

func TestLeaveLobbyAndHostTransfer(t *testing.T) {
	m := newTestManager()
	l, hostKey, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)
	_, bobKey, _, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
	require.NoError(t, err)

	t.Run("host leaving transfers to lowest human slot", func(t *testing.T) {
		updated := m.LeaveLobby(l.Code, hostKey, "p1")
		require.NotNil(t, updated)
		assert.Equal(t, 2, updated.HostSlot)
		assert.NotContains(t, updated.Players, 1)
	})

	t.Run("last human leaving deletes the lobby", func(t *testing.T) {
		assert.Nil(t, m.LeaveLobby(l.Code, bobKey, "p2"))
		assert.Nil(t, m.GetLobby(l.Code))
	})

	t.Run("invalid key is a no-op", func(t *testing.T) {
		assert.Nil(t, m.LeaveLobby(l.Code, "bogus", ""))
	})
}

func TestSetReady(t *testing.T) {
	m := newTestManager()
	l, hostKey, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)

	updated, err := m.SetReady(l.Code, hostKey, true)
	require.NoError(t, err)
	assert.True(t, updated.Players[1].IsReady)

	updated, err = m.SetReady(l.Code, hostKey, false)
	require.NoError(t, err)
	assert.False(t, updated.Players[1].IsReady)

	_, err = m.SetReady(l.Code, "bogus", true)
	assert.Equal(t, "invalid_key", lobbyError(t, err).Code)
}

func TestUpdateSettings(t *testing.T) {
	m := newTestManager()
	l, hostKey, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)
	_, bobKey, _, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
	require.NoError(t, err)

	t.Run("host only", func(t *testing.T) {
		_, err := m.UpdateSettings(l.Code, bobKey, Settings{PlayerCount: 2})
		assert.Equal(t, "not_host", lobbyError(t, err).Code)
	})

	t.Run("change unreadies humans", func(t *testing.T) {
		_, err := m.SetReady(l.Code, bobKey, true)
		require.NoError(t, err)

		updated, err := m.UpdateSettings(l.Code, hostKey, Settings{Speed: game.SpeedLightning, PlayerCount: 2})
		require.NoError(t, err)
		assert.Equal(t, game.SpeedLightning, updated.Settings.Speed)
		assert.False(t, updated.Players[2].IsReady)
	})

	t.Run("cannot shrink below current players", func(t *testing.T) {
		big, bigKey, err := m.CreateLobby("u3", "Carol", &Settings{PlayerCount: 4}, true, "", "p3")
		require.NoError(t, err)
		require.Len(t, big.Players, 4)

		_, err = m.UpdateSettings(big.Code, bigKey, Settings{PlayerCount: 2})
		assert.Equal(t, "invalid_settings", lobbyError(t, err).Code)
	})

	t.Run("ranked forbids AI seats", func(t *testing.T) {
		withAI, aiKey, err := m.CreateLobby("u4", "Dave", &Settings{PlayerCount: 2}, true, "", "p4")
		require.NoError(t, err)

		_, err = m.UpdateSettings(withAI.Code, aiKey, Settings{PlayerCount: 2, IsRanked: true})
		assert.Equal(t, "invalid_settings", lobbyError(t, err).Code)
	})
}

func TestKickAndAI(t *testing.T) {
	m := newTestManager()
	l, hostKey, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)

	t.Run("add and remove AI", func(t *testing.T) {
		updated, err := m.AddAI(l.Code, hostKey, "")
		require.NoError(t, err)
		require.Contains(t, updated.Players, 2)
		assert.True(t, updated.Players[2].IsAI)
		assert.Equal(t, "AI (dummy)", updated.Players[2].Username)

		_, err = m.AddAI(l.Code, hostKey, "")
		assert.Equal(t, "lobby_full", lobbyError(t, err).Code)

		updated, err = m.RemoveAI(l.Code, hostKey, 2)
		require.NoError(t, err)
		assert.NotContains(t, updated.Players, 2)
	})

	t.Run("kick a human", func(t *testing.T) {
		_, _, slot, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
		require.NoError(t, err)

		updated, err := m.KickPlayer(l.Code, hostKey, slot)
		require.NoError(t, err)
		assert.NotContains(t, updated.Players, slot)
	})

	t.Run("cannot kick yourself", func(t *testing.T) {
		_, err := m.KickPlayer(l.Code, hostKey, 1)
		assert.Equal(t, "invalid_action", lobbyError(t, err).Code)
	})

	t.Run("kick rejects AI targets", func(t *testing.T) {
		_, err := m.AddAI(l.Code, hostKey, "")
		require.NoError(t, err)
		_, err = m.KickPlayer(l.Code, hostKey, 2)
		assert.Equal(t, "invalid_action", lobbyError(t, err).Code)

		_, err = m.RemoveAI(l.Code, hostKey, 2)
		require.NoError(t, err)
	})
}

func TestStartGameFlow(t *testing.T) {
	m := newTestManager()
	l, hostKey, err := m.CreateLobby("u1", "Alice", nil, true, "", "p1")
	require.NoError(t, err)

	t.Run("host is auto-readied by starting", func(t *testing.T) {
		keys, err := m.StartGame(l.Code, hostKey, "GAME0001")
		require.NoError(t, err)

		// Only humans get game keys.
		require.Len(t, keys, 1)
		assert.Contains(t, keys[1], "p1_")

		updated := m.GetLobby(l.Code)
		assert.Equal(t, StatusInGame, updated.Status)
		assert.Equal(t, "GAME0001", updated.CurrentGameID)
		assert.Equal(t, 1, updated.GamesPlayed)

		code, ok := m.FindLobbyByGame("GAME0001")
		require.True(t, ok)
		assert.Equal(t, l.Code, code)
	})

	t.Run("joining mid-game is rejected", func(t *testing.T) {
		_, _, _, err := m.JoinLobby(l.Code, "u9", "Zed", "p9", 0)
		assert.Equal(t, "game_in_progress", lobbyError(t, err).Code)
	})

	t.Run("end game unreadies and finishes", func(t *testing.T) {
		ended := m.EndGame(l.Code)
		require.NotNil(t, ended)
		assert.Equal(t, StatusFinished, ended.Status)
		assert.Empty(t, ended.CurrentGameID)
		assert.False(t, ended.Players[1].IsReady)
		require.NotNil(t, ended.GameFinishedAt)

		_, ok := m.FindLobbyByGame("GAME0001")
		assert.False(t, ok)
	})

	t.Run("return to lobby enables a rematch", func(t *testing.T) {
		back, err := m.ReturnToLobby(l.Code)
		require.NoError(t, err)
		assert.Equal(t, StatusWaiting, back.Status)

		keys, err := m.StartGame(l.Code, hostKey, "GAME0002")
		require.NoError(t, err)
		assert.Len(t, keys, 1)
		assert.Equal(t, 2, m.GetLobby(l.Code).GamesPlayed)
	})

	t.Run("not full is not ready", func(t *testing.T) {
		solo, soloKey, err := m.CreateLobby("u5", "Eve", nil, false, "", "p5")
		require.NoError(t, err)
		_, err = m.StartGame(solo.Code, soloKey, "GAME0003")
		assert.Equal(t, "not_ready", lobbyError(t, err).Code)
	})

	t.Run("unready guest blocks the start", func(t *testing.T) {
		duo, duoKey, err := m.CreateLobby("u6", "Frank", nil, false, "", "p6")
		require.NoError(t, err)
		_, _, _, err = m.JoinLobby(duo.Code, "u7", "Grace", "p7", 0)
		require.NoError(t, err)

		_, err = m.StartGame(duo.Code, duoKey, "GAME0004")
		assert.Equal(t, "not_ready", lobbyError(t, err).Code)
	})
}

func TestDisconnectGraceSweep(t *testing.T) {
	m := newTestManager()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	l, _, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)
	_, _, _, err = m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
	require.NoError(t, err)

	updated := m.SetConnected(l.Code, 2, false)
	require.NotNil(t, updated)
	assert.False(t, updated.Players[2].IsConnected)
	require.NotNil(t, updated.Players[2].DisconnectedAt)

	t.Run("within grace nothing is swept", func(t *testing.T) {
		clock = clock.Add(30 * time.Second)
		swept, after := m.CleanupDisconnectedPlayers(l.Code)
		assert.Empty(t, swept)
		require.NotNil(t, after)
		assert.Contains(t, after.Players, 2)
	})

	t.Run("past grace the seat is freed", func(t *testing.T) {
		clock = clock.Add(2 * time.Minute)
		swept, after := m.CleanupDisconnectedPlayers(l.Code)
		assert.Equal(t, []int{2}, swept)
		require.NotNil(t, after)
		assert.NotContains(t, after.Players, 2)
	})

	t.Run("reconnection clears the clock", func(t *testing.T) {
		_, _, _, err := m.JoinLobby(l.Code, "u2", "Bob", "p2", 0)
		require.NoError(t, err)
		m.SetConnected(l.Code, 2, false)
		reconnect := m.SetConnected(l.Code, 2, true)
		require.NotNil(t, reconnect)
		assert.True(t, reconnect.Players[2].IsConnected)
		assert.Nil(t, reconnect.Players[2].DisconnectedAt)

		clock = clock.Add(time.Hour)
		swept, _ := m.CleanupDisconnectedPlayers(l.Code)
		assert.Empty(t, swept)
	})

	t.Run("sweeping the last human deletes the lobby", func(t *testing.T) {
		m.SetConnected(l.Code, 1, false)
		m.SetConnected(l.Code, 2, false)
		clock = clock.Add(time.Hour)
		swept, after := m.CleanupDisconnectedPlayers(l.Code)
		assert.Len(t, swept, 2)
		assert.Nil(t, after)
		assert.Nil(t, m.GetLobby(l.Code))
	})
}

func TestCleanupStaleLobbies(t *testing.T) {
	m := newTestManager()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	l, hostKey, err := m.CreateLobby("u1", "Alice", nil, true, "", "p1")
	require.NoError(t, err)
	_, err = m.StartGame(l.Code, hostKey, "GAME1")
	require.NoError(t, err)

	t.Run("in-game lobbies are never touched", func(t *testing.T) {
		clock = clock.Add(48 * time.Hour)
		assert.Equal(t, 0, m.CleanupStaleLobbies(time.Hour, time.Hour))
		assert.NotNil(t, m.GetLobby(l.Code))
	})

	t.Run("old finished lobbies are removed", func(t *testing.T) {
		m.EndGame(l.Code)
		clock = clock.Add(25 * time.Hour)
		assert.Equal(t, 1, m.CleanupStaleLobbies(time.Hour, 24*time.Hour))
		assert.Nil(t, m.GetLobby(l.Code))
	})

	t.Run("fresh lobbies survive", func(t *testing.T) {
		_, _, err := m.CreateLobby("u2", "Bob", nil, false, "", "p2")
		require.NoError(t, err)
		assert.Equal(t, 0, m.CleanupStaleLobbies(time.Hour, time.Hour))
	})
}

func TestGetPublicLobbies(t *testing.T) {
	m := newTestManager()

	pub, _, err := m.CreateLobby("u1", "Alice", &Settings{IsPublic: true, PlayerCount: 2}, false, "", "p1")
	require.NoError(t, err)
	_, _, err = m.CreateLobby("u2", "Bob", &Settings{IsPublic: false, PlayerCount: 2}, false, "", "p2")
	require.NoError(t, err)
	_, _, err = m.CreateLobby("u3", "Carol", &Settings{IsPublic: true, Speed: game.SpeedLightning, PlayerCount: 4}, false, "", "p3")
	require.NoError(t, err)

	all := m.GetPublicLobbies(PublicLobbyFilter{})
	assert.Len(t, all, 2)

	fast := m.GetPublicLobbies(PublicLobbyFilter{Speed: "lightning"})
	require.Len(t, fast, 1)
	assert.Equal(t, 4, fast[0].Settings.PlayerCount)

	duos := m.GetPublicLobbies(PublicLobbyFilter{PlayerCount: 2})
	require.Len(t, duos, 1)
	assert.Equal(t, pub.Code, duos[0].Code)
}

func TestRestore(t *testing.T) {
	saved := []*Lobby{
		{
			ID:     7,
			Code:   "ABCDEF",
			Status: StatusInGame, CurrentGameID: "GAMEX",
			HostSlot: 1,
			Settings: Settings{PlayerCount: 2},
			Players: map[int]*Player{
				1: {Slot: 1, UserID: "u1", Username: "Alice", IsConnected: true},
				2: {Slot: 2, Username: "AI (dummy)", IsAI: true, IsConnected: true},
			},
			CreatedAt: time.Now(),
		},
	}
	store := &fakeStore{lobbies: saved}

	m := NewManager(store, time.Minute)
	require.NoError(t, m.Restore())

	restored := m.GetLobby("ABCDEF")
	require.NotNil(t, restored)
	assert.Equal(t, StatusFinished, restored.Status, "games do not survive restarts")
	assert.Empty(t, restored.CurrentGameID)
	assert.False(t, restored.Players[1].IsConnected, "keys are gone, humans must rejoin")
	require.NotNil(t, restored.Players[1].DisconnectedAt)
	assert.True(t, restored.Players[2].IsConnected, "AI seats stay up")

	t.Run("lobby id counter continues past restored ids", func(t *testing.T) {
		l, _, err := m.CreateLobby("u9", "New", nil, false, "", "p9")
		require.NoError(t, err)
		assert.Equal(t, 8, l.ID)
	})
}

type fakeStore struct {
	lobbies []*Lobby
	saves   int
	deletes int
}

func (s *fakeStore) SaveLobby(l *Lobby) error {
	s.saves++
	return nil
}

func (s *fakeStore) DeleteLobby(code string) error {
	s.deletes++
	return nil
}

func (s *fakeStore) ListLobbies() ([]*Lobby, error) {
	return s.lobbies, nil
}

func TestPersistence(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, time.Minute)

	l, key, err := m.CreateLobby("u1", "Alice", nil, false, "", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)

	_, err = m.SetReady(l.Code, key, true)
	require.NoError(t, err)
	assert.Equal(t, 2, store.saves)

	m.LeaveLobby(l.Code, key, "p1")
	assert.Equal(t, 1, store.deletes, "empty lobby is removed from the store")
}
