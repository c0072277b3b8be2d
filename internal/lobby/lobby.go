// Package lobby implements pre-game lobbies: rooms identified by a
// short join code where players gather, pick settings, toggle ready,
// and launch games together.
package lobby

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hailam/kungfuchess/internal/game"
)

// Status is the lifecycle phase of a lobby.
type Status uint8

const (
	// StatusWaiting means the lobby is gathering players.
	StatusWaiting Status = iota
	// StatusInGame means a game launched from this lobby is running.
	StatusInGame
	// StatusFinished means the last game ended and players have not
	// returned to the waiting state yet.
	StatusFinished
)

var statusNames = map[Status]string{
	StatusWaiting:  "waiting",
	StatusInGame:   "in_game",
	StatusFinished: "finished",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalJSON encodes the status as its wire name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status from its wire name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown lobby status %q", name)
}

// Settings are the host-controlled game options for a lobby.
type Settings struct {
	IsPublic    bool       `json:"is_public"`
	Speed       game.Speed `json:"speed"`
	PlayerCount int        `json:"player_count"`
	IsRanked    bool       `json:"is_ranked"`
}

// BoardType returns the board matching the configured player count.
func (s Settings) BoardType() game.BoardType {
	if s.PlayerCount == 4 {
		return game.FourPlayerBoard
	}
	return game.StandardBoard
}

// Player is one occupied slot in a lobby, human or AI.
type Player struct {
	Slot     int    `json:"slot"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAI     bool   `json:"is_ai"`
	AIType   string `json:"ai_type,omitempty"`
	IsReady  bool   `json:"is_ready"`

	// Connection tracking. AI players are always considered connected.
	IsConnected    bool       `json:"is_connected"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// Lobby is one room. The manager owns all mutation; these fields are
// read directly only while holding the manager's lock or from copies.
type Lobby struct {
	ID       int             `json:"id"`
	Code     string          `json:"code"`
	HostSlot int             `json:"host_slot"`
	Settings Settings        `json:"settings"`
	Players  map[int]*Player `json:"players"`
	Status   Status          `json:"status"`

	CurrentGameID  string     `json:"current_game_id,omitempty"`
	GamesPlayed    int        `json:"games_played"`
	CreatedAt      time.Time  `json:"created_at"`
	GameFinishedAt *time.Time `json:"game_finished_at,omitempty"`
}

// IsFull reports whether every configured slot is occupied.
func (l *Lobby) IsFull() bool {
	return len(l.Players) >= l.Settings.PlayerCount
}

// HumanPlayers returns the human occupants in slot order.
func (l *Lobby) HumanPlayers() []*Player {
	var out []*Player
	for slot := 1; slot <= l.Settings.PlayerCount; slot++ {
		if p, ok := l.Players[slot]; ok && !p.IsAI {
			out = append(out, p)
		}
	}
	return out
}

// AllReady reports whether every occupant is ready. AI players are
// always ready.
func (l *Lobby) AllReady() bool {
	for _, p := range l.Players {
		if !p.IsAI && !p.IsReady {
			return false
		}
	}
	return true
}

// NextFreeSlot returns the lowest unoccupied slot, or 0 if full.
func (l *Lobby) NextFreeSlot() int {
	for slot := 1; slot <= l.Settings.PlayerCount; slot++ {
		if _, taken := l.Players[slot]; !taken {
			return slot
		}
	}
	return 0
}

// FindPlayerByUserID returns the slot holding the given user, or 0.
func (l *Lobby) FindPlayerByUserID(userID string) int {
	for slot, p := range l.Players {
		if !p.IsAI && p.UserID == userID {
			return slot
		}
	}
	return 0
}

// Copy returns a deep copy safe to use outside the manager's lock.
func (l *Lobby) Copy() *Lobby {
	c := *l
	c.Players = make(map[int]*Player, len(l.Players))
	for slot, p := range l.Players {
		pc := *p
		if p.DisconnectedAt != nil {
			t := *p.DisconnectedAt
			pc.DisconnectedAt = &t
		}
		c.Players[slot] = &pc
	}
	if l.GameFinishedAt != nil {
		t := *l.GameFinishedAt
		c.GameFinishedAt = &t
	}
	return &c
}
