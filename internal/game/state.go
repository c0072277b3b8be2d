package game

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultTickRateHz is the simulation rate the server runs at. All
// timing constants are expressed in seconds and converted to ticks
// against the game's actual rate, so changing the rate preserves
// wall-clock behavior.
const DefaultTickRateHz = 10

// Speed selects the pacing preset for a game.
type Speed uint8

// Speed constants.
const (
	SpeedStandard Speed = iota
	SpeedLightning
)

// String returns the wire name of the speed.
func (s Speed) String() string {
	if s == SpeedLightning {
		return "lightning"
	}
	return "standard"
}

// ParseSpeed parses a wire name into a Speed.
func ParseSpeed(s string) (Speed, error) {
	switch s {
	case "standard":
		return SpeedStandard, nil
	case "lightning":
		return SpeedLightning, nil
	}
	return SpeedStandard, fmt.Errorf("invalid speed: %q", s)
}

// MarshalJSON encodes the speed as its wire name.
func (s Speed) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire name into a speed.
func (s *Speed) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSpeed(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SpeedPreset holds the pacing of a speed in seconds.
type SpeedPreset struct {
	SecondsPerSquare     float64
	CooldownSeconds      float64
	DrawNoMoveSeconds    float64
	DrawNoCaptureSeconds float64
	MinDrawSeconds       float64
}

var speedPresets = map[Speed]SpeedPreset{
	SpeedStandard: {
		SecondsPerSquare:     1.0,
		CooldownSeconds:      10.0,
		DrawNoMoveSeconds:    120.0,
		DrawNoCaptureSeconds: 180.0,
		MinDrawSeconds:       360.0,
	},
	SpeedLightning: {
		SecondsPerSquare:     0.2,
		CooldownSeconds:      2.0,
		DrawNoMoveSeconds:    30.0,
		DrawNoCaptureSeconds: 45.0,
		MinDrawSeconds:       90.0,
	},
}

// SpeedConfig holds the pacing of a speed converted to ticks at a
// specific tick rate.
type SpeedConfig struct {
	TickPeriodMs       int
	TicksPerSquare     int
	CooldownTicks      int
	DrawNoMoveTicks    int
	DrawNoCaptureTicks int
	MinDrawTicks       int
}

// Config converts the speed's preset into tick counts at the given rate.
// Counts are rounded to the nearest tick.
func (s Speed) Config(tickRateHz int) SpeedConfig {
	if tickRateHz <= 0 {
		tickRateHz = DefaultTickRateHz
	}
	preset, ok := speedPresets[s]
	if !ok {
		preset = speedPresets[SpeedStandard]
	}
	hz := float64(tickRateHz)
	return SpeedConfig{
		TickPeriodMs:       int(math.Round(1000 / hz)),
		TicksPerSquare:     int(math.Round(preset.SecondsPerSquare * hz)),
		CooldownTicks:      int(math.Round(preset.CooldownSeconds * hz)),
		DrawNoMoveTicks:    int(math.Round(preset.DrawNoMoveSeconds * hz)),
		DrawNoCaptureTicks: int(math.Round(preset.DrawNoCaptureSeconds * hz)),
		MinDrawTicks:       int(math.Round(preset.MinDrawSeconds * hz)),
	}
}

// GameStatus is the lifecycle phase of a game.
type GameStatus uint8

// Game status constants.
const (
	StatusWaiting GameStatus = iota
	StatusPlaying
	StatusFinished
)

// String returns the wire name of the status.
func (gs GameStatus) String() string {
	switch gs {
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	}
	return "waiting"
}

// MarshalJSON encodes the status as its wire name.
func (gs GameStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(gs.String())
}

// UnmarshalJSON decodes a wire name into a status.
func (gs *GameStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "waiting":
		*gs = StatusWaiting
	case "playing":
		*gs = StatusPlaying
	case "finished":
		*gs = StatusFinished
	default:
		return fmt.Errorf("invalid game status: %q", s)
	}
	return nil
}

// WinReason explains how a finished game ended.
type WinReason string

// Win reason constants.
const (
	ReasonKingCaptured WinReason = "king_captured"
	ReasonDraw         WinReason = "draw"
	ReasonResignation  WinReason = "resignation"
	// ReasonInvalid marks games terminated by an internal error.
	ReasonInvalid WinReason = "invalid"
)

// NoWinner is the Winner value while a game is still ongoing. A Winner
// of 0 on a finished game means a draw.
const NoWinner = -1

// ReplayMove is one recorded move intent, sufficient to re-drive the
// engine deterministically during playback.
type ReplayMove struct {
	Tick    int    `json:"tick"`
	PieceID string `json:"piece_id"`
	ToRow   int    `json:"to_row"`
	ToCol   int    `json:"to_col"`
	Player  int    `json:"player"`
}

// GameState is the complete state of one game.
type GameState struct {
	GameID          string
	Board           *Board
	Speed           Speed
	TickRateHz      int
	Players         map[int]string
	ActiveMoves     []*Move
	Cooldowns       []Cooldown
	CurrentTick     int
	Status          GameStatus
	StartedAt       time.Time
	FinishedAt      time.Time
	Winner          int
	WinReason       WinReason
	LastMoveTick    int
	LastCaptureTick int
	ReplayMoves     []ReplayMove
	ReadyPlayers    map[int]bool
}

// Config returns the tick-count pacing for this game.
func (s *GameState) Config() SpeedConfig {
	return s.Speed.Config(s.TickRateHz)
}

// IsPlaying reports whether the game is in progress.
func (s *GameState) IsPlaying() bool {
	return s.Status == StatusPlaying
}

// IsFinished reports whether the game has ended.
func (s *GameState) IsFinished() bool {
	return s.Status == StatusFinished
}

// PlayerNumber returns the slot for a player ID, or 0 if absent.
func (s *GameState) PlayerNumber(playerID string) int {
	for num, id := range s.Players {
		if id == playerID {
			return num
		}
	}
	return 0
}

// Copy returns a deep copy of the game state.
func (s *GameState) Copy() *GameState {
	c := *s
	c.Board = s.Board.Copy()
	c.Players = make(map[int]string, len(s.Players))
	for k, v := range s.Players {
		c.Players[k] = v
	}
	c.ActiveMoves = make([]*Move, len(s.ActiveMoves))
	for i, m := range s.ActiveMoves {
		c.ActiveMoves[i] = m.Copy()
	}
	c.Cooldowns = append([]Cooldown(nil), s.Cooldowns...)
	c.ReplayMoves = append([]ReplayMove(nil), s.ReplayMoves...)
	c.ReadyPlayers = make(map[int]bool, len(s.ReadyPlayers))
	for k, v := range s.ReadyPlayers {
		c.ReadyPlayers[k] = v
	}
	return &c
}

// IsBotID reports whether a player ID belongs to an AI driver.
func IsBotID(playerID string) bool {
	return strings.HasPrefix(playerID, "bot:") || strings.HasPrefix(playerID, "c:")
}

// NewGameID generates a short uppercase game identifier.
func NewGameID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
