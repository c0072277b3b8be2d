// Package ai provides computer players for the game server.
package ai

import (
	"math/rand"

	"github.com/hailam/kungfuchess/internal/game"
)

// Driver decides moves for one seat. The session loop consults it every
// tick while the game is playing.
type Driver interface {
	// ShouldMove reports whether the driver wants to issue a move on
	// this tick.
	ShouldMove(state *game.GameState, player int, currentTick int) bool
	// GetMove picks a move. Returning ok=false passes the tick.
	GetMove(state *game.GameState, player int) (move game.LegalMove, ok bool)
}

// DummyID is the player ID used for dummy AI seats.
const DummyID = "bot:dummy"

// moveIntervalSeconds is the average pause between dummy moves per
// speed.
var moveIntervalSeconds = map[game.Speed]float64{
	game.SpeedStandard:  4.0,
	game.SpeedLightning: 2.0,
}

// Dummy is a computer player that plays uniformly random legal moves at
// a speed-dependent average cadence. Each tick it moves with
// probability 1/(interval*hz), giving the desired average interval
// without any schedule to persist.
type Dummy struct {
	moveProbability float64
	rng             *rand.Rand
}

// NewDummy creates a dummy driver for the given pacing. The seed makes
// its behavior reproducible; pass a random seed for live games.
func NewDummy(speed game.Speed, tickRateHz int, seed int64) *Dummy {
	if tickRateHz <= 0 {
		tickRateHz = game.DefaultTickRateHz
	}
	interval, ok := moveIntervalSeconds[speed]
	if !ok {
		interval = 4.0
	}
	return &Dummy{
		moveProbability: 1.0 / (interval * float64(tickRateHz)),
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// ShouldMove rolls the per-tick move probability.
func (d *Dummy) ShouldMove(_ *game.GameState, _ int, _ int) bool {
	return d.rng.Float64() < d.moveProbability
}

// GetMove returns a uniformly random legal move.
func (d *Dummy) GetMove(state *game.GameState, player int) (game.LegalMove, bool) {
	legal := game.LegalMoves(state, player)
	if len(legal) == 0 {
		return game.LegalMove{}, false
	}
	return legal[d.rng.Intn(len(legal))], true
}
