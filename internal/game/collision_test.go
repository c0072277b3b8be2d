package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolatedPosition(t *testing.T) {
	rook := NewPiece(Rook, 1, 4, 0)

	t.Run("stationary", func(t *testing.T) {
		row, col := InterpolatedPosition(rook, nil, 50, 10)
		assert.Equal(t, 4.0, row)
		assert.Equal(t, 0.0, col)
	})

	move := &Move{
		PieceID:   rook.ID,
		Path:      []PathPoint{point(4, 0), point(4, 1), point(4, 2), point(4, 3)},
		StartTick: 10,
	}
	moves := []*Move{move}

	t.Run("before start", func(t *testing.T) {
		row, col := InterpolatedPosition(rook, moves, 5, 10)
		assert.Equal(t, 4.0, row)
		assert.Equal(t, 0.0, col)
	})

	t.Run("mid segment", func(t *testing.T) {
		// 15 ticks in: 1.5 squares traveled.
		row, col := InterpolatedPosition(rook, moves, 25, 10)
		assert.InDelta(t, 4.0, row, 1e-9)
		assert.InDelta(t, 1.5, col, 1e-9)
	})

	t.Run("at and past the end", func(t *testing.T) {
		row, col := InterpolatedPosition(rook, moves, 40, 10)
		assert.Equal(t, 4.0, row)
		assert.Equal(t, 3.0, col)

		row, col = InterpolatedPosition(rook, moves, 99, 10)
		assert.Equal(t, 3.0, col)
		_ = row
	})
}

func TestKnightPosition(t *testing.T) {
	knight := NewPiece(Knight, 1, 4, 4)
	move := &Move{
		PieceID:   knight.ID,
		Path:      []PathPoint{point(4, 4), {Row: 3, Col: 4.5}, point(2, 5)},
		StartTick: 0,
	}
	moves := []*Move{move}

	// Two segments at 10 ticks each: airborne until tick 17 (85%).
	t.Run("airborne window", func(t *testing.T) {
		_, _, ok := KnightPosition(knight, moves, 0, 10)
		assert.False(t, ok)
		_, _, ok = KnightPosition(knight, moves, 16, 10)
		assert.False(t, ok)

		row, col, ok := KnightPosition(knight, moves, 17, 10)
		require.True(t, ok)
		// Visible knights track the straight start-to-end line.
		assert.InDelta(t, 4.0-2.0*0.85, row, 0.01)
		assert.InDelta(t, 4.0+1.0*0.85, col, 0.01)
	})

	t.Run("landed", func(t *testing.T) {
		row, col, ok := KnightPosition(knight, moves, 20, 10)
		require.True(t, ok)
		assert.Equal(t, 2.0, row)
		assert.Equal(t, 5.0, col)
	})

	t.Run("not moving", func(t *testing.T) {
		row, col, ok := KnightPosition(knight, nil, 5, 10)
		require.True(t, ok)
		assert.Equal(t, 4.0, row)
		assert.Equal(t, 4.0, col)
	})
}

func TestDetectCollisions(t *testing.T) {
	const tps = 10

	t.Run("moving piece captures stationary", func(t *testing.T) {
		queen := NewPiece(Queen, 1, 4, 0)
		pawn := NewPiece(Pawn, 2, 4, 3)
		move := &Move{
			PieceID:   queen.ID,
			Path:      []PathPoint{point(4, 0), point(4, 1), point(4, 2), point(4, 3)},
			StartTick: 0,
		}

		// At tick 27 the queen is at col 2.7, within 0.4 of the pawn.
		captures := DetectCollisions([]*Piece{queen, pawn}, []*Move{move}, 27, tps)
		require.Len(t, captures, 1)
		assert.Equal(t, queen.ID, captures[0].CapturingPieceID)
		assert.Equal(t, pawn.ID, captures[0].CapturedPieceID)

		// At tick 25 (col 2.5) they are still half a square apart.
		assert.Empty(t, DetectCollisions([]*Piece{queen, pawn}, []*Move{move}, 25, tps))
	})

	t.Run("same player never collides", func(t *testing.T) {
		a := NewPiece(Rook, 1, 4, 0)
		b := NewPiece(Rook, 1, 4, 0)
		assert.Empty(t, DetectCollisions([]*Piece{a, b}, nil, 0, tps))
	})

	t.Run("earlier mover wins head-on", func(t *testing.T) {
		r1 := NewPiece(Rook, 1, 4, 0)
		r2 := NewPiece(Rook, 2, 4, 4)
		m1 := &Move{PieceID: r1.ID, Path: buildLinearPath(4, 0, 4, 4), StartTick: 0}
		m2 := &Move{PieceID: r2.ID, Path: buildLinearPath(4, 4, 4, 0), StartTick: 2}

		var all []Capture
		for tick := 0; tick < 40 && len(all) == 0; tick++ {
			all = DetectCollisions([]*Piece{r1, r2}, []*Move{m1, m2}, tick, tps)
		}
		require.Len(t, all, 1)
		assert.Equal(t, r1.ID, all[0].CapturingPieceID)
		assert.Equal(t, r2.ID, all[0].CapturedPieceID)
	})

	t.Run("simultaneous movers destroy each other", func(t *testing.T) {
		r1 := NewPiece(Rook, 1, 4, 0)
		r2 := NewPiece(Rook, 2, 4, 4)
		m1 := &Move{PieceID: r1.ID, Path: buildLinearPath(4, 0, 4, 4), StartTick: 0}
		m2 := &Move{PieceID: r2.ID, Path: buildLinearPath(4, 4, 4, 0), StartTick: 0}

		var all []Capture
		for tick := 0; tick < 40 && len(all) == 0; tick++ {
			all = DetectCollisions([]*Piece{r1, r2}, []*Move{m1, m2}, tick, tps)
		}
		require.Len(t, all, 2)
		for _, c := range all {
			assert.Empty(t, c.CapturingPieceID)
		}
	})

	t.Run("straight pawn dies to the piece it runs into", func(t *testing.T) {
		pawn := NewPiece(Pawn, 1, 6, 4)
		rook := NewPiece(Rook, 2, 5, 4)
		move := &Move{PieceID: pawn.ID, Path: []PathPoint{point(6, 4), point(5, 4)}, StartTick: 0}

		captures := DetectCollisions([]*Piece{pawn, rook}, []*Move{move}, 8, tps)
		require.Len(t, captures, 1)
		assert.Equal(t, rook.ID, captures[0].CapturingPieceID)
		assert.Equal(t, pawn.ID, captures[0].CapturedPieceID)
	})

	t.Run("diagonal pawn captures", func(t *testing.T) {
		pawn := NewPiece(Pawn, 1, 6, 4)
		target := NewPiece(Bishop, 2, 5, 5)
		move := &Move{PieceID: pawn.ID, Path: []PathPoint{point(6, 4), point(5, 5)}, StartTick: 0}

		captures := DetectCollisions([]*Piece{pawn, target}, []*Move{move}, 9, tps)
		require.Len(t, captures, 1)
		assert.Equal(t, pawn.ID, captures[0].CapturingPieceID)
	})

	t.Run("airborne knight passes over", func(t *testing.T) {
		knight := NewPiece(Knight, 1, 4, 4)
		victim := NewPiece(Pawn, 2, 3, 4)
		move := &Move{
			PieceID:   knight.ID,
			Path:      []PathPoint{point(4, 4), {Row: 3, Col: 4.5}, point(2, 5)},
			StartTick: 0,
		}

		// While airborne (ticks 0-16 of 20) nothing can touch it.
		for tick := 0; tick < 17; tick++ {
			assert.Empty(t, DetectCollisions([]*Piece{knight, victim}, []*Move{move}, tick, tps), "tick %d", tick)
		}
	})

	t.Run("landed knight captures the occupant", func(t *testing.T) {
		knight := NewPiece(Knight, 1, 4, 4)
		victim := NewPiece(Pawn, 2, 2, 5)
		move := &Move{
			PieceID:   knight.ID,
			Path:      []PathPoint{point(4, 4), {Row: 3, Col: 4.5}, point(2, 5)},
			StartTick: 0,
		}

		var all []Capture
		for tick := 17; tick <= 20 && len(all) == 0; tick++ {
			all = DetectCollisions([]*Piece{knight, victim}, []*Move{move}, tick, tps)
		}
		require.Len(t, all, 1)
		assert.Equal(t, knight.ID, all[0].CapturingPieceID)
		assert.Equal(t, victim.ID, all[0].CapturedPieceID)
	})

	t.Run("captured pieces take no further part", func(t *testing.T) {
		queen := NewPiece(Queen, 1, 4, 3)
		deadPawn := NewPiece(Pawn, 2, 4, 3)
		deadPawn.Captured = true

		assert.Empty(t, DetectCollisions([]*Piece{queen, deadPawn}, nil, 0, tps))
	})

	t.Run("two stationary pieces never collide", func(t *testing.T) {
		// Can only happen transiently mid-tick, but must not capture.
		a := NewPiece(Rook, 1, 4, 3)
		b := NewPiece(Rook, 2, 4, 3)
		assert.Empty(t, DetectCollisions([]*Piece{a, b}, nil, 0, tps))
	})
}

func TestIsPieceOnCooldown(t *testing.T) {
	cooldowns := []Cooldown{{PieceID: "R:1:7:0", StartTick: 100, Duration: 50}}

	assert.True(t, IsPieceOnCooldown("R:1:7:0", cooldowns, 100))
	assert.True(t, IsPieceOnCooldown("R:1:7:0", cooldowns, 149))
	assert.False(t, IsPieceOnCooldown("R:1:7:0", cooldowns, 150))
	assert.False(t, IsPieceOnCooldown("other", cooldowns, 120))
}
