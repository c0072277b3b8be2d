package game

import "math"

// CaptureDistance is the Euclidean distance (in squares) below which two
// opposing pieces collide and one or both are captured.
const CaptureDistance = 0.4

// knightAirborneFraction is how much of a knight's flight it spends
// airborne: invisible to collisions and unable to capture. Visibility
// and capture ability flip together at the same threshold.
const knightAirborneFraction = 0.85

// Capture records one piece being captured during a tick. An empty
// CapturingPieceID means mutual destruction.
type Capture struct {
	CapturingPieceID string
	CapturedPieceID  string
	Row              float64
	Col              float64
}

// InterpolatedPosition returns a piece's position at the current tick,
// interpolated along its active move path, or its resting position if
// it is not moving.
func InterpolatedPosition(piece *Piece, activeMoves []*Move, currentTick, ticksPerSquare int) (row, col float64) {
	move := findMove(piece.ID, activeMoves)
	if move == nil {
		return piece.Row, piece.Col
	}

	ticksElapsed := currentTick - move.StartTick
	if ticksElapsed < 0 {
		return piece.Row, piece.Col
	}

	totalSquares := move.NumSquares()
	if totalSquares == 0 {
		return move.Path[0].Row, move.Path[0].Col
	}

	totalTicks := totalSquares * ticksPerSquare
	if ticksElapsed >= totalTicks {
		end := move.EndPosition()
		return end.Row, end.Col
	}

	progress := float64(ticksElapsed) / float64(ticksPerSquare)
	segment := int(progress)
	segmentProgress := progress - float64(segment)
	if segment >= totalSquares {
		end := move.EndPosition()
		return end.Row, end.Col
	}

	from := move.Path[segment]
	to := move.Path[segment+1]
	return from.Row + (to.Row-from.Row)*segmentProgress,
		from.Col + (to.Col-from.Col)*segmentProgress
}

// KnightPosition returns a jumping knight's collision position, or
// ok=false while it is airborne. Airborne knights can be neither seen
// nor captured. Once visible, the knight tracks a straight line from
// start to destination by overall flight progress.
func KnightPosition(piece *Piece, activeMoves []*Move, currentTick, ticksPerSquare int) (row, col float64, ok bool) {
	move := findMove(piece.ID, activeMoves)
	if move == nil {
		return piece.Row, piece.Col, true
	}

	ticksElapsed := currentTick - move.StartTick
	if ticksElapsed < 0 {
		return piece.Row, piece.Col, true
	}

	// The three-point path means two segments of flight.
	totalTicks := 2 * ticksPerSquare

	if float64(ticksElapsed) < float64(totalTicks)*knightAirborneFraction {
		return 0, 0, false
	}
	if ticksElapsed >= totalTicks {
		end := move.EndPosition()
		return end.Row, end.Col, true
	}

	progress := float64(ticksElapsed) / float64(totalTicks)
	start := move.StartPosition()
	end := move.EndPosition()
	return start.Row + (end.Row-start.Row)*progress,
		start.Col + (end.Col-start.Col)*progress,
		true
}

// canKnightCapture reports whether a jumping knight has landed enough to
// capture (past the airborne fraction of its flight).
func canKnightCapture(move *Move, currentTick, ticksPerSquare int) bool {
	ticksElapsed := currentTick - move.StartTick
	totalTicks := 2 * ticksPerSquare
	return float64(ticksElapsed) >= float64(totalTicks)*knightAirborneFraction
}

// DetectCollisions finds all captures at the current tick.
//
// Pairs of opposing pieces are checked in board order; a piece already
// captured earlier in the same tick takes no further part. When two
// pieces are within CaptureDistance the winner is decided by the
// arbitration rules in captureWinner.
func DetectCollisions(pieces []*Piece, activeMoves []*Move, currentTick, ticksPerSquare int) []Capture {
	var captures []Capture

	type pos struct {
		row, col float64
		airborne bool
	}
	positions := make(map[string]pos, len(pieces))

	var live []*Piece
	for _, p := range pieces {
		if p.Captured {
			continue
		}
		live = append(live, p)
		if p.Type == Knight {
			row, col, ok := KnightPosition(p, activeMoves, currentTick, ticksPerSquare)
			positions[p.ID] = pos{row: row, col: col, airborne: !ok}
		} else {
			row, col := InterpolatedPosition(p, activeMoves, currentTick, ticksPerSquare)
			positions[p.ID] = pos{row: row, col: col}
		}
	}

	moveByPiece := make(map[string]*Move, len(activeMoves))
	for _, m := range activeMoves {
		moveByPiece[m.PieceID] = m
	}

	dead := make(map[string]bool)

	for i, a := range live {
		if dead[a.ID] {
			continue
		}
		posA := positions[a.ID]
		if posA.airborne {
			continue
		}

		for _, b := range live[i+1:] {
			if dead[a.ID] {
				break
			}
			if dead[b.ID] || a.Player == b.Player {
				continue
			}
			posB := positions[b.ID]
			if posB.airborne {
				continue
			}

			dist := math.Hypot(posA.row-posB.row, posA.col-posB.col)
			if dist >= CaptureDistance {
				continue
			}

			moveA := moveByPiece[a.ID]
			moveB := moveByPiece[b.ID]

			// A jumping knight that has not landed yet passes through.
			if a.Type == Knight && moveA != nil && !canKnightCapture(moveA, currentTick, ticksPerSquare) {
				continue
			}
			if b.Type == Knight && moveB != nil && !canKnightCapture(moveB, currentTick, ticksPerSquare) {
				continue
			}

			winner, loser := captureWinner(a, b, moveA, moveB)

			midRow := (posA.row + posB.row) / 2
			midCol := (posA.col + posB.col) / 2

			switch {
			case winner != nil && loser != nil:
				captures = append(captures, Capture{
					CapturingPieceID: winner.ID,
					CapturedPieceID:  loser.ID,
					Row:              midRow,
					Col:              midCol,
				})
				dead[loser.ID] = true
			case winner == nil && loser == nil:
				// Mutual destruction: two captures, no capturer.
				captures = append(captures,
					Capture{CapturedPieceID: a.ID, Row: midRow, Col: midCol},
					Capture{CapturedPieceID: b.ID, Row: midRow, Col: midCol},
				)
				dead[a.ID] = true
				dead[b.ID] = true
			}
		}
	}

	return captures
}

// captureWinner arbitrates a collision between two opposing pieces:
//
//  1. A straight-moving pawn cannot capture (it can still die).
//  2. If both are straight-moving pawns, the earlier start tick
//     survives; an exact tie destroys both.
//  3. If exactly one piece can capture, it wins.
//  4. A moving piece captures a stationary one.
//  5. Both moving: earlier start tick wins; a tie destroys both.
//
// Returns (nil, nil) for mutual destruction or no capture.
func captureWinner(a, b *Piece, moveA, moveB *Move) (winner, loser *Piece) {
	aCanCapture := canPieceCapture(a, moveA)
	bCanCapture := canPieceCapture(b, moveB)

	if !aCanCapture && !bCanCapture {
		// Two straight-moving pawns: the earlier one survives the
		// collision even though neither "captures".
		if moveA != nil && moveB != nil {
			if moveA.StartTick < moveB.StartTick {
				return a, b
			}
			if moveB.StartTick < moveA.StartTick {
				return b, a
			}
		}
		return nil, nil
	}

	if aCanCapture && !bCanCapture {
		return a, b
	}
	if bCanCapture && !aCanCapture {
		return b, a
	}

	aMoving := moveA != nil
	bMoving := moveB != nil

	if aMoving && !bMoving {
		return a, b
	}
	if bMoving && !aMoving {
		return b, a
	}
	if !aMoving && !bMoving {
		return nil, nil
	}

	if moveA.StartTick < moveB.StartTick {
		return a, b
	}
	if moveB.StartTick < moveA.StartTick {
		return b, a
	}
	return nil, nil
}

// isPawnMovingStraight reports whether a pawn is traveling without any
// lateral offset. Pawn paths are either straight or single-square
// diagonals, so keeping one coordinate constant means straight on
// either board orientation.
func isPawnMovingStraight(piece *Piece, move *Move) bool {
	if piece.Type != Pawn || move == nil || len(move.Path) < 2 {
		return false
	}
	start := move.StartPosition()
	end := move.EndPosition()
	return start.Row == end.Row || start.Col == end.Col
}

// canPieceCapture reports whether a piece is able to capture given its
// current movement. Only straight-moving pawns cannot.
func canPieceCapture(piece *Piece, move *Move) bool {
	return !isPawnMovingStraight(piece, move)
}

// IsPieceMoving reports whether a piece has an active move.
func IsPieceMoving(pieceID string, activeMoves []*Move) bool {
	return findMove(pieceID, activeMoves) != nil
}

// IsPieceOnCooldown reports whether a piece is on cooldown at the tick.
func IsPieceOnCooldown(pieceID string, cooldowns []Cooldown, currentTick int) bool {
	for _, c := range cooldowns {
		if c.PieceID == pieceID && c.Active(currentTick) {
			return true
		}
	}
	return false
}

func findMove(pieceID string, activeMoves []*Move) *Move {
	for _, m := range activeMoves {
		if m.PieceID == pieceID {
			return m
		}
	}
	return nil
}
