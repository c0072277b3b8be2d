// Package game implements the clockless chess simulation: boards, pieces,
// continuous movement along paths, collision-based capture, and the
// tick-driven rules engine.
package game

import (
	"encoding/json"
	"fmt"
	"math"
)

// PieceType identifies a kind of chess piece.
type PieceType uint8

// Piece type constants.
const (
	Pawn PieceType = iota
	Knight
	Bishop
	Rook
	Queen
	King
)

// String returns the single-letter code for the piece type (e.g., "N").
func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "P"
	case Knight:
		return "N"
	case Bishop:
		return "B"
	case Rook:
		return "R"
	case Queen:
		return "Q"
	case King:
		return "K"
	}
	return "?"
}

// Name returns the lowercase full name of the piece type (e.g., "knight").
func (t PieceType) Name() string {
	switch t {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "unknown"
}

// ParsePieceType parses a single-letter piece code into a PieceType.
func ParsePieceType(s string) (PieceType, error) {
	switch s {
	case "P":
		return Pawn, nil
	case "N":
		return Knight, nil
	case "B":
		return Bishop, nil
	case "R":
		return Rook, nil
	case "Q":
		return Queen, nil
	case "K":
		return King, nil
	}
	return Pawn, fmt.Errorf("invalid piece type: %q", s)
}

// MarshalJSON encodes the piece type as its letter code.
func (t PieceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a letter code into a piece type.
func (t *PieceType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePieceType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Piece is a chess piece on the board.
//
// Row and Col hold the at-rest position and are only updated when a move
// completes; while a piece is traveling, its authoritative position comes
// from interpolating its active move path. The ID is derived from the
// starting square ("TYPE:PLAYER:ROW:COL") and never changes, so replays
// can reference pieces across promotions.
type Piece struct {
	ID       string    `json:"id"`
	Type     PieceType `json:"type"`
	Player   int       `json:"player"`
	Row      float64   `json:"row"`
	Col      float64   `json:"col"`
	Captured bool      `json:"captured"`
	Moved    bool      `json:"moved"`
}

// NewPiece creates a piece at the given square with an auto-generated ID.
func NewPiece(t PieceType, player, row, col int) *Piece {
	return &Piece{
		ID:     fmt.Sprintf("%s:%d:%d:%d", t, player, row, col),
		Type:   t,
		Player: player,
		Row:    float64(row),
		Col:    float64(col),
	}
}

// GridPosition returns the position snapped to the nearest grid square.
func (p *Piece) GridPosition() (row, col int) {
	return int(math.Round(p.Row)), int(math.Round(p.Col))
}

// Copy returns a copy of the piece.
func (p *Piece) Copy() *Piece {
	c := *p
	return &c
}
