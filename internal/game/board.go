package game

import (
	"encoding/json"
	"fmt"
)

// BoardType identifies a board layout.
type BoardType uint8

// Board layout constants.
const (
	// StandardBoard is the classic 8x8 two-player board.
	StandardBoard BoardType = iota
	// FourPlayerBoard is a 12x12 board with 2x2 corners cut off,
	// seating up to four players on the edges.
	FourPlayerBoard
)

// String returns the wire name of the board type.
func (bt BoardType) String() string {
	if bt == FourPlayerBoard {
		return "four_player"
	}
	return "standard"
}

// ParseBoardType parses a wire name into a BoardType.
func ParseBoardType(s string) (BoardType, error) {
	switch s {
	case "standard":
		return StandardBoard, nil
	case "four_player":
		return FourPlayerBoard, nil
	}
	return StandardBoard, fmt.Errorf("invalid board type: %q", s)
}

// MarshalJSON encodes the board type as its wire name.
func (bt BoardType) MarshalJSON() ([]byte, error) {
	return json.Marshal(bt.String())
}

// UnmarshalJSON decodes a wire name into a board type.
func (bt *BoardType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBoardType(s)
	if err != nil {
		return err
	}
	*bt = parsed
	return nil
}

// standardBackRow is the piece order for the standard board back rows.
var standardBackRow = []PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// Board holds all pieces for a game, including captured ones.
// Pieces keep their insertion order, which makes pairwise collision
// iteration deterministic.
type Board struct {
	Type   BoardType `json:"board_type"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Pieces []*Piece  `json:"pieces"`
}

// NewEmptyBoard creates a board of the given type with no pieces.
func NewEmptyBoard(bt BoardType) *Board {
	size := 8
	if bt == FourPlayerBoard {
		size = 12
	}
	return &Board{Type: bt, Width: size, Height: size}
}

// NewStandardBoard creates an 8x8 board with the standard starting
// position. Player 1 is on rows 6-7, player 2 on rows 0-1.
func NewStandardBoard() *Board {
	b := NewEmptyBoard(StandardBoard)

	for col, t := range standardBackRow {
		b.AddPiece(NewPiece(t, 2, 0, col))
	}
	for col := 0; col < 8; col++ {
		b.AddPiece(NewPiece(Pawn, 2, 1, col))
	}
	for col := 0; col < 8; col++ {
		b.AddPiece(NewPiece(Pawn, 1, 6, col))
	}
	for col, t := range standardBackRow {
		b.AddPiece(NewPiece(t, 1, 7, col))
	}

	return b
}

// NewFourPlayerBoard creates a 12x12 board with four armies on the edges:
// player 1 east (cols 10-11), player 2 south (rows 10-11), player 3 west
// (cols 0-1), player 4 north (rows 0-1). The 2x2 corners are invalid.
//
// Back rows are arranged so that mirrored sides swap king and queen,
// keeping the layout rotationally symmetric.
func NewFourPlayerBoard() *Board {
	b := NewEmptyBoard(FourPlayerBoard)

	northBackRow := []PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	southBackRow := []PieceType{Rook, Knight, Bishop, King, Queen, Bishop, Knight, Rook}
	westBackRow := []PieceType{Rook, Knight, Bishop, King, Queen, Bishop, Knight, Rook}
	eastBackRow := []PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

	// Player 4 (north): back row 0, pawns row 1.
	for i, t := range northBackRow {
		b.AddPiece(NewPiece(t, 4, 0, 2+i))
	}
	for col := 2; col < 10; col++ {
		b.AddPiece(NewPiece(Pawn, 4, 1, col))
	}

	// Player 2 (south): back row 11, pawns row 10.
	for i, t := range southBackRow {
		b.AddPiece(NewPiece(t, 2, 11, 2+i))
	}
	for col := 2; col < 10; col++ {
		b.AddPiece(NewPiece(Pawn, 2, 10, col))
	}

	// Player 3 (west): back col 0, pawns col 1.
	for i, t := range westBackRow {
		b.AddPiece(NewPiece(t, 3, 2+i, 0))
	}
	for row := 2; row < 10; row++ {
		b.AddPiece(NewPiece(Pawn, 3, row, 1))
	}

	// Player 1 (east): back col 11, pawns col 10.
	for i, t := range eastBackRow {
		b.AddPiece(NewPiece(t, 1, 2+i, 11))
	}
	for row := 2; row < 10; row++ {
		b.AddPiece(NewPiece(Pawn, 1, row, 10))
	}

	return b
}

// Copy returns a deep copy of the board.
func (b *Board) Copy() *Board {
	pieces := make([]*Piece, len(b.Pieces))
	for i, p := range b.Pieces {
		pieces[i] = p.Copy()
	}
	return &Board{Type: b.Type, Width: b.Width, Height: b.Height, Pieces: pieces}
}

// AddPiece adds a piece to the board.
func (b *Board) AddPiece(p *Piece) {
	b.Pieces = append(b.Pieces, p)
}

// RemovePiece removes a piece by ID. Returns true if it was found.
func (b *Board) RemovePiece(pieceID string) bool {
	for i, p := range b.Pieces {
		if p.ID == pieceID {
			b.Pieces = append(b.Pieces[:i], b.Pieces[i+1:]...)
			return true
		}
	}
	return false
}

// PieceByID returns the piece with the given ID, or nil.
func (b *Board) PieceByID(pieceID string) *Piece {
	for _, p := range b.Pieces {
		if p.ID == pieceID {
			return p
		}
	}
	return nil
}

// PieceAt returns the uncaptured piece whose grid position matches the
// given square, or nil.
func (b *Board) PieceAt(row, col int) *Piece {
	for _, p := range b.Pieces {
		if p.Captured {
			continue
		}
		r, c := p.GridPosition()
		if r == row && c == col {
			return p
		}
	}
	return nil
}

// PiecesForPlayer returns all uncaptured pieces belonging to a player.
func (b *Board) PiecesForPlayer(player int) []*Piece {
	var out []*Piece
	for _, p := range b.Pieces {
		if p.Player == player && !p.Captured {
			out = append(out, p)
		}
	}
	return out
}

// ActivePieces returns all uncaptured pieces.
func (b *Board) ActivePieces() []*Piece {
	var out []*Piece
	for _, p := range b.Pieces {
		if !p.Captured {
			out = append(out, p)
		}
	}
	return out
}

// King returns the uncaptured king for a player, or nil.
func (b *Board) King(player int) *Piece {
	for _, p := range b.Pieces {
		if p.Type == King && p.Player == player && !p.Captured {
			return p
		}
	}
	return nil
}

// IsValidSquare reports whether the square exists on this board.
func (b *Board) IsValidSquare(row, col int) bool {
	if row < 0 || row >= b.Height || col < 0 || col >= b.Width {
		return false
	}
	if b.Type == FourPlayerBoard {
		// 2x2 corners are cut off.
		if row < 2 && col < 2 {
			return false
		}
		if row < 2 && col >= b.Width-2 {
			return false
		}
		if row >= b.Height-2 && col < 2 {
			return false
		}
		if row >= b.Height-2 && col >= b.Width-2 {
			return false
		}
	}
	return true
}
