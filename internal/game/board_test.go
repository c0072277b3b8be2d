package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStandardBoard(t *testing.T) {
	board := NewStandardBoard()

	assert.Equal(t, 8, board.Width)
	assert.Equal(t, 8, board.Height)
	require.Len(t, board.Pieces, 32)
	assert.Len(t, board.PiecesForPlayer(1), 16)
	assert.Len(t, board.PiecesForPlayer(2), 16)

	king1 := board.King(1)
	require.NotNil(t, king1)
	r, c := king1.GridPosition()
	assert.Equal(t, [2]int{7, 4}, [2]int{r, c})

	king2 := board.King(2)
	require.NotNil(t, king2)
	r, c = king2.GridPosition()
	assert.Equal(t, [2]int{0, 4}, [2]int{r, c})

	for col := 0; col < 8; col++ {
		p := board.PieceAt(6, col)
		require.NotNil(t, p)
		assert.Equal(t, Pawn, p.Type)
		assert.Equal(t, 1, p.Player)
	}
}

func TestNewFourPlayerBoard(t *testing.T) {
	board := NewFourPlayerBoard()

	assert.Equal(t, 12, board.Width)
	require.Len(t, board.Pieces, 64)
	for player := 1; player <= 4; player++ {
		assert.Len(t, board.PiecesForPlayer(player), 16, "player %d", player)
		require.NotNil(t, board.King(player), "player %d king", player)
	}

	// Kings and queens mirror across facing sides so the layout stays
	// rotationally symmetric: north king at col 6, south king at col 5.
	northKing := board.King(4)
	r, c := northKing.GridPosition()
	assert.Equal(t, [2]int{0, 6}, [2]int{r, c})

	southKing := board.King(2)
	r, c = southKing.GridPosition()
	assert.Equal(t, [2]int{11, 5}, [2]int{r, c})

	eastKing := board.King(1)
	r, c = eastKing.GridPosition()
	assert.Equal(t, [2]int{6, 11}, [2]int{r, c})

	westKing := board.King(3)
	r, c = westKing.GridPosition()
	assert.Equal(t, [2]int{5, 0}, [2]int{r, c})
}

func TestIsValidSquare(t *testing.T) {
	t.Run("standard bounds", func(t *testing.T) {
		board := NewEmptyBoard(StandardBoard)
		assert.True(t, board.IsValidSquare(0, 0))
		assert.True(t, board.IsValidSquare(7, 7))
		assert.False(t, board.IsValidSquare(-1, 0))
		assert.False(t, board.IsValidSquare(0, 8))
	})

	t.Run("four player corner cuts", func(t *testing.T) {
		board := NewEmptyBoard(FourPlayerBoard)
		for _, corner := range [][2]int{{0, 0}, {1, 1}, {0, 11}, {1, 10}, {11, 0}, {10, 1}, {11, 11}, {10, 10}} {
			assert.False(t, board.IsValidSquare(corner[0], corner[1]), "corner %v", corner)
		}
		assert.True(t, board.IsValidSquare(0, 2))
		assert.True(t, board.IsValidSquare(2, 0))
		assert.True(t, board.IsValidSquare(5, 5))
	})
}

func TestBoardLookups(t *testing.T) {
	board := NewEmptyBoard(StandardBoard)
	rook := NewPiece(Rook, 1, 4, 4)
	board.AddPiece(rook)

	assert.Same(t, rook, board.PieceByID(rook.ID))
	assert.Nil(t, board.PieceByID("missing"))

	assert.Same(t, rook, board.PieceAt(4, 4))
	assert.Nil(t, board.PieceAt(0, 0))

	t.Run("captured pieces are invisible to PieceAt", func(t *testing.T) {
		rook.Captured = true
		assert.Nil(t, board.PieceAt(4, 4))
		assert.NotNil(t, board.PieceByID(rook.ID), "but still addressable by ID")
		assert.Empty(t, board.ActivePieces())
		rook.Captured = false
	})

	t.Run("remove", func(t *testing.T) {
		assert.True(t, board.RemovePiece(rook.ID))
		assert.False(t, board.RemovePiece(rook.ID))
		assert.Empty(t, board.Pieces)
	})
}

func TestBoardCopy(t *testing.T) {
	board := NewStandardBoard()
	clone := board.Copy()

	require.Len(t, clone.Pieces, len(board.Pieces))
	clone.Pieces[0].Captured = true
	assert.False(t, board.Pieces[0].Captured, "copy must not share pieces")
}

func TestPieceTypeWire(t *testing.T) {
	for _, tc := range []struct {
		pt     PieceType
		letter string
		name   string
	}{
		{Pawn, "P", "pawn"}, {Knight, "N", "knight"}, {Bishop, "B", "bishop"},
		{Rook, "R", "rook"}, {Queen, "Q", "queen"}, {King, "K", "king"},
	} {
		assert.Equal(t, tc.letter, tc.pt.String())
		assert.Equal(t, tc.name, tc.pt.Name())
		parsed, err := ParsePieceType(tc.letter)
		require.NoError(t, err)
		assert.Equal(t, tc.pt, parsed)
	}

	_, err := ParsePieceType("W")
	assert.Error(t, err)
}

func TestBoardTypeWire(t *testing.T) {
	assert.Equal(t, "standard", StandardBoard.String())
	assert.Equal(t, "four_player", FourPlayerBoard.String())

	parsed, err := ParseBoardType("four_player")
	require.NoError(t, err)
	assert.Equal(t, FourPlayerBoard, parsed)

	_, err = ParseBoardType("hex")
	assert.Error(t, err)
}
