package game

// PathPoint is one waypoint on a move path. Coordinates are usually
// whole squares; knights travel through a half-square midpoint.
type PathPoint struct {
	Row float64 `json:"row"`
	Col float64 `json:"col"`
}

// Move is an active piece movement.
//
// Path includes the starting square as its first point. A move covering
// n path segments takes n*ticks_per_square ticks. ExtraMove links the
// rook's movement during castling so both travel (and get cancelled)
// together.
type Move struct {
	PieceID   string     `json:"piece_id"`
	Path      []PathPoint `json:"path"`
	StartTick int        `json:"start_tick"`
	ExtraMove *Move      `json:"extra_move,omitempty"`
}

// StartPosition returns the first point of the path.
func (m *Move) StartPosition() PathPoint {
	return m.Path[0]
}

// EndPosition returns the final point of the path.
func (m *Move) EndPosition() PathPoint {
	return m.Path[len(m.Path)-1]
}

// NumSquares returns the number of path segments the piece travels.
func (m *Move) NumSquares() int {
	return len(m.Path) - 1
}

// Copy returns a deep copy of the move and its linked extra move.
func (m *Move) Copy() *Move {
	c := &Move{
		PieceID:   m.PieceID,
		Path:      append([]PathPoint(nil), m.Path...),
		StartTick: m.StartTick,
	}
	if m.ExtraMove != nil {
		c.ExtraMove = m.ExtraMove.Copy()
	}
	return c
}

// Cooldown marks a piece as unable to move for a tick window after it
// completes a move.
type Cooldown struct {
	PieceID   string `json:"piece_id"`
	StartTick int    `json:"start_tick"`
	Duration  int    `json:"duration"`
}

// Active reports whether the cooldown is still in effect at the tick.
func (c Cooldown) Active(currentTick int) bool {
	return currentTick < c.StartTick+c.Duration
}

// Axis identifies which coordinate a four-player army advances along.
type Axis uint8

// Axis constants.
const (
	RowAxis Axis = iota
	ColAxis
)

// Orientation describes the movement frame for one seat on the
// four-player board.
type Orientation struct {
	// ForwardRow/ForwardCol is the unit delta for forward pawn movement.
	ForwardRow int
	ForwardCol int
	// PawnHomeAxis is the row or column pawns start on.
	PawnHomeAxis int
	// BackRowAxis is the row or column of the back-row pieces.
	BackRowAxis int
	// PromotionAxis is the row or column that promotes a pawn.
	PromotionAxis int
	// Axis is the coordinate pawns advance along.
	Axis Axis
}

// FourPlayerOrientations maps player number to orientation on the 12x12
// board. Player 1 (east) advances west, 2 (south) advances north,
// 3 (west) advances east, 4 (north) advances south.
var FourPlayerOrientations = map[int]Orientation{
	1: {ForwardRow: 0, ForwardCol: -1, PawnHomeAxis: 10, BackRowAxis: 11, PromotionAxis: 2, Axis: ColAxis},
	2: {ForwardRow: -1, ForwardCol: 0, PawnHomeAxis: 10, BackRowAxis: 11, PromotionAxis: 2, Axis: RowAxis},
	3: {ForwardRow: 0, ForwardCol: 1, PawnHomeAxis: 1, BackRowAxis: 0, PromotionAxis: 9, Axis: ColAxis},
	4: {ForwardRow: 1, ForwardCol: 0, PawnHomeAxis: 1, BackRowAxis: 0, PromotionAxis: 9, Axis: RowAxis},
}

// ComputeMovePath computes the path for a piece to reach a destination,
// or nil if the move is geometrically invalid or blocked. The path
// includes the starting square.
//
// Enemy pieces never block a path; running into them is what captures
// are made of. Friendly pieces block non-knights anywhere on the path,
// and every piece is blocked by squares a friendly move will land on.
func ComputeMovePath(piece *Piece, board *Board, toRow, toCol int, activeMoves []*Move) []PathPoint {
	fromRow, fromCol := piece.GridPosition()

	if fromRow == toRow && fromCol == toCol {
		return nil
	}
	if !board.IsValidSquare(toRow, toCol) {
		return nil
	}

	path := computePiecePath(piece, board, fromRow, fromCol, toRow, toCol, activeMoves)
	if path == nil {
		return nil
	}

	if piece.Type == Knight {
		if !knightDestinationValid(path, board, piece.Player, activeMoves) {
			return nil
		}
	} else if !pathClear(path, board, piece.Player, activeMoves) {
		return nil
	}

	return path
}

func computePiecePath(piece *Piece, board *Board, fromRow, fromCol, toRow, toCol int, activeMoves []*Move) []PathPoint {
	switch piece.Type {
	case Pawn:
		return computePawnPath(piece, board, fromRow, fromCol, toRow, toCol, activeMoves)
	case Knight:
		return computeKnightPath(fromRow, fromCol, toRow, toCol)
	case Bishop:
		return computeBishopPath(fromRow, fromCol, toRow, toCol)
	case Rook:
		return computeRookPath(fromRow, fromCol, toRow, toCol)
	case Queen:
		return computeQueenPath(fromRow, fromCol, toRow, toCol)
	case King:
		return computeKingPath(fromRow, fromCol, toRow, toCol)
	}
	return nil
}

func computePawnPath(piece *Piece, board *Board, fromRow, fromCol, toRow, toCol int, activeMoves []*Move) []PathPoint {
	if board.Type == StandardBoard {
		return computePawnPathStandard(piece, board, fromRow, fromCol, toRow, toCol, activeMoves)
	}
	return computePawnPath4Player(piece, board, fromRow, fromCol, toRow, toCol, activeMoves)
}

func computePawnPathStandard(piece *Piece, board *Board, fromRow, fromCol, toRow, toCol int, activeMoves []*Move) []PathPoint {
	// Player 1 moves up (decreasing row), player 2 down.
	direction := 1
	startRow := 1
	if piece.Player == 1 {
		direction = -1
		startRow = 6
	}

	rowDiff := toRow - fromRow
	colDiff := toCol - fromCol

	if colDiff == 0 {
		// Straight moves cannot capture; the destination must be empty.
		if rowDiff == direction {
			if board.PieceAt(toRow, toCol) != nil {
				return nil
			}
			return []PathPoint{point(fromRow, fromCol), point(toRow, toCol)}
		}
		if rowDiff == 2*direction && fromRow == startRow {
			midRow := fromRow + direction
			if board.PieceAt(midRow, fromCol) != nil {
				return nil
			}
			if board.PieceAt(toRow, toCol) != nil {
				return nil
			}
			return []PathPoint{point(fromRow, fromCol), point(midRow, fromCol), point(toRow, toCol)}
		}
	}

	// Diagonal capture needs a stationary enemy at the destination.
	if abs(colDiff) == 1 && rowDiff == direction {
		target := board.PieceAt(toRow, toCol)
		if target == nil || target.Player == piece.Player {
			return nil
		}
		if IsPieceMoving(target.ID, activeMoves) {
			return nil
		}
		return []PathPoint{point(fromRow, fromCol), point(toRow, toCol)}
	}

	return nil
}

func computePawnPath4Player(piece *Piece, board *Board, fromRow, fromCol, toRow, toCol int, activeMoves []*Move) []PathPoint {
	orient, ok := FourPlayerOrientations[piece.Player]
	if !ok {
		return nil
	}

	rowDiff := toRow - fromRow
	colDiff := toCol - fromCol

	var atStart bool
	var forwardDiff, lateralDiff, forwardDir int
	if orient.Axis == ColAxis {
		atStart = fromCol == orient.PawnHomeAxis
		forwardDiff = colDiff
		lateralDiff = rowDiff
		forwardDir = orient.ForwardCol
	} else {
		atStart = fromRow == orient.PawnHomeAxis
		forwardDiff = rowDiff
		lateralDiff = colDiff
		forwardDir = orient.ForwardRow
	}

	if lateralDiff == 0 {
		if forwardDiff == forwardDir {
			if board.PieceAt(toRow, toCol) != nil {
				return nil
			}
			return []PathPoint{point(fromRow, fromCol), point(toRow, toCol)}
		}
		if forwardDiff == 2*forwardDir && atStart {
			midRow := fromRow + orient.ForwardRow
			midCol := fromCol + orient.ForwardCol
			if board.PieceAt(midRow, midCol) != nil {
				return nil
			}
			if board.PieceAt(toRow, toCol) != nil {
				return nil
			}
			return []PathPoint{point(fromRow, fromCol), point(midRow, midCol), point(toRow, toCol)}
		}
	}

	if forwardDiff == forwardDir && abs(lateralDiff) == 1 {
		target := board.PieceAt(toRow, toCol)
		if target == nil || target.Player == piece.Player {
			return nil
		}
		if IsPieceMoving(target.ID, activeMoves) {
			return nil
		}
		return []PathPoint{point(fromRow, fromCol), point(toRow, toCol)}
	}

	return nil
}

// computeKnightPath builds the three-point knight path: start, the exact
// midpoint (half-square coordinates), and the destination. Two segments
// means the jump takes 2*ticks_per_square ticks.
func computeKnightPath(fromRow, fromCol, toRow, toCol int) []PathPoint {
	rowDiff := abs(toRow - fromRow)
	colDiff := abs(toCol - fromCol)

	if (rowDiff == 2 && colDiff == 1) || (rowDiff == 1 && colDiff == 2) {
		mid := PathPoint{
			Row: (float64(fromRow) + float64(toRow)) / 2,
			Col: (float64(fromCol) + float64(toCol)) / 2,
		}
		return []PathPoint{point(fromRow, fromCol), mid, point(toRow, toCol)}
	}

	return nil
}

func computeBishopPath(fromRow, fromCol, toRow, toCol int) []PathPoint {
	rowDiff := toRow - fromRow
	colDiff := toCol - fromCol
	if abs(rowDiff) != abs(colDiff) || rowDiff == 0 {
		return nil
	}
	return buildLinearPath(fromRow, fromCol, toRow, toCol)
}

func computeRookPath(fromRow, fromCol, toRow, toCol int) []PathPoint {
	rowDiff := toRow - fromRow
	colDiff := toCol - fromCol
	if rowDiff != 0 && colDiff != 0 {
		return nil
	}
	if rowDiff == 0 && colDiff == 0 {
		return nil
	}
	return buildLinearPath(fromRow, fromCol, toRow, toCol)
}

func computeQueenPath(fromRow, fromCol, toRow, toCol int) []PathPoint {
	rowDiff := toRow - fromRow
	colDiff := toCol - fromCol

	if abs(rowDiff) == abs(colDiff) && rowDiff != 0 {
		return buildLinearPath(fromRow, fromCol, toRow, toCol)
	}
	if (rowDiff == 0) != (colDiff == 0) {
		return buildLinearPath(fromRow, fromCol, toRow, toCol)
	}
	return nil
}

func computeKingPath(fromRow, fromCol, toRow, toCol int) []PathPoint {
	rowDiff := abs(toRow - fromRow)
	colDiff := abs(toCol - fromCol)
	if rowDiff <= 1 && colDiff <= 1 && (rowDiff > 0 || colDiff > 0) {
		return []PathPoint{point(fromRow, fromCol), point(toRow, toCol)}
	}
	return nil
}

// buildLinearPath lists every square from start to end along a straight
// or diagonal line.
func buildLinearPath(fromRow, fromCol, toRow, toCol int) []PathPoint {
	path := []PathPoint{point(fromRow, fromCol)}

	rowDir := sign(toRow - fromRow)
	colDir := sign(toCol - fromCol)

	row, col := fromRow, fromCol
	for row != toRow || col != toCol {
		row += rowDir
		col += colDir
		path = append(path, point(row, col))
	}
	return path
}

// pathClear checks every square after the start for friendly blockers:
// stationary friendly pieces and the landing squares of friendly moves
// in flight. Enemies never block.
func pathClear(path []PathPoint, board *Board, player int, activeMoves []*Move) bool {
	ownDestinations := make(map[[2]int]bool)
	for _, m := range activeMoves {
		moving := board.PieceByID(m.PieceID)
		if moving != nil && moving.Player == player {
			end := m.EndPosition()
			ownDestinations[[2]int{int(end.Row), int(end.Col)}] = true
		}
	}

	for _, pt := range path[1:] {
		row, col := int(pt.Row), int(pt.Col)

		if at := board.PieceAt(row, col); at != nil && at.Player == player {
			if !IsPieceMoving(at.ID, activeMoves) {
				return false
			}
		}
		if ownDestinations[[2]int{row, col}] {
			return false
		}
	}
	return true
}

// knightDestinationValid checks only the landing square: knights jump
// over everything but cannot land on (or race) a friendly piece.
func knightDestinationValid(path []PathPoint, board *Board, player int, activeMoves []*Move) bool {
	end := path[len(path)-1]
	row, col := int(end.Row), int(end.Col)

	if at := board.PieceAt(row, col); at != nil && at.Player == player {
		if !IsPieceMoving(at.ID, activeMoves) {
			return false
		}
	}

	for _, m := range activeMoves {
		moving := board.PieceByID(m.PieceID)
		if moving != nil && moving.Player == player {
			mEnd := m.EndPosition()
			if int(mEnd.Row) == row && int(mEnd.Col) == col {
				return false
			}
		}
	}
	return true
}

// ShouldPromotePawn reports whether a pawn that ended its move at the
// given square promotes.
func ShouldPromotePawn(piece *Piece, board *Board, endRow, endCol int) bool {
	if piece.Type != Pawn {
		return false
	}

	if board.Type == StandardBoard {
		promotionRow := 7
		if piece.Player == 1 {
			promotionRow = 0
		}
		return endRow == promotionRow
	}

	orient, ok := FourPlayerOrientations[piece.Player]
	if !ok {
		return false
	}
	if orient.Axis == ColAxis {
		return endCol == orient.PromotionAxis
	}
	return endRow == orient.PromotionAxis
}

// CheckCastling checks whether moving the king to the given square is a
// valid castle and returns the linked king move (rook attached as the
// extra move), or nil.
//
// Requirements: neither piece has moved, the rook is neither traveling
// nor on cooldown, the squares between them are empty, and no active
// move ends inside the gap. The king travels exactly two squares.
func CheckCastling(piece *Piece, board *Board, toRow, toCol int, activeMoves []*Move, cooldowns []Cooldown, currentTick int) *Move {
	if piece.Type != King || piece.Moved {
		return nil
	}

	if board.Type == StandardBoard {
		return checkCastlingHorizontal(piece, board, toRow, toCol, activeMoves, cooldowns, currentTick, 7, 5, 0, 3)
	}

	orient, ok := FourPlayerOrientations[piece.Player]
	if !ok {
		return nil
	}
	if orient.Axis == RowAxis {
		// South and north seats castle along their back row. Rooks sit
		// at cols 2 and 9; the rook lands one square inside the king.
		return checkCastlingHorizontal(piece, board, toRow, toCol, activeMoves, cooldowns, currentTick, 9, toCol-1, 2, toCol+1)
	}
	// East and west seats castle vertically along their back column.
	return checkCastlingVertical(piece, board, toRow, toCol, activeMoves, cooldowns, currentTick)
}

func checkCastlingHorizontal(piece *Piece, board *Board, toRow, toCol int, activeMoves []*Move, cooldowns []Cooldown, currentTick, kingsideRookCol, kingsideNewCol, queensideRookCol, queensideNewCol int) *Move {
	fromRow, fromCol := piece.GridPosition()

	if toRow != fromRow {
		return nil
	}
	colDiff := toCol - fromCol
	if abs(colDiff) != 2 {
		return nil
	}

	rookCol, newRookCol := queensideRookCol, queensideNewCol
	if colDiff > 0 {
		rookCol, newRookCol = kingsideRookCol, kingsideNewCol
	}

	rook := board.PieceAt(fromRow, rookCol)
	if rook == nil || rook.Type != Rook || rook.Player != piece.Player || rook.Moved {
		return nil
	}
	if IsPieceMoving(rook.ID, activeMoves) {
		return nil
	}
	if IsPieceOnCooldown(rook.ID, cooldowns, currentTick) {
		return nil
	}

	startCol := min(fromCol, rookCol) + 1
	endCol := max(fromCol, rookCol)
	for col := startCol; col < endCol; col++ {
		if board.PieceAt(fromRow, col) != nil {
			return nil
		}
	}
	for _, m := range activeMoves {
		end := m.EndPosition()
		if int(end.Row) == fromRow && int(end.Col) >= startCol && int(end.Col) < endCol {
			return nil
		}
	}

	step := sign(colDiff)
	kingPath := []PathPoint{point(fromRow, fromCol), point(fromRow, fromCol+step), point(fromRow, fromCol+2*step)}
	rookPath := []PathPoint{point(fromRow, rookCol), point(fromRow, newRookCol)}

	kingMove := &Move{PieceID: piece.ID, Path: kingPath}
	kingMove.ExtraMove = &Move{PieceID: rook.ID, Path: rookPath}
	return kingMove
}

func checkCastlingVertical(piece *Piece, board *Board, toRow, toCol int, activeMoves []*Move, cooldowns []Cooldown, currentTick int) *Move {
	fromRow, fromCol := piece.GridPosition()

	if toCol != fromCol {
		return nil
	}
	rowDiff := toRow - fromRow
	if abs(rowDiff) != 2 {
		return nil
	}

	// Rooks sit at rows 2 and 9 for the east and west seats.
	var rookRow, newRookRow int
	if rowDiff > 0 {
		rookRow, newRookRow = 9, toRow-1
	} else {
		rookRow, newRookRow = 2, toRow+1
	}

	rook := board.PieceAt(rookRow, fromCol)
	if rook == nil || rook.Type != Rook || rook.Player != piece.Player || rook.Moved {
		return nil
	}
	if IsPieceMoving(rook.ID, activeMoves) {
		return nil
	}
	if IsPieceOnCooldown(rook.ID, cooldowns, currentTick) {
		return nil
	}

	startRow := min(fromRow, rookRow) + 1
	endRow := max(fromRow, rookRow)
	for row := startRow; row < endRow; row++ {
		if board.PieceAt(row, fromCol) != nil {
			return nil
		}
	}
	for _, m := range activeMoves {
		end := m.EndPosition()
		if int(end.Col) == fromCol && int(end.Row) >= startRow && int(end.Row) < endRow {
			return nil
		}
	}

	step := sign(rowDiff)
	kingPath := []PathPoint{point(fromRow, fromCol), point(fromRow+step, fromCol), point(fromRow+2*step, fromCol)}
	rookPath := []PathPoint{point(rookRow, fromCol), point(newRookRow, fromCol)}

	kingMove := &Move{PieceID: piece.ID, Path: kingPath}
	kingMove.ExtraMove = &Move{PieceID: rook.ID, Path: rookPath}
	return kingMove
}

func point(row, col int) PathPoint {
	return PathPoint{Row: float64(row), Col: float64(col)}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
