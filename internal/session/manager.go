// Package session manages the set of live games: creation, player key
// validation, move processing, and lifecycle cleanup. The tick loops
// that drive these games live in the transport layer; this package is
// purely the bookkeeping around engine state.
package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hailam/kungfuchess/internal/ai"
	"github.com/hailam/kungfuchess/internal/game"
	"github.com/hailam/kungfuchess/internal/lobby"
	"github.com/hailam/kungfuchess/internal/logging"
)

var log = logging.GetLog("session")

// ManagedGame is one live game and its secrets. The manager's lock
// guards the maps; the per-game mutex guards the state itself so a
// slow game cannot stall the whole service.
type ManagedGame struct {
	// Mu serializes all access to State, including the engine calls
	// made by the transport's tick loop.
	Mu sync.Mutex

	State      *game.GameState
	PlayerKeys map[int]string
	AIPlayers  map[int]ai.Driver

	// LoopRunning is owned by the transport layer to ensure a single
	// tick loop per game. Guarded by Mu.
	LoopRunning bool

	CreatedAt    time.Time
	LastActivity time.Time
}

// Touch refreshes the activity clock. Caller holds Mu.
func (g *ManagedGame) Touch() {
	g.LastActivity = time.Now()
}

// MoveResult reports the outcome of a move attempt.
//
// Error codes: game_not_found, invalid_key, game_over,
// game_not_started, piece_not_found, not_your_piece, piece_captured,
// invalid_move.
type MoveResult struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Message  string         `json:"message,omitempty"`
	MoveData map[string]any `json:"move_data,omitempty"`
}

func moveFailure(code, message string) MoveResult {
	return MoveResult{Error: code, Message: message}
}

// LegalMoveGroup is the legal destinations for one piece.
type LegalMoveGroup struct {
	PieceID string   `json:"piece_id"`
	Targets [][2]int `json:"targets"`
}

// Manager owns every live game, keyed by game ID.
type Manager struct {
	mu         sync.Mutex
	games      map[string]*ManagedGame
	tickRateHz int
}

// NewManager creates a game manager. hz <= 0 selects the default tick
// rate.
func NewManager(tickRateHz int) *Manager {
	if tickRateHz <= 0 {
		tickRateHz = game.DefaultTickRateHz
	}
	return &Manager{
		games:      make(map[string]*ManagedGame),
		tickRateHz: tickRateHz,
	}
}

// TickRateHz returns the tick rate new games are created with.
func (m *Manager) TickRateHz() int {
	return m.tickRateHz
}

// CreateGame creates a quick-play game against bots. The human is
// always player 1; every other seat is the requested bot. Returns the
// game ID, the human's player key, and their player number.
func (m *Manager) CreateGame(speed game.Speed, boardType game.BoardType, opponent string) (string, string, int, error) {
	const humanPlayer = 1

	botName := opponent
	if len(botName) > 4 && botName[:4] == "bot:" {
		botName = botName[4:]
	}
	botID := "bot:" + botName

	playerKey := lobby.GenerateGameKey(humanPlayer)
	players := map[int]string{humanPlayer: "u:" + playerKey}
	count := 2
	if boardType == game.FourPlayerBoard {
		count = 4
	}
	for p := 2; p <= count; p++ {
		players[p] = botID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gameID := game.NewGameID()
	for _, taken := m.games[gameID]; taken; _, taken = m.games[gameID] {
		gameID = game.NewGameID()
	}

	state, err := game.NewGame(speed, boardType, players, gameID, m.tickRateHz)
	if err != nil {
		return "", "", 0, err
	}

	drivers := make(map[int]ai.Driver)
	for p := 2; p <= count; p++ {
		drivers[p] = m.newDriver(botName, speed)
	}

	now := time.Now()
	m.games[gameID] = &ManagedGame{
		State:        state,
		PlayerKeys:   map[int]string{humanPlayer: playerKey},
		AIPlayers:    drivers,
		CreatedAt:    now,
		LastActivity: now,
	}

	log.Infof("game %s created: %s %s vs %s", gameID, speed, boardType, botID)
	return gameID, playerKey, humanPlayer, nil
}

// CreateLobbyGame creates a game launched from a lobby, with
// pre-minted keys for the human seats and bots in the AI seats. The
// game ID comes from the lobby handshake so both sides agree on it.
func (m *Manager) CreateLobbyGame(gameID string, speed game.Speed, boardType game.BoardType, playerKeys map[int]string, aiSeats map[int]string) error {
	players := make(map[int]string, len(playerKeys)+len(aiSeats))
	for p, key := range playerKeys {
		players[p] = "u:" + key
	}
	for p, botName := range aiSeats {
		players[p] = "bot:" + botName
	}

	state, err := game.NewGame(speed, boardType, players, gameID, m.tickRateHz)
	if err != nil {
		return err
	}

	drivers := make(map[int]ai.Driver, len(aiSeats))
	for p, botName := range aiSeats {
		drivers[p] = m.newDriver(botName, speed)
	}

	keys := make(map[int]string, len(playerKeys))
	for p, key := range playerKeys {
		keys[p] = key
	}

	now := time.Now()
	m.mu.Lock()
	m.games[gameID] = &ManagedGame{
		State:        state,
		PlayerKeys:   keys,
		AIPlayers:    drivers,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.mu.Unlock()

	log.Infof("game %s created from lobby: %s %s, %d humans, %d bots",
		gameID, speed, boardType, len(playerKeys), len(aiSeats))
	return nil
}

func (m *Manager) newDriver(botName string, speed game.Speed) ai.Driver {
	// Only the dummy driver exists for now; unknown names fall back
	// to it rather than failing the game.
	_ = botName
	return ai.NewDummy(speed, m.tickRateHz, rand.Int63())
}

// Get returns the managed game, refreshing its activity clock.
func (m *Manager) Get(gameID string) *ManagedGame {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	g.Mu.Lock()
	g.Touch()
	g.Mu.Unlock()
	return g
}

// Remove drops a game from the manager.
func (m *Manager) Remove(gameID string) {
	m.mu.Lock()
	delete(m.games, gameID)
	m.mu.Unlock()
}

// ValidatePlayerKey resolves a key to its player number, or 0.
func (m *Manager) ValidatePlayerKey(gameID, playerKey string) int {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok || playerKey == "" {
		return 0
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()
	for player, key := range g.PlayerKeys {
		if key == playerKey {
			return player
		}
	}
	return 0
}

// MakeMove validates and applies a move for the key holder.
func (m *Manager) MakeMove(gameID, playerKey, pieceID string, toRow, toCol int) MoveResult {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return moveFailure("game_not_found", "Game not found")
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.Touch()

	player := 0
	for p, key := range g.PlayerKeys {
		if key == playerKey {
			player = p
			break
		}
	}
	if player == 0 {
		return moveFailure("invalid_key", "Invalid player key")
	}

	state := g.State
	if state.IsFinished() {
		return moveFailure("game_over", "Game is already over")
	}
	if state.Status == game.StatusWaiting {
		return moveFailure("game_not_started", "Game has not started yet")
	}

	move := game.ValidateMove(state, player, pieceID, toRow, toCol)
	if move == nil {
		piece := state.Board.PieceByID(pieceID)
		switch {
		case piece == nil:
			return moveFailure("piece_not_found", "Piece not found")
		case piece.Player != player:
			return moveFailure("not_your_piece", "This piece belongs to another player")
		case piece.Captured:
			return moveFailure("piece_captured", "This piece has been captured")
		default:
			return moveFailure("invalid_move", "Invalid move")
		}
	}

	game.ApplyMove(state, move)

	return MoveResult{
		Success: true,
		MoveData: map[string]any{
			"piece_id":   move.PieceID,
			"path":       move.Path,
			"start_tick": move.StartTick,
		},
	}
}

// MarkReady marks the key holder ready. Returns whether the call was
// accepted and whether it started the game.
func (m *Manager) MarkReady(gameID, playerKey string) (accepted, started bool) {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return false, false
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.Touch()

	player := 0
	for p, key := range g.PlayerKeys {
		if key == playerKey {
			player = p
			break
		}
	}
	if player == 0 {
		return false, false
	}
	if g.State.Status != game.StatusWaiting {
		return false, false
	}

	events := game.SetPlayerReady(g.State, player)
	for _, e := range events {
		if e.Type == game.EventGameStarted {
			return true, true
		}
	}
	return true, false
}

// Resign forfeits the key holder's game.
func (m *Manager) Resign(gameID, playerKey string) []game.Event {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.Touch()

	player := 0
	for p, key := range g.PlayerKeys {
		if key == playerKey {
			player = p
			break
		}
	}
	if player == 0 || !g.State.IsPlaying() {
		return nil
	}
	return game.Resign(g.State, player)
}

// Tick advances a game one step: AI seats move, then the engine ticks.
// Returns the state and the tick's events, or (nil, nil) for an
// unknown game.
func (m *Manager) Tick(gameID string) (*game.GameState, []game.Event) {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()

	state := g.State
	if !state.IsPlaying() {
		return state, nil
	}

	for player, driver := range g.AIPlayers {
		if !driver.ShouldMove(state, player, state.CurrentTick) {
			continue
		}
		lm, ok := driver.GetMove(state, player)
		if !ok {
			continue
		}
		if move := game.ValidateMove(state, player, lm.PieceID, lm.ToRow, lm.ToCol); move != nil {
			game.ApplyMove(state, move)
		}
	}

	return state, game.Tick(state)
}

// LegalMoves lists the key holder's legal moves grouped by piece.
// Returns nil for an unknown game or key.
func (m *Manager) LegalMoves(gameID, playerKey string) []LegalMoveGroup {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := 0
	for p, key := range g.PlayerKeys {
		if key == playerKey {
			player = p
			break
		}
	}
	if player == 0 {
		return nil
	}
	if !g.State.IsPlaying() {
		return []LegalMoveGroup{}
	}

	legal := game.LegalMoves(g.State, player)
	byPiece := make(map[string]*LegalMoveGroup)
	var order []string
	for _, lm := range legal {
		group, ok := byPiece[lm.PieceID]
		if !ok {
			group = &LegalMoveGroup{PieceID: lm.PieceID}
			byPiece[lm.PieceID] = group
			order = append(order, lm.PieceID)
		}
		group.Targets = append(group.Targets, [2]int{lm.ToRow, lm.ToCol})
	}

	out := make([]LegalMoveGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byPiece[id])
	}
	return out
}

// Replay builds the replay document for a game, typically after it
// finishes.
func (m *Manager) Replay(gameID string) *game.Replay {
	m.mu.Lock()
	g, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return game.ReplayFromState(g.State)
}

// CleanupStaleGames drops games idle for longer than maxAge.
func (m *Manager) CleanupStaleGames(maxAge time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var stale []string
	for id, g := range m.games {
		g.Mu.Lock()
		idle := now.Sub(g.LastActivity)
		g.Mu.Unlock()
		if idle > maxAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(m.games, id)
	}
	m.mu.Unlock()

	if len(stale) > 0 {
		log.Infof("cleaned up %d stale games", len(stale))
	}
	return len(stale)
}
