package lobby

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/hailam/kungfuchess/internal/logging"
)

var log = logging.GetLog("lobby")

// Code characters exclude the ambiguous O/0 and I/1/L.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// DefaultGracePeriod is how long a disconnected player keeps their slot
// before being swept out of the lobby.
const DefaultGracePeriod = 60 * time.Second

// Error is a lobby operation failure with a machine-readable code.
//
// Codes: not_found, game_in_progress, lobby_full, invalid_key,
// invalid_action, invalid_state, not_host, invalid_settings, not_ready.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Store persists lobbies so they survive a restart. Implementations
// must be safe for concurrent use; the manager never calls them while
// holding its lock.
type Store interface {
	SaveLobby(l *Lobby) error
	DeleteLobby(code string) error
	ListLobbies() ([]*Lobby, error)
}

type slotRef struct {
	code string
	slot int
}

// Manager owns every active lobby. All state lives in memory guarded by
// one mutex; the store only exists so a restart can recover rooms.
//
// Player keys are minted per join and never persisted. GenerateGameKey
// is reused at game start so lobby keys and game keys stay distinct
// secrets.
type Manager struct {
	mu    sync.Mutex
	store Store
	grace time.Duration
	now   func() time.Time

	lobbies       map[string]*Lobby
	playerKeys    map[string]map[int]string // code -> slot -> key
	keyToSlot     map[string]slotRef
	playerToLobby map[string]slotRef // player id -> (code, slot)
	gameToLobby   map[string]string  // game id -> code
	nextLobbyID   int
}

// NewManager creates a lobby manager. The store may be nil for
// memory-only operation; grace <= 0 selects DefaultGracePeriod.
func NewManager(store Store, grace time.Duration) *Manager {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Manager{
		store:         store,
		grace:         grace,
		now:           time.Now,
		lobbies:       make(map[string]*Lobby),
		playerKeys:    make(map[string]map[int]string),
		keyToSlot:     make(map[string]slotRef),
		playerToLobby: make(map[string]slotRef),
		gameToLobby:   make(map[string]string),
		nextLobbyID:   1,
	}
}

// Restore reloads persisted lobbies after a restart. Player keys are
// not persisted, so every human comes back disconnected and must rejoin
// within the grace period or be swept.
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	saved, err := m.store.ListLobbies()
	if err != nil {
		return fmt.Errorf("restore lobbies: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, l := range saved {
		if l.Status == StatusInGame {
			// The game itself did not survive the restart.
			l.Status = StatusFinished
			l.CurrentGameID = ""
			t := now
			l.GameFinishedAt = &t
		}
		for _, p := range l.Players {
			if !p.IsAI {
				p.IsConnected = false
				t := now
				p.DisconnectedAt = &t
			}
		}
		m.lobbies[l.Code] = l
		if l.ID >= m.nextLobbyID {
			m.nextLobbyID = l.ID + 1
		}
	}
	if len(saved) > 0 {
		log.Infof("restored %d lobbies from store", len(saved))
	}
	return nil
}

func generateCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}

func generatePlayerKey(slot int) string {
	return fmt.Sprintf("s%d_%s", slot, randomToken())
}

// GenerateGameKey mints a per-game secret for a player seat.
func GenerateGameKey(player int) string {
	return fmt.Sprintf("p%d_%s", player, randomToken())
}

func randomToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func aiUsername(aiType string) string {
	name := aiType
	if len(name) > 4 && name[:4] == "bot:" {
		name = name[4:]
	}
	return fmt.Sprintf("AI (%s)", name)
}

// CreateLobby creates a new lobby with the caller as host in slot 1 and
// returns the lobby plus the host's player key. If the caller is
// already in another lobby they leave it first (one lobby per player).
// With addAI set, the remaining slots are filled with AI players.
func (m *Manager) CreateLobby(hostUserID, hostUsername string, settings *Settings, addAI bool, aiType string, playerID string) (*Lobby, string, error) {
	if aiType == "" {
		aiType = "bot:dummy"
	}
	s := Settings{Speed: 0, PlayerCount: 2}
	if settings != nil {
		s = *settings
	}
	if s.PlayerCount != 2 && s.PlayerCount != 4 {
		return nil, "", newError("invalid_settings", "Player count must be 2 or 4")
	}

	m.mu.Lock()
	if playerID != "" {
		if ref, ok := m.playerToLobby[playerID]; ok {
			log.Infof("player %s leaving lobby %s to create a new one", playerID, ref.code)
			m.leaveLocked(ref.code, ref.slot, playerID)
		}
	}

	code := generateCode()
	for _, taken := m.lobbies[code]; taken; _, taken = m.lobbies[code] {
		code = generateCode()
	}

	l := &Lobby{
		ID:        m.nextLobbyID,
		Code:      code,
		HostSlot:  1,
		Settings:  s,
		Players:   make(map[int]*Player),
		Status:    StatusWaiting,
		CreatedAt: m.now(),
	}
	m.nextLobbyID++

	l.Players[1] = &Player{
		Slot:        1,
		UserID:      hostUserID,
		Username:    hostUsername,
		IsConnected: true,
	}
	hostKey := generatePlayerKey(1)
	m.playerKeys[code] = map[int]string{1: hostKey}
	m.keyToSlot[hostKey] = slotRef{code, 1}
	if playerID != "" {
		m.playerToLobby[playerID] = slotRef{code, 1}
	}

	if addAI && !s.IsRanked {
		for slot := 2; slot <= s.PlayerCount; slot++ {
			l.Players[slot] = &Player{
				Slot:        slot,
				Username:    aiUsername(aiType),
				IsAI:        true,
				AIType:      aiType,
				IsConnected: true,
			}
		}
	}

	m.lobbies[code] = l
	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("lobby %s created by %s", code, hostUsername)
	m.persist(snapshot)
	return snapshot, hostKey, nil
}

// JoinLobby adds a player to an existing lobby and returns the lobby,
// their key, and their slot. Joining a lobby the player already
// occupies returns the existing seat. preferredSlot of 0 means any.
func (m *Manager) JoinLobby(code, userID, username, playerID string, preferredSlot int) (*Lobby, string, int, error) {
	m.mu.Lock()

	l, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		return nil, "", 0, newError("not_found", "Lobby not found")
	}
	if l.Status == StatusInGame {
		m.mu.Unlock()
		return nil, "", 0, newError("game_in_progress", "Game is already in progress")
	}
	if l.IsFull() {
		m.mu.Unlock()
		return nil, "", 0, newError("lobby_full", "Lobby is full")
	}

	if playerID != "" {
		if ref, ok := m.playerToLobby[playerID]; ok {
			if ref.code == code {
				if key, ok := m.playerKeys[code][ref.slot]; ok {
					snapshot := l.Copy()
					m.mu.Unlock()
					return snapshot, key, ref.slot, nil
				}
				// Key lost somehow; fall through and rejoin.
			} else {
				log.Infof("player %s leaving lobby %s to join %s", playerID, ref.code, code)
				m.leaveLocked(ref.code, ref.slot, playerID)
			}
		}
	}

	slot := 0
	if preferredSlot > 0 {
		if _, taken := l.Players[preferredSlot]; !taken && preferredSlot <= l.Settings.PlayerCount {
			slot = preferredSlot
		}
	}
	if slot == 0 {
		slot = l.NextFreeSlot()
	}
	if slot == 0 {
		m.mu.Unlock()
		return nil, "", 0, newError("lobby_full", "Lobby is full")
	}

	l.Players[slot] = &Player{
		Slot:        slot,
		UserID:      userID,
		Username:    username,
		IsConnected: true,
	}
	key := generatePlayerKey(slot)
	if m.playerKeys[code] == nil {
		m.playerKeys[code] = make(map[int]string)
	}
	m.playerKeys[code][slot] = key
	m.keyToSlot[key] = slotRef{code, slot}
	if playerID != "" {
		m.playerToLobby[playerID] = slotRef{code, slot}
	}

	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("player %s joined lobby %s in slot %d", username, code, slot)
	m.persist(snapshot)
	return snapshot, key, slot, nil
}

// LeaveLobby removes a player. Returns the updated lobby, or nil when
// the key was invalid or the lobby was deleted with the last human.
func (m *Manager) LeaveLobby(code, playerKey, playerID string) *Lobby {
	m.mu.Lock()
	ref, ok := m.keyToSlot[playerKey]
	if !ok || ref.code != code {
		m.mu.Unlock()
		return nil
	}
	l := m.leaveLocked(code, ref.slot, playerID)
	var snapshot *Lobby
	if l != nil {
		snapshot = l.Copy()
	}
	m.mu.Unlock()

	if snapshot == nil {
		m.unpersist(code)
	} else {
		m.persist(snapshot)
	}
	return snapshot
}

// leaveLocked removes the occupant of a slot. Deletes the lobby when no
// humans remain outside a game, transfers host to the lowest human slot
// otherwise. Caller holds the lock; returns nil if the lobby is gone.
func (m *Manager) leaveLocked(code string, slot int, playerID string) *Lobby {
	l, ok := m.lobbies[code]
	if !ok {
		return nil
	}
	p, ok := l.Players[slot]
	if !ok {
		return l
	}

	wasHost := l.HostSlot == slot
	delete(l.Players, slot)

	if keys, ok := m.playerKeys[code]; ok {
		if key, ok := keys[slot]; ok {
			delete(keys, slot)
			delete(m.keyToSlot, key)
		}
	}
	if playerID != "" {
		delete(m.playerToLobby, playerID)
	}

	log.Infof("player %s left lobby %s (slot %d)", p.Username, code, slot)

	humans := l.HumanPlayers()
	if len(humans) == 0 && l.Status != StatusInGame {
		m.deleteLocked(code)
		return nil
	}
	if wasHost && len(humans) > 0 {
		newHost := humans[0].Slot
		for _, hp := range humans {
			if hp.Slot < newHost {
				newHost = hp.Slot
			}
		}
		l.HostSlot = newHost
		log.Infof("host of lobby %s transferred to slot %d", code, newHost)
	}
	return l
}

// SetReady updates a human player's ready flag.
func (m *Manager) SetReady(code, playerKey string, ready bool) (*Lobby, error) {
	m.mu.Lock()
	l, p, lerr := m.resolvePlayerLocked(code, playerKey)
	if lerr != nil {
		m.mu.Unlock()
		return nil, lerr
	}
	if p.IsAI {
		m.mu.Unlock()
		return nil, newError("invalid_action", "Cannot change AI ready state")
	}
	if l.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Cannot change ready state while in game")
	}
	p.IsReady = ready
	snapshot := l.Copy()
	m.mu.Unlock()

	m.persist(snapshot)
	return snapshot, nil
}

// UpdateSettings replaces the lobby settings (host only). Any real
// change unreadies every human so they re-confirm under the new rules.
func (m *Manager) UpdateSettings(code, playerKey string, settings Settings) (*Lobby, error) {
	m.mu.Lock()
	l, _, lerr := m.resolveHostLocked(code, playerKey)
	if lerr != nil {
		m.mu.Unlock()
		return nil, lerr
	}
	if l.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Cannot change settings while in game")
	}
	if settings.PlayerCount != 2 && settings.PlayerCount != 4 {
		m.mu.Unlock()
		return nil, newError("invalid_settings", "Player count must be 2 or 4")
	}
	if settings.PlayerCount < len(l.Players) {
		m.mu.Unlock()
		return nil, newError("invalid_settings", "Cannot reduce player count below current players")
	}
	if settings.IsRanked {
		for _, p := range l.Players {
			if p.IsAI {
				m.mu.Unlock()
				return nil, newError("invalid_settings", "Cannot enable ranked with AI players")
			}
		}
	}

	changed := settings != l.Settings
	l.Settings = settings
	if changed {
		for _, p := range l.Players {
			if !p.IsAI {
				p.IsReady = false
			}
		}
		log.Infof("settings updated in lobby %s, players unreadied", code)
	}
	snapshot := l.Copy()
	m.mu.Unlock()

	m.persist(snapshot)
	return snapshot, nil
}

// KickPlayer removes a human player from the lobby (host only).
func (m *Manager) KickPlayer(code, hostKey string, targetSlot int) (*Lobby, error) {
	m.mu.Lock()
	l, slot, lerr := m.resolveHostLocked(code, hostKey)
	if lerr != nil {
		m.mu.Unlock()
		return nil, lerr
	}
	if targetSlot == slot {
		m.mu.Unlock()
		return nil, newError("invalid_action", "Cannot kick yourself")
	}
	target, ok := l.Players[targetSlot]
	if !ok {
		m.mu.Unlock()
		return nil, newError("not_found", "Player not found")
	}
	if target.IsAI {
		m.mu.Unlock()
		return nil, newError("invalid_action", "Use remove_ai to remove AI players")
	}
	if l.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Cannot kick players while in game")
	}

	delete(l.Players, targetSlot)
	if keys, ok := m.playerKeys[code]; ok {
		if key, ok := keys[targetSlot]; ok {
			delete(keys, targetSlot)
			delete(m.keyToSlot, key)
		}
	}
	for pid, ref := range m.playerToLobby {
		if ref.code == code && ref.slot == targetSlot {
			delete(m.playerToLobby, pid)
			break
		}
	}
	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("player %s kicked from lobby %s", target.Username, code)
	m.persist(snapshot)
	return snapshot, nil
}

// AddAI fills the next free slot with an AI player (host only, never in
// ranked lobbies).
func (m *Manager) AddAI(code, hostKey, aiType string) (*Lobby, error) {
	if aiType == "" {
		aiType = "bot:dummy"
	}
	m.mu.Lock()
	l, _, lerr := m.resolveHostLocked(code, hostKey)
	if lerr != nil {
		m.mu.Unlock()
		return nil, lerr
	}
	if l.IsFull() {
		m.mu.Unlock()
		return nil, newError("lobby_full", "Lobby is full")
	}
	if l.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Cannot add AI while in game")
	}
	if l.Settings.IsRanked {
		m.mu.Unlock()
		return nil, newError("invalid_action", "Cannot add AI to ranked games")
	}
	slot := l.NextFreeSlot()
	if slot == 0 {
		m.mu.Unlock()
		return nil, newError("lobby_full", "Lobby is full")
	}
	l.Players[slot] = &Player{
		Slot:        slot,
		Username:    aiUsername(aiType),
		IsAI:        true,
		AIType:      aiType,
		IsConnected: true,
	}
	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("AI %s added to lobby %s in slot %d", aiType, code, slot)
	m.persist(snapshot)
	return snapshot, nil
}

// RemoveAI removes an AI player from a slot (host only).
func (m *Manager) RemoveAI(code, hostKey string, targetSlot int) (*Lobby, error) {
	m.mu.Lock()
	l, _, lerr := m.resolveHostLocked(code, hostKey)
	if lerr != nil {
		m.mu.Unlock()
		return nil, lerr
	}
	target, ok := l.Players[targetSlot]
	if !ok {
		m.mu.Unlock()
		return nil, newError("not_found", "Player not found")
	}
	if !target.IsAI {
		m.mu.Unlock()
		return nil, newError("invalid_action", "Player is not an AI")
	}
	if l.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Cannot remove AI while in game")
	}
	delete(l.Players, targetSlot)
	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("AI removed from lobby %s slot %d", code, targetSlot)
	m.persist(snapshot)
	return snapshot, nil
}

// StartGame transitions the lobby into a game (host only). The lobby
// must be full with every human ready; the host is auto-readied by
// asking to start. Returns the new game ID plus fresh per-game keys for
// each human slot. The committed game ID must be minted by the caller
// beforehand so the lobby never points at a game that failed to create.
func (m *Manager) StartGame(code, hostKey, gameID string) (map[int]string, error) {
	m.mu.Lock()
	l, slot, lerr := m.resolveHostLocked(code, hostKey)
	if lerr != nil {
		m.mu.Unlock()
		return nil, lerr
	}
	if l.Status != StatusWaiting {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Game already in progress or finished")
	}
	if host, ok := l.Players[slot]; ok && !host.IsAI {
		host.IsReady = true
	}
	if !l.IsFull() {
		m.mu.Unlock()
		return nil, newError("not_ready", "Waiting for more players")
	}
	if !l.AllReady() {
		m.mu.Unlock()
		return nil, newError("not_ready", "Not all players are ready")
	}

	l.Status = StatusInGame
	l.GamesPlayed++
	l.CurrentGameID = gameID
	m.gameToLobby[gameID] = code

	gameKeys := make(map[int]string)
	for playerSlot, p := range l.Players {
		if !p.IsAI {
			gameKeys[playerSlot] = GenerateGameKey(playerSlot)
		}
	}
	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("game %s starting from lobby %s", gameID, code)
	m.persist(snapshot)
	return gameKeys, nil
}

// FindLobbyByGame returns the code of the lobby that launched a game.
func (m *Manager) FindLobbyByGame(gameID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.gameToLobby[gameID]
	return code, ok
}

// EndGame marks the lobby's game as finished and unreadies the humans
// so a rematch needs fresh confirmation. Returns nil if the lobby is
// unknown.
func (m *Manager) EndGame(code string) *Lobby {
	m.mu.Lock()
	l, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if l.CurrentGameID != "" {
		delete(m.gameToLobby, l.CurrentGameID)
	}
	l.Status = StatusFinished
	l.CurrentGameID = ""
	t := m.now()
	l.GameFinishedAt = &t
	for _, p := range l.Players {
		if !p.IsAI {
			p.IsReady = false
		}
	}
	snapshot := l.Copy()
	m.mu.Unlock()

	log.Infof("game ended in lobby %s", code)
	m.persist(snapshot)
	return snapshot
}

// ReturnToLobby moves a finished lobby back to the waiting state.
func (m *Manager) ReturnToLobby(code string) (*Lobby, error) {
	m.mu.Lock()
	l, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		return nil, newError("not_found", "Lobby not found")
	}
	if l.Status == StatusInGame {
		m.mu.Unlock()
		return nil, newError("invalid_state", "Game is still in progress")
	}
	l.Status = StatusWaiting
	snapshot := l.Copy()
	m.mu.Unlock()

	m.persist(snapshot)
	return snapshot, nil
}

// GetLobby returns a copy of a lobby, or nil.
func (m *Manager) GetLobby(code string) *Lobby {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[code]
	if !ok {
		return nil
	}
	return l.Copy()
}

// PublicLobbyFilter narrows GetPublicLobbies. Zero values match all.
type PublicLobbyFilter struct {
	Speed       string
	PlayerCount int
}

// GetPublicLobbies lists public lobbies in the waiting state.
func (m *Manager) GetPublicLobbies(filter PublicLobbyFilter) []*Lobby {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Lobby
	for _, l := range m.lobbies {
		if !l.Settings.IsPublic || l.Status != StatusWaiting {
			continue
		}
		if filter.Speed != "" && l.Settings.Speed.String() != filter.Speed {
			continue
		}
		if filter.PlayerCount != 0 && l.Settings.PlayerCount != filter.PlayerCount {
			continue
		}
		out = append(out, l.Copy())
	}
	return out
}

// ValidatePlayerKey resolves a player key to its slot in the lobby.
func (m *Manager) ValidatePlayerKey(code, playerKey string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.keyToSlot[playerKey]
	if !ok || ref.code != code {
		return 0, false
	}
	return ref.slot, true
}

// DeleteLobby removes a lobby and all its bookkeeping.
func (m *Manager) DeleteLobby(code string) bool {
	m.mu.Lock()
	deleted := m.deleteLocked(code)
	m.mu.Unlock()

	if deleted {
		m.unpersist(code)
	}
	return deleted
}

func (m *Manager) deleteLocked(code string) bool {
	if _, ok := m.lobbies[code]; !ok {
		return false
	}
	for _, key := range m.playerKeys[code] {
		delete(m.keyToSlot, key)
	}
	delete(m.playerKeys, code)
	for pid, ref := range m.playerToLobby {
		if ref.code == code {
			delete(m.playerToLobby, pid)
		}
	}
	delete(m.lobbies, code)
	log.Infof("lobby %s deleted", code)
	return true
}

// FindPlayerLobby returns where a tracked player currently sits.
func (m *Manager) FindPlayerLobby(playerID string) (code string, slot int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.playerToLobby[playerID]
	return ref.code, ref.slot, ok
}

// SetConnected records a human player's connection state. Disconnecting
// stamps the grace-period clock; reconnecting clears it. Returns the
// updated lobby, or nil if lobby or slot is unknown.
func (m *Manager) SetConnected(code string, slot int, connected bool) *Lobby {
	m.mu.Lock()
	l, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	p, ok := l.Players[slot]
	if !ok || p.IsAI {
		m.mu.Unlock()
		return nil
	}
	p.IsConnected = connected
	if connected {
		p.DisconnectedAt = nil
	} else {
		t := m.now()
		p.DisconnectedAt = &t
	}
	snapshot := l.Copy()
	m.mu.Unlock()

	m.persist(snapshot)
	return snapshot
}

// CleanupDisconnectedPlayers sweeps out humans whose disconnection
// outlived the grace period. Only waiting lobbies are swept; mid-game
// seats are kept for reconnection. Returns the swept slots and the
// resulting lobby (nil when the sweep deleted it).
func (m *Manager) CleanupDisconnectedPlayers(code string) ([]int, *Lobby) {
	m.mu.Lock()
	l, ok := m.lobbies[code]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	if l.Status != StatusWaiting {
		snapshot := l.Copy()
		m.mu.Unlock()
		return nil, snapshot
	}

	now := m.now()
	var expired []int
	for slot, p := range l.Players {
		if p.IsAI || p.IsConnected || p.DisconnectedAt == nil {
			continue
		}
		if now.Sub(*p.DisconnectedAt) > m.grace {
			expired = append(expired, slot)
		}
	}

	var result *Lobby = l
	for _, slot := range expired {
		result = m.leaveLocked(code, slot, "")
		if result == nil {
			break
		}
	}
	var snapshot *Lobby
	if result != nil {
		snapshot = result.Copy()
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		log.Infof("swept %d disconnected players from lobby %s", len(expired), code)
		if snapshot == nil {
			m.unpersist(code)
		} else {
			m.persist(snapshot)
		}
	}
	return expired, snapshot
}

// CleanupStaleLobbies deletes empty waiting lobbies older than
// waitingMaxAge and finished lobbies older than finishedMaxAge. Lobbies
// with a running game are never touched. Returns the number removed.
func (m *Manager) CleanupStaleLobbies(waitingMaxAge, finishedMaxAge time.Duration) int {
	m.mu.Lock()
	now := m.now()
	var stale []string
	for code, l := range m.lobbies {
		switch l.Status {
		case StatusInGame:
			continue
		case StatusWaiting:
			if len(l.HumanPlayers()) == 0 && now.Sub(l.CreatedAt) > waitingMaxAge {
				stale = append(stale, code)
			}
		case StatusFinished:
			since := l.CreatedAt
			if l.GameFinishedAt != nil {
				since = *l.GameFinishedAt
			}
			if now.Sub(since) > finishedMaxAge {
				stale = append(stale, code)
			}
		}
	}
	for _, code := range stale {
		m.deleteLocked(code)
	}
	m.mu.Unlock()

	for _, code := range stale {
		m.unpersist(code)
	}
	if len(stale) > 0 {
		log.Infof("cleaned up %d stale lobbies", len(stale))
	}
	return len(stale)
}

// resolvePlayerLocked maps a player key to its lobby and player.
func (m *Manager) resolvePlayerLocked(code, playerKey string) (*Lobby, *Player, *Error) {
	ref, ok := m.keyToSlot[playerKey]
	if !ok || ref.code != code {
		return nil, nil, newError("invalid_key", "Invalid player key")
	}
	l, ok := m.lobbies[code]
	if !ok {
		return nil, nil, newError("not_found", "Lobby not found")
	}
	p, ok := l.Players[ref.slot]
	if !ok {
		return nil, nil, newError("not_found", "Player not in lobby")
	}
	return l, p, nil
}

// resolveHostLocked maps a key to its lobby, requiring the host seat.
func (m *Manager) resolveHostLocked(code, playerKey string) (*Lobby, int, *Error) {
	ref, ok := m.keyToSlot[playerKey]
	if !ok || ref.code != code {
		return nil, 0, newError("invalid_key", "Invalid player key")
	}
	l, ok := m.lobbies[code]
	if !ok {
		return nil, 0, newError("not_found", "Lobby not found")
	}
	if l.HostSlot != ref.slot {
		return nil, 0, newError("not_host", "Only the host can do that")
	}
	return l, ref.slot, nil
}

func (m *Manager) persist(l *Lobby) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveLobby(l); err != nil {
		log.Errorf("persist lobby %s: %v", l.Code, err)
	}
}

func (m *Manager) unpersist(code string) {
	if m.store == nil {
		return
	}
	if err := m.store.DeleteLobby(code); err != nil {
		log.Errorf("delete lobby %s from store: %v", code, err)
	}
}
