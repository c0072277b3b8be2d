package ws

import (
	"net/http"

	"github.com/hailam/kungfuchess/internal/game"
	"github.com/hailam/kungfuchess/internal/lobby"
	"github.com/hailam/kungfuchess/internal/session"
)

// Lobby socket rejection codes mirror the game socket's.
const (
	closeLobbyNotFound = 4004
)

// Lobby payloads use camelCase keys; the browser client consumes them
// directly as JS objects.

func serializePlayer(p *lobby.Player) map[string]any {
	return map[string]any{
		"slot":        p.Slot,
		"userId":      p.UserID,
		"username":    p.Username,
		"isAi":        p.IsAI,
		"aiType":      p.AIType,
		"isReady":     p.IsReady,
		"isConnected": p.IsConnected,
	}
}

func serializeSettings(s lobby.Settings) map[string]any {
	return map[string]any{
		"isPublic":    s.IsPublic,
		"speed":       s.Speed.String(),
		"playerCount": s.PlayerCount,
		"isRanked":    s.IsRanked,
	}
}

// SerializeLobby renders a lobby for the wire. Shared with the REST
// lobby listing.
func SerializeLobby(l *lobby.Lobby) map[string]any {
	players := make(map[int]any, len(l.Players))
	for slot, p := range l.Players {
		players[slot] = serializePlayer(p)
	}
	return map[string]any{
		"id":            l.ID,
		"code":          l.Code,
		"hostSlot":      l.HostSlot,
		"settings":      serializeSettings(l.Settings),
		"players":       players,
		"status":        l.Status.String(),
		"currentGameId": l.CurrentGameID,
		"gamesPlayed":   l.GamesPlayed,
	}
}

// LobbyHandler serves /ws/lobby/{code} sockets.
type LobbyHandler struct {
	lobbies  *lobby.Manager
	sessions *session.Manager
	hub      *Hub
}

// NewLobbyHandler creates the lobby websocket handler.
func NewLobbyHandler(lobbies *lobby.Manager, sessions *session.Manager, hub *Hub) *LobbyHandler {
	return &LobbyHandler{lobbies: lobbies, sessions: sessions, hub: hub}
}

// cleanupAndBroadcast sweeps expired disconnected players and tells the
// room who fell out. Runs on connect and before every non-ping action,
// so the grace period needs no timers.
func (h *LobbyHandler) cleanupAndBroadcast(code string) {
	cleaned, l := h.lobbies.CleanupDisconnectedPlayers(code)
	for _, slot := range cleaned {
		h.hub.Broadcast(code, map[string]any{"type": "player_left", "slot": slot, "reason": "disconnected"})
	}
	if len(cleaned) > 0 && l != nil {
		// Host may have moved; resend the full state.
		h.hub.Broadcast(code, map[string]any{"type": "lobby_state", "lobby": SerializeLobby(l)})
	}
}

// ServeWS upgrades and runs a lobby socket. The player key arrives in
// the "key" query parameter; lobbies have no spectators.
func (h *LobbyHandler) ServeWS(w http.ResponseWriter, r *http.Request, code string) {
	playerKey := r.URL.Query().Get("key")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("lobby %s: upgrade failed: %v", code, err)
		return
	}
	conn := NewConn(ws)

	h.cleanupAndBroadcast(code)

	slot, ok := h.lobbies.ValidatePlayerKey(code, playerKey)
	if !ok {
		log.Warningf("lobby socket rejected: invalid player key for lobby %s", code)
		conn.CloseWithCode(closeInvalidKey, "Invalid player key")
		return
	}
	l := h.lobbies.GetLobby(code)
	if l == nil {
		log.Warningf("lobby socket rejected: lobby %s not found", code)
		conn.CloseWithCode(closeLobbyNotFound, "Lobby not found")
		return
	}

	player := l.Players[slot]
	reconnection := player != nil && !player.IsConnected
	if reconnection {
		log.Infof("player slot %d reconnected to lobby %s", slot, code)
		if updated := h.lobbies.SetConnected(code, slot, true); updated != nil {
			l = updated
		}
	}

	h.hub.Attach(code, conn, slot)
	defer func() {
		if h.hub.Detach(code, conn) >= 0 {
			h.handleDisconnect(code, slot)
		}
		conn.Close()
	}()

	if err := conn.SendJSON(map[string]any{"type": "lobby_state", "lobby": SerializeLobby(l)}); err != nil {
		return
	}

	if p := l.Players[slot]; p != nil {
		event := "player_joined"
		if reconnection {
			event = "player_reconnected"
		}
		h.hub.BroadcastExcept(code, conn, map[string]any{
			"type":   event,
			"slot":   slot,
			"player": serializePlayer(p),
		})
	}

	for {
		msg, err := conn.ReadJSON()
		if err != nil {
			if err == errInvalidJSON {
				_ = conn.SendJSON(errorMessage{Type: "error", Code: "invalid_json", Message: "Invalid JSON"})
				continue
			}
			break
		}
		if h.handleMessage(conn, code, slot, playerKey, msg) {
			return // leave: disconnect already handled
		}
	}
}

// handleMessage dispatches one lobby message. Returns true when the
// connection should stop without the usual disconnect handling.
func (h *LobbyHandler) handleMessage(conn *Conn, code string, slot int, playerKey string, msg map[string]any) bool {
	msgType, _ := msg["type"].(string)

	if msgType == "ping" {
		_ = conn.SendJSON(pongMessage{Type: "pong"})
		return false
	}

	h.cleanupAndBroadcast(code)

	sendErr := func(err error) {
		if lerr, ok := err.(*lobby.Error); ok {
			_ = conn.SendJSON(errorMessage{Type: "error", Code: lerr.Code, Message: lerr.Message})
		} else {
			_ = conn.SendJSON(errorMessage{Type: "error", Message: err.Error()})
		}
	}

	switch msgType {
	case "ready":
		ready := true
		if v, ok := msg["ready"].(bool); ok {
			ready = v
		}
		if _, err := h.lobbies.SetReady(code, playerKey, ready); err != nil {
			sendErr(err)
			return false
		}
		h.hub.Broadcast(code, map[string]any{"type": "player_ready", "slot": slot, "ready": ready})

	case "update_settings":
		settings, err := parseSettings(msg["settings"])
		if err != nil {
			_ = conn.SendJSON(errorMessage{Type: "error", Code: "invalid_settings", Message: err.Error()})
			return false
		}
		l, err := h.lobbies.UpdateSettings(code, playerKey, settings)
		if err != nil {
			sendErr(err)
			return false
		}
		h.hub.Broadcast(code, map[string]any{"type": "settings_updated", "settings": serializeSettings(l.Settings)})
		for playerSlot, p := range l.Players {
			if !p.IsAI {
				h.hub.Broadcast(code, map[string]any{"type": "player_ready", "slot": playerSlot, "ready": p.IsReady})
			}
		}

	case "kick":
		target, ok := intField(msg, "slot")
		if !ok {
			_ = conn.SendJSON(errorMessage{Type: "error", Code: "missing_slot", Message: "Missing slot parameter"})
			return false
		}
		if _, err := h.lobbies.KickPlayer(code, playerKey, target); err != nil {
			sendErr(err)
			return false
		}
		h.hub.Broadcast(code, map[string]any{"type": "player_left", "slot": target, "reason": "kicked"})

	case "add_ai":
		aiType, _ := msg["aiType"].(string)
		before := h.lobbies.GetLobby(code)
		l, err := h.lobbies.AddAI(code, playerKey, aiType)
		if err != nil {
			sendErr(err)
			return false
		}
		for addedSlot, p := range l.Players {
			if before != nil {
				if _, existed := before.Players[addedSlot]; existed {
					continue
				}
			}
			h.hub.Broadcast(code, map[string]any{"type": "player_joined", "slot": addedSlot, "player": serializePlayer(p)})
		}

	case "remove_ai":
		target, ok := intField(msg, "slot")
		if !ok {
			_ = conn.SendJSON(errorMessage{Type: "error", Code: "missing_slot", Message: "Missing slot parameter"})
			return false
		}
		if _, err := h.lobbies.RemoveAI(code, playerKey, target); err != nil {
			sendErr(err)
			return false
		}
		h.hub.Broadcast(code, map[string]any{"type": "player_left", "slot": target, "reason": "removed"})

	case "start_game":
		gameID := game.NewGameID()
		gameKeys, err := h.lobbies.StartGame(code, playerKey, gameID)
		if err != nil {
			sendErr(err)
			return false
		}
		h.launchGame(code, gameID, gameKeys)

	case "leave":
		h.handleLeave(code, playerKey, slot, "left")
		return true

	case "return_to_lobby":
		l, err := h.lobbies.ReturnToLobby(code)
		if err != nil {
			sendErr(err)
			return false
		}
		h.hub.Broadcast(code, map[string]any{"type": "lobby_state", "lobby": SerializeLobby(l)})

	default:
		_ = conn.SendJSON(errorMessage{Type: "error", Code: "unknown_message", Message: "Unknown message type: " + msgType})
	}
	return false
}

// launchGame creates the session for a started lobby and hands each
// human their per-game key.
func (h *LobbyHandler) launchGame(code, gameID string, gameKeys map[int]string) {
	l := h.lobbies.GetLobby(code)
	if l == nil {
		return
	}

	humanKeys := make(map[int]string)
	aiSeats := make(map[int]string)
	for slot, p := range l.Players {
		if p.IsAI {
			botName := p.AIType
			if len(botName) > 4 && botName[:4] == "bot:" {
				botName = botName[4:]
			}
			if botName == "" {
				botName = "dummy"
			}
			aiSeats[slot] = botName
		} else if key, ok := gameKeys[slot]; ok {
			humanKeys[slot] = key
		}
	}

	err := h.sessions.CreateLobbyGame(gameID, l.Settings.Speed, l.Settings.BoardType(), humanKeys, aiSeats)
	if err != nil {
		log.Errorf("failed to create game for lobby %s: %v", code, err)
		h.hub.Broadcast(code, errorMessage{Type: "error", Code: "game_create_failed", Message: "Could not start the game"})
		return
	}

	for slot := range humanKeys {
		h.hub.SendTo(code, slot, map[string]any{
			"type":      "game_starting",
			"gameId":    gameID,
			"lobbyCode": code,
			"playerKey": humanKeys[slot],
		})
	}
	log.Infof("game %s created from lobby %s", gameID, code)
}

func (h *LobbyHandler) handleLeave(code, playerKey string, slot int, reason string) {
	l := h.lobbies.GetLobby(code)
	if l == nil {
		return
	}
	wasHost := l.HostSlot == slot

	result := h.lobbies.LeaveLobby(code, playerKey, "")
	if result == nil {
		h.hub.RemoveScope(code)
		log.Infof("lobby %s deleted after last player left", code)
		return
	}

	h.hub.Broadcast(code, map[string]any{"type": "player_left", "slot": slot, "reason": reason})
	if wasHost && result.HostSlot != slot {
		h.hub.Broadcast(code, map[string]any{"type": "host_changed", "newHostSlot": result.HostSlot})
	}
}

// handleDisconnect marks a dropped human as disconnected and starts the
// grace period. Mid-game drops are left alone; the game socket owns
// reconnection there.
func (h *LobbyHandler) handleDisconnect(code string, slot int) {
	l := h.lobbies.GetLobby(code)
	if l == nil {
		return
	}
	if l.Status == lobby.StatusInGame {
		log.Infof("player slot %d left lobby %s socket during game, keeping seat", slot, code)
		return
	}
	p := l.Players[slot]
	if p == nil || p.IsAI {
		return
	}
	h.lobbies.SetConnected(code, slot, false)
	h.hub.Broadcast(code, map[string]any{"type": "player_disconnected", "slot": slot})
	log.Infof("player slot %d disconnected from lobby %s, grace period started", slot, code)
}

// NotifyGameEnded flips the lobby behind a finished game into the
// post-game state and tells its members.
func (h *LobbyHandler) NotifyGameEnded(gameID string, winner int, reason string) {
	code, ok := h.lobbies.FindLobbyByGame(gameID)
	if !ok {
		return
	}
	if h.lobbies.EndGame(code) == nil {
		return
	}
	h.hub.Broadcast(code, map[string]any{"type": "game_ended", "winner": winner, "reason": reason})
	log.Infof("notified lobby %s that game %s ended", code, gameID)
}

func parseSettings(v any) (lobby.Settings, error) {
	s := lobby.Settings{IsPublic: true, Speed: game.SpeedStandard, PlayerCount: 2}
	data, ok := v.(map[string]any)
	if !ok {
		return s, nil
	}
	if b, ok := data["isPublic"].(bool); ok {
		s.IsPublic = b
	}
	if str, ok := data["speed"].(string); ok {
		speed, err := game.ParseSpeed(str)
		if err != nil {
			return s, err
		}
		s.Speed = speed
	}
	if n, ok := data["playerCount"].(float64); ok {
		s.PlayerCount = int(n)
	}
	if b, ok := data["isRanked"].(bool); ok {
		s.IsRanked = b
	}
	return s, nil
}

func intField(msg map[string]any, key string) (int, bool) {
	v, ok := msg[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}
