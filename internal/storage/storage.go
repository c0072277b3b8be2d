package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/hailam/kungfuchess/internal/game"
	"github.com/hailam/kungfuchess/internal/lobby"
	"github.com/hailam/kungfuchess/internal/logging"
)

var log = logging.GetLog("storage")

// Key prefixes
const (
	prefixReplay = "replay:"
	prefixLobby  = "lobby:"
)

// Storage wraps BadgerDB for server persistence: finished-game replays
// and lobby snapshots.
type Storage struct {
	db *badger.DB
}

// NewStorage opens the database in the platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens the database at an explicit directory.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func replayKey(gameID string) []byte {
	return []byte(prefixReplay + gameID)
}

func lobbyKey(code string) []byte {
	return []byte(prefixLobby + code)
}

// SaveReplay stores a finished game's replay. Saving is idempotent:
// an existing record wins, so racing writers for the same game cannot
// overwrite the first result.
func (s *Storage) SaveReplay(gameID string, r *game.Replay) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(replayKey(gameID))
		if err == nil {
			log.Debugf("replay %s already saved, keeping existing record", gameID)
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(replayKey(gameID), data)
	})
}

// GetReplay loads a replay, returning (nil, nil) when none is stored.
// Legacy version-1 records are upgraded on load.
func (s *Storage) GetReplay(gameID string) (*game.Replay, error) {
	var replay *game.Replay

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(replayKey(gameID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, err := game.DecodeReplay(val)
			if err != nil {
				return err
			}
			replay = r
			return nil
		})
	})

	return replay, err
}

// SaveLobby stores a lobby snapshot keyed by its code.
func (s *Storage) SaveLobby(l *lobby.Lobby) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(lobbyKey(l.Code), data)
	})
}

// GetLobby loads a lobby snapshot, returning (nil, nil) when missing.
func (s *Storage) GetLobby(code string) (*lobby.Lobby, error) {
	var l *lobby.Lobby

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lobbyKey(code))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded lobby.Lobby
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			l = &decoded
			return nil
		})
	})

	return l, err
}

// DeleteLobby removes a lobby snapshot.
func (s *Storage) DeleteLobby(code string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(lobbyKey(code))
	})
}

// ListLobbies loads every stored lobby snapshot, used at startup to
// restore rooms. Corrupt records are skipped with a warning rather than
// failing the whole restore.
func (s *Storage) ListLobbies() ([]*lobby.Lobby, error) {
	var out []*lobby.Lobby

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixLobby)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var l lobby.Lobby
				if err := json.Unmarshal(val, &l); err != nil {
					log.Warningf("skipping corrupt lobby record %s: %v", item.Key(), err)
					return nil
				}
				out = append(out, &l)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return out, err
}
