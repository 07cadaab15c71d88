// Package store persists a world in buntdb, one key per block.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railnet/grid"
)

const (
	blockPrefix = "block:"
	blockIndex  = "blocks"
)

type Store struct {
	db *buntdb.DB
}

// Open opens the database at path. ":memory:" opens a database that is never written to disk.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.CreateIndex(blockIndex, blockPrefix+"*", buntdb.IndexString)
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(pos grid.Pos) string {
	return blockPrefix + pos.String()
}

func (s *Store) Put(pos grid.Pos, d grid.Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(blockKey(pos), string(data), nil)
		return err
	})
}

func (s *Store) Delete(pos grid.Pos) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(blockKey(pos))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

// Load reads every block. Blocks that fail to parse are logged and skipped.
func (s *Store) Load() (map[grid.Pos]grid.Descriptor, error) {
	res := map[grid.Pos]grid.Descriptor{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(blockIndex, func(key, value string) bool {
			pos, err := grid.ParsePos(strings.TrimPrefix(key, blockPrefix))
			if err != nil {
				zap.S().Errorw("parsing key failed",
					"key", key,
					"err", err)
				return true
			}
			var d grid.Descriptor
			err = json.Unmarshal([]byte(value), &d)
			if err != nil {
				zap.S().Errorw("unmarshalling failed",
					"key", key,
					"value", value,
					"err", err)
				return true
			}
			res[pos] = d
			return true
		})
	})
	return res, err
}

// ReplaceAll swaps every stored block for cells in one transaction.
func (s *Store) ReplaceAll(cells map[grid.Pos]grid.Descriptor) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		var old []string
		err := tx.AscendKeys(blockPrefix+"*", func(key, _ string) bool {
			old = append(old, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range old {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		for pos, d := range cells {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("%s: %w", pos, err)
			}
			if _, _, err := tx.Set(blockKey(pos), string(data), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Track writes every change to w through to the store. Write failures are logged.
func (s *Store) Track(w *grid.World) {
	w.OnChange(func(pos grid.Pos) {
		var err error
		if d, ok := w.Resolve(pos); ok {
			err = s.Put(pos, d)
		} else {
			err = s.Delete(pos)
		}
		if err != nil {
			zap.S().Errorw("persisting block failed", "pos", pos, "err", err)
		}
	})
}
