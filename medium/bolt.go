// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// Bolt implements a medium on a BoltDB file. Each bank owns one bucket and
// each cell is a key holding the big-endian cell index.
type Bolt struct {
	path   string
	bucket []byte
	layout Layout
	db     *bbolt.DB
}

// NewBolt creates a new Bolt medium storing bank in its own bucket.
func NewBolt(path, bank string) *Bolt {
	return &Bolt{
		path:   path,
		bucket: []byte(bank),
	}
}

func (b *Bolt) Open(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.path) == "" {
		return fmt.Errorf("storage path is required")
	}
	if len(b.bucket) == 0 {
		return fmt.Errorf("bank name is required")
	}

	db, err := bbolt.Open(filepath.Clean(b.path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}
		// Drop cells beyond the layout.
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.Seek(boltKey(layout.CellCount)); k != nil; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("prepare bucket %q: %w", b.bucket, err)
	}

	b.db = db
	b.layout = layout
	return nil
}

func (b *Bolt) ReadCell(index int, p []byte) error {
	if b.db == nil {
		return fmt.Errorf("bolt medium is not open")
	}
	if err := b.layout.check(index, p); err != nil {
		return err
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(b.bucket).Get(boltKey(index))
		if value == nil {
			clear(p)
			return nil
		}
		if len(value) != len(p) {
			return fmt.Errorf("stored cell is %d bytes, want %d", len(value), len(p))
		}
		copy(p, value)
		return nil
	})
}

func (b *Bolt) WriteCell(index int, p []byte) error {
	if b.db == nil {
		return fmt.Errorf("bolt medium is not open")
	}
	if err := b.layout.check(index, p); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Put(boltKey(index), append([]byte(nil), p...))
	})
}

func (b *Bolt) Sync() error {
	if b.db == nil {
		return nil
	}
	return b.db.Sync()
}

func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func boltKey(index int) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(index))
	return key
}
