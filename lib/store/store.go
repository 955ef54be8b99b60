// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package store persists analysis results in a bbolt database. The
// service uses it as a second-level cache and the CLI as a resume
// checkpoint for long batch runs.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

var resultsBucket = []byte("results")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store maps request keys to the results of analysing them.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.db.Path() }

// Get returns the results stored under key. The boolean is false when the
// key is absent.
func (s *Store) Get(key string) ([]pipelines.Result, bool, error) {
	var (
		results []pipelines.Result
		found   bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(resultsBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &results)
	})
	if err != nil {
		return nil, false, s.wrap("reading", key, err)
	}
	return results, found, nil
}

// Put stores results under key, replacing any previous value.
func (s *Store) Put(key string, results []pipelines.Result) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding results for %q: %w", key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(resultsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return s.wrap("writing", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(resultsBucket).Delete([]byte(key))
	})
	if err != nil {
		return s.wrap("deleting", key, err)
	}
	return nil
}

// Len returns the number of stored keys, or 0 once the store is closed.
func (s *Store) Len() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(resultsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) wrap(op, key string, err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		err = ErrClosed
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}
