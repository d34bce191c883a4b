// The MIT License (MIT)
//
// Copyright (c) 2026 Chemokoren
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Chemokoren/trailer/pkg/data"
)

const (
	bucketMeta     = "meta"     // key: "meta" -> Meta JSON
	bucketServers  = "servers"  // key: server ID -> Server JSON
	bucketRepos    = "repos"    // key: decimal ID -> Repo JSON
	bucketPulls    = "pulls"    // key: decimal ID -> PullRequest JSON
	bucketComments = "comments" // key: decimal ID -> Comment JSON
	bucketLabels   = "labels"   // key: decimal ID -> Label JSON
	bucketStatuses = "statuses" // key: decimal ID -> Status JSON
)

var buckets = []string{bucketMeta, bucketServers, bucketRepos, bucketPulls, bucketComments, bucketLabels, bucketStatuses}

// Open loads (creating if needed) a bolt-backed store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %v", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	s.reset()
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the backing database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) load() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket([]byte(bucketMeta)).Get([]byte("meta")); raw != nil {
			if err := json.Unmarshal(raw, &s.meta); err != nil {
				return fmt.Errorf("corrupt meta record: %v", err)
			}
		}
		if err := tx.Bucket([]byte(bucketServers)).ForEach(func(_, v []byte) error {
			var server data.Server
			if err := json.Unmarshal(v, &server); err != nil {
				return err
			}
			s.servers[server.ID] = &server
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketRepos)).ForEach(func(_, v []byte) error {
			var r data.Repo
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			s.repos[r.ID] = &r
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketPulls)).ForEach(func(_, v []byte) error {
			var p data.PullRequest
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			s.pulls[p.ID] = &p
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketComments)).ForEach(func(_, v []byte) error {
			var c data.Comment
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			s.comments[c.ID] = &c
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketLabels)).ForEach(func(_, v []byte) error {
			var l data.Label
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			s.labels[l.ID] = &l
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketStatuses)).ForEach(func(_, v []byte) error {
			var st data.Status
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			s.statuses[st.ID] = &st
			return nil
		})
	})
}

// Commit persists the surviving entity set in a single bolt transaction and
// makes it the new rollback baseline. With no backing file it only advances
// the baseline.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Update(func(tx *bolt.Tx) error {
			for _, name := range buckets {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return err
				}
				if _, err := tx.CreateBucket([]byte(name)); err != nil {
					return err
				}
			}

			raw, err := json.Marshal(s.meta)
			if err != nil {
				return err
			}
			if err := tx.Bucket([]byte(bucketMeta)).Put([]byte("meta"), raw); err != nil {
				return err
			}

			for id, server := range s.servers {
				if err := putJSON(tx, bucketServers, []byte(id), server); err != nil {
					return err
				}
			}
			for id, r := range s.repos {
				if err := putJSON(tx, bucketRepos, key(id), r); err != nil {
					return err
				}
			}
			for id, p := range s.pulls {
				if err := putJSON(tx, bucketPulls, key(id), p); err != nil {
					return err
				}
			}
			for id, c := range s.comments {
				if err := putJSON(tx, bucketComments, key(id), c); err != nil {
					return err
				}
			}
			for id, l := range s.labels {
				if err := putJSON(tx, bucketLabels, key(id), l); err != nil {
					return err
				}
			}
			for id, st := range s.statuses {
				if err := putJSON(tx, bucketStatuses, key(id), st); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("committing sync failed: %v", err)
		}
	}

	s.base = s.cloneAll()
	return nil
}

func putJSON(tx *bolt.Tx, bucket string, k []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(bucket)).Put(k, raw)
}

func key(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}
