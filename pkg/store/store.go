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

// Package store is the transactional object store behind the sync engine.
// A cycle works against an in-memory set loaded from bolt; Begin snapshots
// the committed state so a failed server's changes can be rolled back without
// touching the others, and Commit flushes the surviving set back to disk.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/Chemokoren/trailer/pkg/data"
)

// Meta is cross-cycle bookkeeping that is not an entity of its own.
type Meta struct {
	LastRepoCheck         time.Time `json:"lastRepoCheck"`
	LastSuccessfulRefresh time.Time `json:"lastSuccessfulRefresh"`
}

type snapshot struct {
	servers  map[string]*data.Server
	repos    map[int64]*data.Repo
	pulls    map[int64]*data.PullRequest
	comments map[int64]*data.Comment
	labels   map[int64]*data.Label
	statuses map[int64]*data.Status
}

// Store holds the full entity set for the local database. All methods are
// safe for use from concurrent completion callbacks.
type Store struct {
	mu sync.Mutex
	db *bolt.DB

	meta     Meta
	servers  map[string]*data.Server
	repos    map[int64]*data.Repo
	pulls    map[int64]*data.PullRequest
	comments map[int64]*data.Comment
	labels   map[int64]*data.Label
	statuses map[int64]*data.Status

	base snapshot
}

// NewMemory returns a store with no backing file, for tests and dry runs.
func NewMemory() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.servers = map[string]*data.Server{}
	s.repos = map[int64]*data.Repo{}
	s.pulls = map[int64]*data.PullRequest{}
	s.comments = map[int64]*data.Comment{}
	s.labels = map[int64]*data.Label{}
	s.statuses = map[int64]*data.Status{}
}

// Begin snapshots the committed state. Must be called at the start of every
// sync cycle, before any mutation.
func (s *Store) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = s.cloneAll()
}

func (s *Store) cloneAll() snapshot {
	snap := snapshot{
		servers:  map[string]*data.Server{},
		repos:    map[int64]*data.Repo{},
		pulls:    map[int64]*data.PullRequest{},
		comments: map[int64]*data.Comment{},
		labels:   map[int64]*data.Label{},
		statuses: map[int64]*data.Status{},
	}
	for k, v := range s.servers {
		snap.servers[k] = v.Clone()
	}
	for k, v := range s.repos {
		snap.repos[k] = v.Clone()
	}
	for k, v := range s.pulls {
		snap.pulls[k] = v.Clone()
	}
	for k, v := range s.comments {
		snap.comments[k] = v.Clone()
	}
	for k, v := range s.labels {
		snap.labels[k] = v.Clone()
	}
	for k, v := range s.statuses {
		snap.statuses[k] = v.Clone()
	}
	return snap
}

////////////////////////////////////////////////////////////////// servers

func (s *Store) AddServer(server *data.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[server.ID] = server
}

func (s *Store) ServerByID(id string) *data.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servers[id]
}

// Servers returns all servers in a stable order.
func (s *Store) Servers() []*data.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.Server, 0, len(s.servers))
	for _, v := range s.servers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResetSyncSuccess marks every usable server as clean for the new cycle.
func (s *Store) ResetSyncSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, server := range s.servers {
		if server.GoodToGo() {
			server.LastSyncSucceeded = true
		}
	}
}

// MarkServerFailed records a sync failure. Written from completion
// callbacks on multiple goroutines.
func (s *Store) MarkServerFailed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if server, ok := s.servers[id]; ok {
		server.LastSyncSucceeded = false
	}
}

func (s *Store) AllServersSucceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, server := range s.servers {
		if server.GoodToGo() && !server.LastSyncSucceeded {
			return false
		}
	}
	return true
}

////////////////////////////////////////////////////////////////// repos

func (s *Store) SetRepo(r *data.Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[r.ID] = r
}

func (s *Store) RepoByID(id int64) *data.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[id]
}

func (s *Store) Repos() []*data.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.Repo, 0, len(s.repos))
	for _, v := range s.repos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) VisibleRepoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.repos {
		if !r.Hidden && r.Action != data.ActionDelete {
			n++
		}
	}
	return n
}

// NewRepos returns repos created this cycle, for the hide-by-default pass.
func (s *Store) NewRepos() []*data.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Repo
	for _, r := range s.repos {
		if r.Action == data.ActionNoteNew {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkReposDirty flags the given repo ids as needing an item refresh.
func (s *Store) MarkReposDirty(ids map[int64]bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range ids {
		if r, ok := s.repos[id]; ok {
			r.Dirty = true
			r.LastDirtied = now
		}
	}
}

// MarkLongCleanReposDirty force-dirties repos untouched for longer than the
// staleness window, a safety net against missed events.
func (s *Store) MarkLongCleanReposDirty(window time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	cutoff := now.Add(-window)
	for _, r := range s.repos {
		if !r.Dirty && r.LastDirtied.Before(cutoff) {
			r.Dirty = true
			r.LastDirtied = now
			n++
		}
	}
	return n
}

func (s *Store) SyncableRepos() []*data.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Repo
	for _, r := range s.repos {
		if r.Syncable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UnsyncableRepos() []*data.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Repo
	for _, r := range s.repos {
		if !r.Syncable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

////////////////////////////////////////////////////////////////// pulls

func (s *Store) SetPull(p *data.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls[p.ID] = p
}

func (s *Store) PullByID(id int64) *data.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls[id]
}

func (s *Store) AllPulls() []*data.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.PullRequest, 0, len(s.pulls))
	for _, p := range s.pulls {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) PullsForRepo(repoID int64) []*data.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.PullRequest
	for _, p := range s.pulls {
		if p.RepoID == repoID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NewOrUpdatedPulls are the items whose child collections get refreshed.
func (s *Store) NewOrUpdatedPulls() []*data.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.PullRequest
	for _, p := range s.pulls {
		if p.Action == data.ActionNoteNew || p.Action == data.ActionNoteUpdated {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenPullsMarkedDelete are closure-detection candidates: still stored as
// open but about to vanish this cycle.
func (s *Store) OpenPullsMarkedDelete() []*data.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.PullRequest
	for _, p := range s.pulls {
		if p.Action == data.ActionDelete && p.Condition == data.ConditionOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeletePull removes a pull and its children immediately, outside the
// disposition flow. Used when a repo turns out to be inaccessible.
func (s *Store) DeletePull(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletePullLocked(id)
}

func (s *Store) deletePullLocked(id int64) {
	delete(s.pulls, id)
	for cid, c := range s.comments {
		if c.PullRequestID == id {
			delete(s.comments, cid)
		}
	}
	for lid, l := range s.labels {
		if l.PullRequestID == id {
			delete(s.labels, lid)
		}
	}
	for sid, st := range s.statuses {
		if st.PullRequestID == id {
			delete(s.statuses, sid)
		}
	}
}

////////////////////////////////////////////////////////////////// children

func (s *Store) SetComment(c *data.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c
}

func (s *Store) CommentByID(id int64) *data.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments[id]
}

func (s *Store) CommentsForPull(pullID int64) []*data.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Comment
	for _, c := range s.comments {
		if c.PullRequestID == pullID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SetLabel(l *data.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[l.ID] = l
}

func (s *Store) LabelByID(id int64) *data.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labels[id]
}

func (s *Store) LabelsForPull(pullID int64) []*data.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Label
	for _, l := range s.labels {
		if l.PullRequestID == pullID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SetStatus(st *data.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[st.ID] = st
}

func (s *Store) StatusByID(id int64) *data.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func (s *Store) StatusesForPull(pullID int64) []*data.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Status
	for _, st := range s.statuses {
		if st.PullRequestID == pullID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteAllLabels drops every stored label; used when the labels feature is
// switched off.
func (s *Store) DeleteAllLabels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = map[int64]*data.Label{}
}

// DeleteAllStatuses drops every stored status; used when the statuses
// feature is switched off.
func (s *Store) DeleteAllStatuses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = map[int64]*data.Status{}
}

////////////////////////////////////////////////////////////////// commit

// RollbackServer discards this cycle's creates, updates and deletes for one
// server's objects, restoring them from the Begin snapshot. Other servers'
// pending changes are untouched.
func (s *Store) RollbackServer(serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if base, ok := s.base.servers[serverID]; ok {
		s.servers[serverID] = base.Clone()
	}
	for id, r := range s.repos {
		if r.ServerID == serverID {
			delete(s.repos, id)
		}
	}
	for id, r := range s.base.repos {
		if r.ServerID == serverID {
			s.repos[id] = r.Clone()
		}
	}
	for id, p := range s.pulls {
		if p.ServerID == serverID {
			delete(s.pulls, id)
		}
	}
	for id, p := range s.base.pulls {
		if p.ServerID == serverID {
			s.pulls[id] = p.Clone()
		}
	}
	for id, c := range s.comments {
		if c.ServerID == serverID {
			delete(s.comments, id)
		}
	}
	for id, c := range s.base.comments {
		if c.ServerID == serverID {
			s.comments[id] = c.Clone()
		}
	}
	for id, l := range s.labels {
		if l.ServerID == serverID {
			delete(s.labels, id)
		}
	}
	for id, l := range s.base.labels {
		if l.ServerID == serverID {
			s.labels[id] = l.Clone()
		}
	}
	for id, st := range s.statuses {
		if st.ServerID == serverID {
			delete(s.statuses, id)
		}
	}
	for id, st := range s.base.statuses {
		if st.ServerID == serverID {
			s.statuses[id] = st.Clone()
		}
	}
}

// NukeDeletedItems physically removes everything still flagged delete.
// Deleting a repo cascades to its pulls; deleting a pull cascades to its
// children. Returns the number of removed objects.
func (s *Store) NukeDeletedItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.repos {
		if r.Action == data.ActionDelete {
			delete(s.repos, id)
			n++
			for pid, p := range s.pulls {
				if p.RepoID == id {
					s.deletePullLocked(pid)
					n++
				}
			}
		}
	}
	for id, p := range s.pulls {
		if p.Action == data.ActionDelete {
			s.deletePullLocked(id)
			n++
		}
	}
	for id, c := range s.comments {
		if c.Action == data.ActionDelete {
			delete(s.comments, id)
			n++
		}
	}
	for id, l := range s.labels {
		if l.Action == data.ActionDelete {
			delete(s.labels, id)
			n++
		}
	}
	for id, st := range s.statuses {
		if st.Action == data.ActionDelete {
			delete(s.statuses, id)
			n++
		}
	}
	if n > 0 {
		logrus.Debugf("removed %d deleted objects", n)
	}
	return n
}

// ClearDispositions resets every surviving entity to no-op, ready for the
// next cycle.
func (s *Store) ClearDispositions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		r.Action = data.ActionDoNothing
	}
	for _, p := range s.pulls {
		p.Action = data.ActionDoNothing
		p.IsNewAssignment = false
	}
	for _, c := range s.comments {
		c.Action = data.ActionDoNothing
	}
	for _, l := range s.labels {
		l.Action = data.ActionDoNothing
	}
	for _, st := range s.statuses {
		st.Action = data.ActionDoNothing
	}
}

////////////////////////////////////////////////////////////////// meta

func (s *Store) GetMeta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *Store) SetMeta(m Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = m
}
