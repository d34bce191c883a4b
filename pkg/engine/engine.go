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

// Package engine orchestrates a sync cycle: discover repos, mark the dirty
// ones from event streams, refresh their pull requests and child
// collections, detect closures and assignment changes, then commit per
// server or roll the failed ones back.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Chemokoren/trailer/pkg/api"
	"github.com/Chemokoren/trailer/pkg/config"
	"github.com/Chemokoren/trailer/pkg/data"
	"github.com/Chemokoren/trailer/pkg/store"
)

// Engine runs sync cycles. One Engine owns one store; a single cycle runs at
// a time.
type Engine struct {
	client   *api.Client
	store    *store.Store
	settings config.Settings
	throttle *RefreshThrottle

	now func() time.Time

	refreshing chan struct{} // non-empty while a cycle runs
}

func New(client *api.Client, st *store.Store, settings config.Settings) *Engine {
	return &Engine{
		client:     client,
		store:      st,
		settings:   settings,
		throttle:   NewRefreshThrottle(),
		now:        time.Now,
		refreshing: make(chan struct{}, 1),
	}
}

// Client exposes the underlying API client for diagnostics.
func (e *Engine) Client() *api.Client {
	return e.client
}

// Refreshing reports whether a cycle is currently running.
func (e *Engine) Refreshing() bool {
	return len(e.refreshing) > 0
}

// Run executes one full sync cycle. A cancelled context aborts outstanding
// requests; the affected servers fail their cycle and are rolled back, so
// local state is never corrupted by a partial run. Returns an error when at
// least one server's sync failed.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case e.refreshing <- struct{}{}:
	default:
		return fmt.Errorf("refresh already in progress")
	}
	defer func() { <-e.refreshing }()

	start := e.now()
	e.store.Begin()

	meta := e.store.GetMeta()
	recentCheck := !meta.LastRepoCheck.IsZero() && e.now().Sub(meta.LastRepoCheck) < e.settings.NewRepoCheckPeriod
	if recentCheck && e.store.VisibleRepoCount() > 0 {
		e.store.ResetSyncSuccess()
		e.ensureUserIDs(ctx)
	} else {
		e.fetchRepositories(ctx)
	}

	e.markDirtyRepos(ctx)

	// Items of hidden or inaccessible repos are dropped outright; they are
	// not part of any server's pending change set.
	for _, r := range e.store.UnsyncableRepos() {
		for _, p := range e.store.PullsForRepo(r.ID) {
			e.store.DeletePull(p.ID)
		}
	}

	e.fetchPulls(ctx)
	e.updatePulls(ctx)
	if err := e.completeSync(); err != nil {
		return err
	}

	logrus.Infof("sync took %s", e.now().Sub(start))
	if !e.store.AllServersSucceeded() {
		return fmt.Errorf("sync failed for at least one server")
	}
	return nil
}

// fetchRepositories resyncs user identity and the watched-repository list.
// Every known repo is pre-marked delete and only survives if re-observed.
func (e *Engine) fetchRepositories(ctx context.Context) {
	e.store.ResetSyncSuccess()
	e.syncUserDetails(ctx)

	for _, r := range e.store.Repos() {
		r.Action = data.ActionDelete
		r.Inaccessible = false
	}

	var g errgroup.Group
	for _, server := range e.store.Servers() {
		server := server
		if !server.GoodToGo() {
			continue
		}
		g.Go(func() error {
			e.syncWatchedRepos(ctx, server)
			return nil
		})
	}
	_ = g.Wait()

	hide := e.settings.HideNewRepositories
	for _, r := range e.store.NewRepos() {
		r.Hidden = hide
	}

	meta := e.store.GetMeta()
	meta.LastRepoCheck = e.now()
	e.store.SetMeta(meta)
}

func (e *Engine) syncWatchedRepos(ctx context.Context, server *data.Server) {
	now := e.now()
	e.client.GetPagedData(ctx, "/user/subscriptions", server, nil, nil,
		func(items []json.RawMessage, lastPage bool) bool {
			for _, raw := range items {
				var info repoInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					continue
				}
				if !info.accessible() {
					logrus.Debugf("watched private repository '%s' seems to be inaccessible, skipping", info.FullName)
					continue
				}
				e.upsertRepo(&info, server, now)
			}
			return false
		},
		func(success bool, statusCode int, etag string) {
			if !success {
				logrus.Errorf("error while fetching data from %s", server.Label)
				e.store.MarkServerFailed(server.ID)
			}
		})
}

// syncUserDetails brings down the authenticated user's login and id for
// every usable server; both are needed for event streams and merge checks.
func (e *Engine) syncUserDetails(ctx context.Context) {
	var g errgroup.Group
	for _, server := range e.store.Servers() {
		server := server
		if !server.GoodToGo() {
			continue
		}
		g.Go(func() error {
			resp, err := e.client.Get(ctx, "/user", server, false, nil, nil)
			if err != nil {
				logrus.Errorf("could not read user credentials from %s: %v", server.Label, err)
				e.store.MarkServerFailed(server.ID)
				return nil
			}
			var info userInfo
			if err := json.Unmarshal(resp.Body, &info); err != nil {
				logrus.Errorf("could not read user credentials from %s: %v", server.Label, err)
				e.store.MarkServerFailed(server.ID)
				return nil
			}
			server.UserName = info.Login
			server.UserID = info.ID
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) ensureUserIDs(ctx context.Context) {
	for _, server := range e.store.Servers() {
		if server.GoodToGo() && server.UserID == 0 {
			logrus.Debugf("some API servers don't have user details yet, will bring user credentials down for them")
			e.syncUserDetails(ctx)
			return
		}
	}
}

// fetchPulls refreshes the pull request listing of every dirty syncable
// repo. Open items are pre-marked delete and survive only if re-observed.
func (e *Engine) fetchPulls(ctx context.Context) {
	var g errgroup.Group
	for _, r := range e.store.SyncableRepos() {
		r := r
		if !r.Dirty {
			continue
		}
		g.Go(func() error {
			e.fetchPullsForRepo(ctx, r)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) fetchPullsForRepo(ctx context.Context, r *data.Repo) {
	for _, p := range e.store.PullsForRepo(r.ID) {
		if p.Condition == data.ConditionOpen {
			p.Action = data.ActionDelete
		}
	}

	server := e.store.ServerByID(r.ServerID)
	if server == nil {
		return
	}

	e.client.GetPagedData(ctx, "/repos/"+r.FullName+"/pulls", server, nil, nil,
		func(items []json.RawMessage, lastPage bool) bool {
			for _, raw := range items {
				var info pullInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					continue
				}
				e.upsertPull(&info, r, server)
			}
			return false
		},
		func(success bool, statusCode int, etag string) {
			r.Dirty = false
			if success {
				return
			}
			switch statusCode {
			case 404: // repo disabled
				r.Inaccessible = true
				r.Action = data.ActionDoNothing
				for _, p := range e.store.PullsForRepo(r.ID) {
					e.store.DeletePull(p.ID)
				}
			case 410: // repo gone for good
				r.Action = data.ActionDelete
			default:
				e.store.MarkServerFailed(server.ID)
			}
		})
}

// updatePulls runs the child-collection phases concurrently: comments,
// labels, statuses, closure checks and assignment checks. The stage is done
// when every dispatched sub-operation has finished.
func (e *Engine) updatePulls(ctx context.Context) {
	scanStatuses := e.shouldScanForStatuses()
	scanLabels := e.shouldScanForLabels()

	var g errgroup.Group
	if scanStatuses {
		g.Go(func() error {
			e.fetchStatuses(ctx)
			return nil
		})
	}
	if scanLabels {
		g.Go(func() error {
			e.fetchLabels(ctx)
			return nil
		})
	}
	g.Go(func() error {
		e.fetchComments(ctx)
		return nil
	})
	g.Go(func() error {
		e.checkClosures(ctx)
		return nil
	})
	g.Go(func() error {
		e.detectAssignments(ctx)
		return nil
	})
	_ = g.Wait()
}

// shouldScanForStatuses also evicts counters and stored statuses when the
// feature is off, forcing a clean re-check if it comes back on.
func (e *Engine) shouldScanForStatuses() bool {
	if e.settings.ShowStatusItems {
		return true
	}
	e.throttle.Evict(KindStatuses)
	e.store.DeleteAllStatuses()
	return false
}

func (e *Engine) shouldScanForLabels() bool {
	if e.settings.ShowLabels {
		return true
	}
	e.throttle.Evict(KindLabels)
	e.store.DeleteAllLabels()
	return false
}
