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

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Chemokoren/trailer/pkg/data"
)

// markDirtyRepos walks both event streams of every usable server and flags
// the repositories that have new events, then force-dirties anything that
// has not been refreshed within the staleness window.
func (e *Engine) markDirtyRepos(ctx context.Context) {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		dirty = map[int64]bool{}
	)

	for _, server := range e.store.Servers() {
		server := server
		if !server.GoodToGo() {
			continue
		}
		g.Go(func() error {
			e.scanEventStream(ctx, server, false, dirty, &mu)
			return nil
		})
		g.Go(func() error {
			e.scanEventStream(ctx, server, true, dirty, &mu)
			return nil
		})
	}
	_ = g.Wait()

	e.store.MarkReposDirty(dirty, e.now())
	if len(dirty) > 0 {
		logrus.Debugf("marked %d dirty repos that have new events in their event stream", len(dirty))
	}

	if n := e.store.MarkLongCleanReposDirty(e.settings.StalenessWindow, e.now()); n > 0 {
		logrus.Debugf("marked dirty %d repos which haven't been refreshed in over %s", n, e.settings.StalenessWindow)
	}
}

// scanEventStream walks one of a server's two event streams newest-first.
// Every event newer than the stored cursor dirties its repo; the walk stops
// at the first already-processed event. The returned ETag is persisted
// regardless of outcome.
func (e *Engine) scanEventStream(ctx context.Context, server *data.Server, received bool, dirty map[int64]bool, mu *sync.Mutex) {
	var (
		path   string
		etag   string
		cursor = server.LatestUserEventTime
	)
	if received {
		path = fmt.Sprintf("/users/%s/received_events", server.UserName)
		etag = server.LatestReceivedEventEtag
		cursor = server.LatestReceivedEventTime
	} else {
		path = fmt.Sprintf("/users/%s/events", server.UserName)
		etag = server.LatestUserEventEtag
	}

	var extraHeaders map[string]string
	if etag != "" {
		extraHeaders = map[string]string{"If-None-Match": etag}
	}

	latest := cursor
	firstSync := cursor.IsZero()

	e.client.GetPagedData(ctx, path, server, nil, extraHeaders,
		func(items []json.RawMessage, lastPage bool) bool {
			for _, raw := range items {
				var ev eventInfo
				if err := json.Unmarshal(raw, &ev); err != nil {
					continue
				}
				if !ev.CreatedAt.After(cursor) {
					logrus.Debugf("(%s) the rest of these events are processed, stopping event parsing", server.Label)
					return true
				}
				logrus.Debugf("(%s) new event at %s", server.Label, ev.CreatedAt)
				if ev.Repo.ID != 0 {
					mu.Lock()
					dirty[ev.Repo.ID] = true
					mu.Unlock()
				}
				if ev.CreatedAt.After(latest) {
					latest = ev.CreatedAt
				}
				if firstSync {
					// Everything is dirty on a first sync anyway; the newest
					// event date is all we need.
					logrus.Debugf("(%s) first sync, no need to read further", server.Label)
					return true
				}
			}
			return false
		},
		func(success bool, statusCode int, newEtag string) {
			if received {
				server.LatestReceivedEventEtag = newEtag
				server.LatestReceivedEventTime = latest
			} else {
				server.LatestUserEventEtag = newEtag
				server.LatestUserEventTime = latest
			}
			if !success {
				e.store.MarkServerFailed(server.ID)
			}
		})
}
