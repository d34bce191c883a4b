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
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Chemokoren/trailer/pkg/data"
)

// fetchComments replaces the comment sets of new and updated pulls. Existing
// comments are marked delete up front and survive only if re-observed; a
// failed fetch marks the server failed so those deletions are rolled back,
// never committed.
func (e *Engine) fetchComments(ctx context.Context) {
	prs := e.store.NewOrUpdatedPulls()
	if len(prs) == 0 {
		return
	}

	for _, p := range prs {
		for _, c := range e.store.CommentsForPull(p.ID) {
			c.Action = data.ActionDelete
		}
	}

	var mu sync.Mutex // guards LatestReadCommentDate across the two streams
	var g errgroup.Group
	for _, p := range prs {
		p := p
		g.Go(func() error {
			e.fetchCommentsFromLink(ctx, p, p.IssueCommentLink, &mu)
			return nil
		})
		g.Go(func() error {
			e.fetchCommentsFromLink(ctx, p, p.ReviewCommentLink, &mu)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) fetchCommentsFromLink(ctx context.Context, p *data.PullRequest, link string, mu *sync.Mutex) {
	server := e.store.ServerByID(p.ServerID)
	if server == nil || link == "" {
		return
	}
	e.client.GetPagedData(ctx, link, server, nil, nil,
		func(items []json.RawMessage, lastPage bool) bool {
			for _, raw := range items {
				var info commentInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					continue
				}
				c := e.upsertComment(&info, p)

				// A pull we were just assigned shouldn't light up for its
				// pre-existing comments; fast-forward the read marker.
				if p.Action == data.ActionNoteNew {
					mu.Lock()
					if c.CreatedAt.After(p.LatestReadCommentDate) {
						p.LatestReadCommentDate = c.CreatedAt
					}
					mu.Unlock()
				}
			}
			return false
		},
		func(success bool, statusCode int, etag string) {
			if !success {
				e.store.MarkServerFailed(p.ServerID)
			}
		})
}

// fetchLabels refreshes label sets for pulls whose throttle counter is due.
// A 404/410 on the labels link legitimately means "nothing there".
func (e *Engine) fetchLabels(ctx context.Context) {
	var g errgroup.Group
	for _, p := range e.store.AllPulls() {
		p := p
		if !e.throttle.ShouldRefresh(p.ID, KindLabels, e.settings.LabelRefreshInterval) {
			logrus.Debugf("no need to get labels for PR: '%s'", p.Title)
			continue
		}
		logrus.Debugf("will check labels for PR: '%s'", p.Title)
		g.Go(func() error {
			e.fetchLabelsForPull(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) fetchLabelsForPull(ctx context.Context, p *data.PullRequest) {
	for _, l := range e.store.LabelsForPull(p.ID) {
		l.Action = data.ActionDelete
	}

	link := p.LabelsLink()
	if link == "" {
		// no labels link, so presumably no labels
		e.throttle.MarkRefreshed(p.ID, KindLabels)
		return
	}
	server := e.store.ServerByID(p.ServerID)
	if server == nil {
		return
	}

	e.client.GetPagedData(ctx, link, server, nil, nil,
		func(items []json.RawMessage, lastPage bool) bool {
			for _, raw := range items {
				var info labelInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					continue
				}
				e.upsertLabel(&info, p)
			}
			return false
		},
		func(success bool, statusCode int, etag string) {
			if success || statusCode == 404 || statusCode == 410 {
				e.throttle.MarkRefreshed(p.ID, KindLabels)
				return
			}
			e.store.MarkServerFailed(p.ServerID)
		})
}

// fetchStatuses refreshes commit statuses for pulls whose throttle counter
// is due, with the same Gone semantics as labels.
func (e *Engine) fetchStatuses(ctx context.Context) {
	var g errgroup.Group
	for _, p := range e.store.AllPulls() {
		p := p
		if !e.throttle.ShouldRefresh(p.ID, KindStatuses, e.settings.StatusRefreshInterval) {
			logrus.Debugf("no need to get statuses for PR: '%s'", p.Title)
			continue
		}
		logrus.Debugf("will check statuses for PR: '%s'", p.Title)
		g.Go(func() error {
			e.fetchStatusesForPull(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) fetchStatusesForPull(ctx context.Context, p *data.PullRequest) {
	for _, st := range e.store.StatusesForPull(p.ID) {
		st.Action = data.ActionDelete
	}

	if p.StatusesLink == "" {
		e.throttle.MarkRefreshed(p.ID, KindStatuses)
		return
	}
	server := e.store.ServerByID(p.ServerID)
	if server == nil {
		return
	}

	e.client.GetPagedData(ctx, p.StatusesLink, server, nil, nil,
		func(items []json.RawMessage, lastPage bool) bool {
			for _, raw := range items {
				var info statusInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					continue
				}
				e.upsertStatus(&info, p)
			}
			return false
		},
		func(success bool, statusCode int, etag string) {
			if success || statusCode == 404 || statusCode == 410 {
				e.throttle.MarkRefreshed(p.ID, KindStatuses)
				return
			}
			e.store.MarkServerFailed(p.ServerID)
		})
}
