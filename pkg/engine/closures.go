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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Chemokoren/trailer/pkg/api"
	"github.com/Chemokoren/trailer/pkg/config"
	"github.com/Chemokoren/trailer/pkg/data"
)

// checkClosures re-fetches every pull that is still stored open but about to
// vanish this cycle, to find out whether it was merged or just closed. Pulls
// of hidden or soon-deleted repos are not worth the round-trip.
func (e *Engine) checkClosures(ctx context.Context) {
	var g errgroup.Group
	for _, p := range e.store.OpenPullsMarkedDelete() {
		p := p
		repo := e.store.RepoByID(p.RepoID)
		if repo == nil || repo.Hidden || repo.Action == data.ActionDelete {
			continue
		}
		g.Go(func() error {
			e.investigateClosure(ctx, p, repo)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) investigateClosure(ctx context.Context, p *data.PullRequest, repo *data.Repo) {
	logrus.Debugf("checking closed PR to see if it was merged: %s", p.Title)

	server := e.store.ServerByID(p.ServerID)
	if server == nil {
		return
	}

	path := fmt.Sprintf("/repos/%s/pulls/%d", repo.FullName, p.Number)
	resp, err := e.client.Get(ctx, path, server, false, nil, nil)
	switch {
	case err == nil:
		var info pullInfo
		if decodeErr := json.Unmarshal(resp.Body, &info); decodeErr != nil {
			p.Action = data.ActionDoNothing
			e.store.MarkServerFailed(server.ID)
			return
		}
		if info.MergedBy != nil {
			e.pullMerged(p, info.MergedBy.ID, server)
		} else {
			e.pullClosed(p)
		}
	case api.IsGone(err):
		// PR gone for good
		e.pullClosed(p)
	default:
		// couldn't check; don't guess, keep the item
		p.Action = data.ActionDoNothing
		e.store.MarkServerFailed(server.ID)
	}
}

// pullMerged applies the merge handling policy. Note the asymmetry: only
// keep-mine has the filed-under-All exception.
func (e *Engine) pullMerged(p *data.PullRequest, mergedByID int64, server *data.Server) {
	logrus.Debugf("detected merged PR: %s", p.Title)

	mergedByMe := mergedByID == server.UserID
	if mergedByMe && e.settings.DontKeepMergedByMe {
		logrus.Debugf("will not keep self-merged PR: %s", p.Title)
		return
	}

	keep := false
	switch e.settings.MergeHandlingPolicy {
	case config.KeepAll:
		keep = true
	case config.KeepMine:
		keep = p.Section != data.SectionAll
	default:
		keep = false
	}
	if keep {
		p.Action = data.ActionDoNothing
		p.Condition = data.ConditionMerged
	}
}

func (e *Engine) pullClosed(p *data.PullRequest) {
	logrus.Debugf("detected closed PR: %s", p.Title)

	keep := false
	switch e.settings.CloseHandlingPolicy {
	case config.KeepAll:
		keep = true
	case config.KeepMine:
		keep = p.Section != data.SectionAll
	default:
		keep = false
	}
	if keep {
		p.Action = data.ActionDoNothing
		p.Condition = data.ConditionClosed
	}
}

// detectAssignments checks new and updated pulls for an assignment to the
// authenticated user, flagging only the unassigned-to-assigned transition.
func (e *Engine) detectAssignments(ctx context.Context) {
	var g errgroup.Group
	for _, p := range e.store.NewOrUpdatedPulls() {
		p := p
		if p.IssueLink == "" {
			continue
		}
		g.Go(func() error {
			e.detectAssignmentForPull(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) detectAssignmentForPull(ctx context.Context, p *data.PullRequest) {
	server := e.store.ServerByID(p.ServerID)
	if server == nil {
		return
	}

	resp, err := e.client.Get(ctx, p.IssueLink, server, false, nil, nil)
	switch {
	case err == nil:
		var info issueInfo
		if decodeErr := json.Unmarshal(resp.Body, &info); decodeErr != nil {
			e.store.MarkServerFailed(server.ID)
			return
		}
		assigned := info.Assignee != nil && info.Assignee.Login == server.UserName
		p.IsNewAssignment = assigned && !p.AssignedToMe
		p.AssignedToMe = assigned
	case api.IsGone(err):
		// the issue entry doesn't exist, which is fine
		p.AssignedToMe = false
		p.IsNewAssignment = false
	default:
		e.store.MarkServerFailed(server.ID)
	}
}
