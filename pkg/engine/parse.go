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
	"time"

	"github.com/Chemokoren/trailer/pkg/data"
)

// Wire shapes for the listing and detail payloads the engine consumes.

type userInfo struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type repoInfo struct {
	ID          int64  `json:"id"`
	FullName    string `json:"full_name"`
	Private     bool   `json:"private"`
	Permissions struct {
		Pull  bool `json:"pull"`
		Push  bool `json:"push"`
		Admin bool `json:"admin"`
	} `json:"permissions"`
}

func (r *repoInfo) accessible() bool {
	if !r.Private {
		return true
	}
	return r.Permissions.Pull || r.Permissions.Push || r.Permissions.Admin
}

type pullInfo struct {
	ID                int64     `json:"id"`
	Number            int64     `json:"number"`
	Title             string    `json:"title"`
	UpdatedAt         time.Time `json:"updated_at"`
	CommentsURL       string    `json:"comments_url"`
	ReviewCommentsURL string    `json:"review_comments_url"`
	StatusesURL       string    `json:"statuses_url"`
	IssueURL          string    `json:"issue_url"`
	MergedBy          *userInfo `json:"merged_by"`
}

type commentInfo struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      userInfo  `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type labelInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type statusInfo struct {
	ID          int64     `json:"id"`
	State       string    `json:"state"`
	Description string    `json:"description"`
	TargetURL   string    `json:"target_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type eventInfo struct {
	CreatedAt time.Time `json:"created_at"`
	Repo      struct {
		ID int64 `json:"id"`
	} `json:"repo"`
}

type issueInfo struct {
	Assignee *userInfo `json:"assignee"`
}

// upsertRepo records a repo observed in the subscriptions listing. A repo
// pre-marked delete that is re-observed survives.
func (e *Engine) upsertRepo(info *repoInfo, server *data.Server, now time.Time) *data.Repo {
	if r := e.store.RepoByID(info.ID); r != nil {
		r.FullName = info.FullName
		r.ServerID = server.ID
		r.Action = data.ActionDoNothing
		return r
	}
	r := &data.Repo{
		ID:          info.ID,
		ServerID:    server.ID,
		FullName:    info.FullName,
		Dirty:       true,
		LastDirtied: now,
		Action:      data.ActionNoteNew,
	}
	e.store.SetRepo(r)
	return r
}

// upsertPull records a pull observed in a repo's listing. Known items keep
// their stored condition; the updated_at comparison decides between no-op
// and updated.
func (e *Engine) upsertPull(info *pullInfo, repo *data.Repo, server *data.Server) *data.PullRequest {
	if p := e.store.PullByID(info.ID); p != nil {
		if info.UpdatedAt.After(p.UpdatedAt) {
			p.Action = data.ActionNoteUpdated
			p.UpdatedAt = info.UpdatedAt
		} else {
			p.Action = data.ActionDoNothing
		}
		p.Title = info.Title
		p.IssueCommentLink = info.CommentsURL
		p.ReviewCommentLink = info.ReviewCommentsURL
		p.StatusesLink = info.StatusesURL
		p.IssueLink = info.IssueURL
		return p
	}
	p := &data.PullRequest{
		ID:                info.ID,
		RepoID:            repo.ID,
		ServerID:          server.ID,
		Number:            info.Number,
		Title:             info.Title,
		Condition:         data.ConditionOpen,
		Action:            data.ActionNoteNew,
		IssueCommentLink:  info.CommentsURL,
		ReviewCommentLink: info.ReviewCommentsURL,
		StatusesLink:      info.StatusesURL,
		IssueLink:         info.IssueURL,
		UpdatedAt:         info.UpdatedAt,
	}
	e.store.SetPull(p)
	return p
}

func (e *Engine) upsertComment(info *commentInfo, pull *data.PullRequest) *data.Comment {
	if c := e.store.CommentByID(info.ID); c != nil {
		if info.UpdatedAt.After(c.UpdatedAt) {
			c.Action = data.ActionNoteUpdated
			c.UpdatedAt = info.UpdatedAt
			c.Body = info.Body
		} else {
			c.Action = data.ActionDoNothing
		}
		return c
	}
	c := &data.Comment{
		ID:            info.ID,
		PullRequestID: pull.ID,
		ServerID:      pull.ServerID,
		Body:          info.Body,
		UserName:      info.User.Login,
		CreatedAt:     info.CreatedAt,
		UpdatedAt:     info.UpdatedAt,
		Action:        data.ActionNoteNew,
	}
	e.store.SetComment(c)
	return c
}

func (e *Engine) upsertLabel(info *labelInfo, pull *data.PullRequest) *data.Label {
	if l := e.store.LabelByID(info.ID); l != nil {
		l.Name = info.Name
		l.Color = info.Color
		l.Action = data.ActionDoNothing
		return l
	}
	l := &data.Label{
		ID:            info.ID,
		PullRequestID: pull.ID,
		ServerID:      pull.ServerID,
		Name:          info.Name,
		Color:         info.Color,
		Action:        data.ActionNoteNew,
	}
	e.store.SetLabel(l)
	return l
}

func (e *Engine) upsertStatus(info *statusInfo, pull *data.PullRequest) *data.Status {
	if st := e.store.StatusByID(info.ID); st != nil {
		st.State = info.State
		st.Description = info.Description
		st.TargetURL = info.TargetURL
		st.Action = data.ActionDoNothing
		return st
	}
	st := &data.Status{
		ID:            info.ID,
		PullRequestID: pull.ID,
		ServerID:      pull.ServerID,
		State:         info.State,
		Description:   info.Description,
		TargetURL:     info.TargetURL,
		CreatedAt:     info.CreatedAt,
		Action:        data.ActionNoteNew,
	}
	e.store.SetStatus(st)
	return st
}
