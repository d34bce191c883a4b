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

// Package data holds the entities the sync engine keeps in the local store.
// Condition and PostSyncAction values are persisted as integers; the mappings
// are a storage contract and must stay stable.
package data

import "time"

// Condition is the lifecycle state of a pull request.
type Condition int64

const (
	ConditionOpen Condition = iota
	ConditionClosed
	ConditionMerged
)

func (c Condition) String() string {
	switch c {
	case ConditionOpen:
		return "open"
	case ConditionClosed:
		return "closed"
	case ConditionMerged:
		return "merged"
	}
	return "unknown"
}

// PostSyncAction records what the commit phase should do with an entity once
// the cycle ends.
type PostSyncAction int64

const (
	ActionDoNothing PostSyncAction = iota
	ActionDelete
	ActionNoteNew
	ActionNoteUpdated
)

func (a PostSyncAction) String() string {
	switch a {
	case ActionDoNothing:
		return "no-op"
	case ActionDelete:
		return "delete"
	case ActionNoteNew:
		return "new"
	case ActionNoteUpdated:
		return "updated"
	}
	return "unknown"
}

// Section is where the presentation layer currently files a pull request.
// The engine only reads it for the keep-mine closure policy exception.
type Section int64

const (
	SectionNone Section = iota
	SectionMine
	SectionParticipated
	SectionMerged
	SectionClosed
	SectionAll
)

// Server is one upstream API endpoint, usually api.github.com or an
// enterprise install. Servers are created by configuration and never deleted
// by the engine; the engine mutates counters and cursors every cycle.
type Server struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	APIPath   string `json:"apiPath"`
	AuthToken string `json:"authToken"`

	UserName string `json:"userName"`
	UserID   int64  `json:"userId"`

	RequestsRemaining int64     `json:"requestsRemaining"`
	RequestsLimit     int64     `json:"requestsLimit"`
	ResetTime         time.Time `json:"resetTime"`

	LastSyncSucceeded bool `json:"lastSyncSucceeded"`

	// Cursors for the two independent event streams.
	LatestUserEventTime     time.Time `json:"latestUserEventTime"`
	LatestUserEventEtag     string    `json:"latestUserEventEtag"`
	LatestReceivedEventTime time.Time `json:"latestReceivedEventTime"`
	LatestReceivedEventEtag string    `json:"latestReceivedEventEtag"`
}

// GoodToGo reports whether the server is usable at all this cycle.
func (s *Server) GoodToGo() bool {
	return s != nil && s.AuthToken != ""
}

func (s *Server) Clone() *Server {
	c := *s
	return &c
}

// Repo is a watched repository belonging to exactly one server.
type Repo struct {
	ID           int64          `json:"id"`
	ServerID     string         `json:"serverId"`
	FullName     string         `json:"fullName"`
	Dirty        bool           `json:"dirty"`
	LastDirtied  time.Time      `json:"lastDirtied"`
	Inaccessible bool           `json:"inaccessible"`
	Hidden       bool           `json:"hidden"`
	Action       PostSyncAction `json:"postSyncAction"`
}

// Syncable reports whether the repo's pull requests should be fetched.
func (r *Repo) Syncable() bool {
	return !r.Hidden && !r.Inaccessible && r.Action != ActionDelete
}

func (r *Repo) Clone() *Repo {
	c := *r
	return &c
}

// PullRequest is the item the engine tracks. Child collections (comments,
// labels, statuses) are fully replaced on every refresh that targets it.
type PullRequest struct {
	ID       int64  `json:"id"`
	RepoID   int64  `json:"repoId"`
	ServerID string `json:"serverId"`
	Number   int64  `json:"number"`
	Title    string `json:"title"`

	Condition Condition      `json:"condition"`
	Action    PostSyncAction `json:"postSyncAction"`
	Section   Section        `json:"sectionIndex"`

	AssignedToMe    bool `json:"assignedToMe"`
	IsNewAssignment bool `json:"isNewAssignment"`

	IssueCommentLink  string `json:"issueCommentLink"`
	ReviewCommentLink string `json:"reviewCommentLink"`
	StatusesLink      string `json:"statusesLink"`
	IssueLink         string `json:"issueLink"`

	UpdatedAt             time.Time `json:"updatedAt"`
	LatestReadCommentDate time.Time `json:"latestReadCommentDate"`
}

// LabelsLink is derived: the labels collection hangs off the issue detail URL.
func (p *PullRequest) LabelsLink() string {
	if p.IssueLink == "" {
		return ""
	}
	return p.IssueLink + "/labels"
}

func (p *PullRequest) Clone() *PullRequest {
	c := *p
	return &c
}

// Comment is an issue or review comment on a pull request.
type Comment struct {
	ID            int64          `json:"id"`
	PullRequestID int64          `json:"pullRequestId"`
	ServerID      string         `json:"serverId"`
	Body          string         `json:"body"`
	UserName      string         `json:"userName"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Action        PostSyncAction `json:"postSyncAction"`
}

func (c *Comment) Clone() *Comment {
	cp := *c
	return &cp
}

// Label is a label attached to a pull request's issue.
type Label struct {
	ID            int64          `json:"id"`
	PullRequestID int64          `json:"pullRequestId"`
	ServerID      string         `json:"serverId"`
	Name          string         `json:"name"`
	Color         string         `json:"color"`
	Action        PostSyncAction `json:"postSyncAction"`
}

func (l *Label) Clone() *Label {
	c := *l
	return &c
}

// Status is a commit status on a pull request's head.
type Status struct {
	ID            int64          `json:"id"`
	PullRequestID int64          `json:"pullRequestId"`
	ServerID      string         `json:"serverId"`
	State         string         `json:"state"`
	Description   string         `json:"description"`
	TargetURL     string         `json:"targetUrl"`
	CreatedAt     time.Time      `json:"createdAt"`
	Action        PostSyncAction `json:"postSyncAction"`
}

func (s *Status) Clone() *Status {
	c := *s
	return &c
}
