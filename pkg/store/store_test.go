package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/Chemokoren/trailer/pkg/data"
	"github.com/Chemokoren/trailer/pkg/store"
)

func seed(s *store.Store) {
	s.AddServer(&data.Server{ID: "a", Label: "A", AuthToken: "t", LastSyncSucceeded: true})
	s.AddServer(&data.Server{ID: "b", Label: "B", AuthToken: "t", LastSyncSucceeded: true})

	s.SetRepo(&data.Repo{ID: 1, ServerID: "a", FullName: "o/alpha"})
	s.SetRepo(&data.Repo{ID: 2, ServerID: "b", FullName: "o/beta"})

	s.SetPull(&data.PullRequest{ID: 10, RepoID: 1, ServerID: "a", Number: 1, Title: "alpha pull"})
	s.SetPull(&data.PullRequest{ID: 20, RepoID: 2, ServerID: "b", Number: 2, Title: "beta pull"})

	s.SetComment(&data.Comment{ID: 100, PullRequestID: 10, ServerID: "a", Body: "hello"})
	s.SetComment(&data.Comment{ID: 200, PullRequestID: 20, ServerID: "b", Body: "world"})
}

func TestRollbackServerIsIsolated(t *testing.T) {
	s := store.NewMemory()
	seed(s)
	s.Begin()

	// Server a's cycle: retitle its pull, add a comment, add a pull.
	s.PullByID(10).Title = "renamed"
	s.SetComment(&data.Comment{ID: 101, PullRequestID: 10, ServerID: "a", Body: "new"})
	s.SetPull(&data.PullRequest{ID: 11, RepoID: 1, ServerID: "a", Number: 3})

	// Server b's cycle: retitle its pull too.
	s.PullByID(20).Title = "beta renamed"

	s.RollbackServer("a")

	assert.Equal(t, "alpha pull", s.PullByID(10).Title)
	assert.Assert(t, s.PullByID(11) == nil)
	assert.Assert(t, s.CommentByID(101) == nil)
	assert.Equal(t, "hello", s.CommentByID(100).Body)

	// Server b's pending changes survive.
	assert.Equal(t, "beta renamed", s.PullByID(20).Title)
}

func TestRollbackRestoresDeletedObjects(t *testing.T) {
	s := store.NewMemory()
	seed(s)
	s.Begin()

	s.DeletePull(10)
	assert.Assert(t, s.PullByID(10) == nil)

	s.RollbackServer("a")
	assert.Assert(t, s.PullByID(10) != nil)
	assert.Assert(t, s.CommentByID(100) != nil)
}

func TestNukeDeletedItemsCascades(t *testing.T) {
	s := store.NewMemory()
	seed(s)
	s.Begin()

	s.RepoByID(1).Action = data.ActionDelete

	removed := s.NukeDeletedItems()
	assert.Assert(t, removed >= 2)

	assert.Assert(t, s.RepoByID(1) == nil)
	assert.Assert(t, s.PullByID(10) == nil)
	assert.Assert(t, s.CommentByID(100) == nil)

	// The other server's tree is untouched.
	assert.Assert(t, s.RepoByID(2) != nil)
	assert.Assert(t, s.PullByID(20) != nil)
}

func TestNukeDeletedPullCascadesToChildren(t *testing.T) {
	s := store.NewMemory()
	seed(s)
	s.Begin()

	s.PullByID(20).Action = data.ActionDelete
	s.NukeDeletedItems()

	assert.Assert(t, s.PullByID(20) == nil)
	assert.Assert(t, s.CommentByID(200) == nil)
	assert.Assert(t, s.RepoByID(2) != nil)
}

func TestClearDispositions(t *testing.T) {
	s := store.NewMemory()
	seed(s)

	s.RepoByID(1).Action = data.ActionNoteNew
	p := s.PullByID(10)
	p.Action = data.ActionNoteUpdated
	p.IsNewAssignment = true

	s.ClearDispositions()

	assert.Equal(t, data.ActionDoNothing, s.RepoByID(1).Action)
	assert.Equal(t, data.ActionDoNothing, s.PullByID(10).Action)
	assert.Assert(t, !s.PullByID(10).IsNewAssignment)
}

func TestMarkLongCleanReposDirty(t *testing.T) {
	s := store.NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.SetRepo(&data.Repo{ID: 1, ServerID: "a", LastDirtied: now.Add(-2 * time.Hour)})
	s.SetRepo(&data.Repo{ID: 2, ServerID: "a", LastDirtied: now.Add(-5 * time.Minute)})
	s.SetRepo(&data.Repo{ID: 3, ServerID: "a", Dirty: true, LastDirtied: now.Add(-3 * time.Hour)})

	n := s.MarkLongCleanReposDirty(time.Hour, now)
	assert.Equal(t, 1, n)
	assert.Assert(t, s.RepoByID(1).Dirty)
	assert.Assert(t, !s.RepoByID(2).Dirty)
}

func TestServerFailureTracking(t *testing.T) {
	s := store.NewMemory()
	seed(s)
	s.AddServer(&data.Server{ID: "c", Label: "no token"})

	s.ResetSyncSuccess()
	assert.Assert(t, s.AllServersSucceeded())

	s.MarkServerFailed("b")
	assert.Assert(t, !s.AllServersSucceeded())

	// Servers without credentials never count against the cycle.
	s.MarkServerFailed("c")
	s.MarkServerFailed("b")
	s.ResetSyncSuccess()
	assert.Assert(t, s.AllServersSucceeded())
}

func TestBoltRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trailer.db")

	s, err := store.Open(path)
	assert.NilError(t, err)
	seed(s)
	s.SetMeta(store.Meta{LastSuccessfulRefresh: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	assert.NilError(t, s.Commit())
	assert.NilError(t, s.Close())

	reopened, err := store.Open(path)
	assert.NilError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, len(reopened.Servers()))
	assert.Equal(t, "o/alpha", reopened.RepoByID(1).FullName)
	assert.Equal(t, "alpha pull", reopened.PullByID(10).Title)
	assert.Equal(t, "world", reopened.CommentByID(200).Body)
	assert.Assert(t, reopened.GetMeta().LastSuccessfulRefresh.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestCommitDropsNukedObjectsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trailer.db")

	s, err := store.Open(path)
	assert.NilError(t, err)
	seed(s)
	assert.NilError(t, s.Commit())

	s.Begin()
	s.PullByID(10).Action = data.ActionDelete
	s.NukeDeletedItems()
	assert.NilError(t, s.Commit())
	assert.NilError(t, s.Close())

	reopened, err := store.Open(path)
	assert.NilError(t, err)
	defer reopened.Close()

	assert.Assert(t, reopened.PullByID(10) == nil)
	assert.Assert(t, reopened.PullByID(20) != nil)
}
