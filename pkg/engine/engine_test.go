package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Chemokoren/trailer/pkg/api"
	"github.com/Chemokoren/trailer/pkg/config"
	"github.com/Chemokoren/trailer/pkg/data"
	"github.com/Chemokoren/trailer/pkg/engine"
	"github.com/Chemokoren/trailer/pkg/store"
	"github.com/Chemokoren/trailer/pkg/testutil"
)

type SyncSuite struct {
	suite.Suite
	mux    *http.ServeMux
	server *httptest.Server
	st     *store.Store
	srv    *data.Server
}

func (s *SyncSuite) SetupTest() {
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)

	s.st = store.NewMemory()
	s.srv = &data.Server{
		ID:                "default",
		Label:             "GitHub",
		APIPath:           s.server.URL,
		AuthToken:         "test-token",
		LastSyncSucceeded: true,
	}
	s.st.AddServer(s.srv)
}

func (s *SyncSuite) TearDownTest() {
	s.server.Close()
}

func (s *SyncSuite) newEngine(settings config.Settings) *engine.Engine {
	client, err := api.NewClient()
	s.Require().Nil(err)
	return engine.New(client, s.st, settings)
}

// seedKnownState sets up a store that looks like the aftermath of an earlier
// successful cycle: identity known, repo list fresh, one open pull on record.
func (s *SyncSuite) seedKnownState() {
	s.srv.UserName = "tester"
	s.srv.UserID = 7
	s.st.SetRepo(&data.Repo{ID: 1, ServerID: "default", FullName: "o/alpha", LastDirtied: time.Now()})
	s.st.SetPull(&data.PullRequest{
		ID:        10,
		RepoID:    1,
		ServerID:  "default",
		Number:    5,
		Title:     "original title",
		Condition: data.ConditionOpen,
	})
	s.st.SetComment(&data.Comment{ID: 100, PullRequestID: 10, ServerID: "default", Body: "existing"})
	s.st.SetMeta(store.Meta{LastRepoCheck: time.Now()})
}

func (s *SyncSuite) handleEvents(events string) {
	s.mux.HandleFunc("/users/tester/events", testutil.Paged(events))
	s.mux.HandleFunc("/users/tester/received_events", testutil.Paged(`[]`))
}

func (s *SyncSuite) TestFirstSyncBuildsFullState() {
	require := s.Require()
	base := s.server.URL

	s.mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusOK, `{"id":7,"login":"tester"}`)
	})
	s.mux.HandleFunc("/user/subscriptions", testutil.Paged(
		`[{"id":1,"full_name":"o/alpha","private":false}]`))
	s.handleEvents(`[{"created_at":"2026-03-01T10:00:00Z","repo":{"id":1}}]`)
	s.mux.HandleFunc("/repos/o/alpha/pulls", testutil.Paged(`[{
		"id":10,"number":5,"title":"Add feature",
		"updated_at":"2026-03-01T09:00:00Z",
		"comments_url":"`+base+`/repos/o/alpha/issues/5/comments",
		"review_comments_url":"`+base+`/repos/o/alpha/pulls/5/comments",
		"statuses_url":"`+base+`/repos/o/alpha/statuses/abc",
		"issue_url":"`+base+`/repos/o/alpha/issues/5"
	}]`))
	s.mux.HandleFunc("/repos/o/alpha/issues/5/comments", testutil.Paged(`[{
		"id":100,"body":"looks good","user":{"id":8,"login":"reviewer"},
		"created_at":"2026-03-01T08:00:00Z","updated_at":"2026-03-01T08:00:00Z"
	}]`))
	s.mux.HandleFunc("/repos/o/alpha/pulls/5/comments", testutil.Paged(`[]`))
	s.mux.HandleFunc("/repos/o/alpha/statuses/abc", testutil.Paged(`[{
		"id":900,"state":"success","description":"build passed",
		"target_url":"","created_at":"2026-03-01T08:30:00Z"
	}]`))
	s.mux.HandleFunc("/repos/o/alpha/issues/5/labels", testutil.Paged(
		`[{"id":300,"name":"bug","color":"ff0000"}]`))
	s.mux.HandleFunc("/repos/o/alpha/issues/5", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusOK, `{"assignee":{"id":7,"login":"tester"}}`)
	})

	eng := s.newEngine(config.Default())
	require.Nil(eng.Run(context.Background()))

	require.Equal("tester", s.srv.UserName)
	require.Equal(int64(7), s.srv.UserID)
	require.True(s.srv.LatestUserEventTime.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	repo := s.st.RepoByID(1)
	require.NotNil(repo)
	require.True(!repo.Dirty)
	require.Equal("o/alpha", repo.FullName)

	p := s.st.PullByID(10)
	require.NotNil(p)
	require.Equal("Add feature", p.Title)
	require.Equal(data.ConditionOpen, p.Condition)
	require.True(p.AssignedToMe)
	require.Equal(data.SectionMine, p.Section)
	require.True(p.LatestReadCommentDate.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))

	require.NotNil(s.st.CommentByID(100))
	require.NotNil(s.st.LabelByID(300))
	require.NotNil(s.st.StatusByID(900))

	require.True(!s.st.GetMeta().LastRepoCheck.IsZero())
	require.True(!s.st.GetMeta().LastSuccessfulRefresh.IsZero())
	require.Equal("Just updated", eng.LastUpdateDescription())
}

func (s *SyncSuite) TestInaccessibleRepoDropsItsPulls() {
	require := s.Require()
	s.seedKnownState()
	s.handleEvents(`[{"created_at":"2026-03-01T10:00:00Z","repo":{"id":1}}]`)
	s.mux.HandleFunc("/repos/o/alpha/pulls", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusNotFound, `{"message":"Not Found"}`)
	})

	eng := s.newEngine(config.Default())
	require.Nil(eng.Run(context.Background()))

	repo := s.st.RepoByID(1)
	require.NotNil(repo)
	require.True(repo.Inaccessible)
	require.Nil(s.st.PullByID(10))
	require.Nil(s.st.CommentByID(100))
	require.True(s.st.AllServersSucceeded())
}

func (s *SyncSuite) TestFailedServerRollsBack() {
	require := s.Require()
	s.seedKnownState()
	s.handleEvents(`[{"created_at":"2026-03-01T10:00:00Z","repo":{"id":1}}]`)
	s.mux.HandleFunc("/repos/o/alpha/pulls", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusInternalServerError, `{}`)
	})

	eng := s.newEngine(config.Default())
	require.Error(eng.Run(context.Background()))

	// The pre-marked deletions never stick: the failed server's cycle is
	// rolled back wholesale.
	p := s.st.PullByID(10)
	require.NotNil(p)
	require.Equal("original title", p.Title)
	require.Equal(data.ConditionOpen, p.Condition)
	require.NotNil(s.st.CommentByID(100))
	require.True(s.st.GetMeta().LastSuccessfulRefresh.IsZero())
	require.Equal("Last update failed", eng.LastUpdateDescription())
}

func (s *SyncSuite) TestVanishedPullFoundMerged() {
	require := s.Require()
	s.seedKnownState()
	s.handleEvents(`[{"created_at":"2026-03-01T10:00:00Z","repo":{"id":1}}]`)
	s.mux.HandleFunc("/repos/o/alpha/pulls", testutil.Paged(`[]`))
	s.mux.HandleFunc("/repos/o/alpha/pulls/5", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusOK,
			`{"id":10,"number":5,"title":"original title","merged_by":{"id":99,"login":"maintainer"}}`)
	})

	settings := config.Default()
	settings.MergeHandlingPolicy = config.KeepAll
	eng := s.newEngine(settings)
	require.Nil(eng.Run(context.Background()))

	p := s.st.PullByID(10)
	require.NotNil(p)
	require.Equal(data.ConditionMerged, p.Condition)
	require.Equal(data.SectionMerged, p.Section)
}

func (s *SyncSuite) TestVanishedPullDiscardedUnderDiscardPolicy() {
	require := s.Require()
	s.seedKnownState()
	s.handleEvents(`[{"created_at":"2026-03-01T10:00:00Z","repo":{"id":1}}]`)
	s.mux.HandleFunc("/repos/o/alpha/pulls", testutil.Paged(`[]`))
	s.mux.HandleFunc("/repos/o/alpha/pulls/5", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusNotFound, `{"message":"Not Found"}`)
	})

	settings := config.Default()
	settings.CloseHandlingPolicy = config.Discard
	eng := s.newEngine(settings)
	require.Nil(eng.Run(context.Background()))

	require.Nil(s.st.PullByID(10))
	require.Nil(s.st.CommentByID(100))
}

func (s *SyncSuite) TestHiddenRepoPullsAreDropped() {
	require := s.Require()
	s.seedKnownState()
	s.st.RepoByID(1).Hidden = true

	// A hidden-only repo list forces a repo rescan, so discovery endpoints
	// are needed too.
	s.mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		testutil.JSONResponse(w, http.StatusOK, `{"id":7,"login":"tester"}`)
	})
	s.mux.HandleFunc("/user/subscriptions", testutil.Paged(
		`[{"id":1,"full_name":"o/alpha","private":false}]`))
	s.handleEvents(`[]`)

	eng := s.newEngine(config.Default())
	require.Nil(eng.Run(context.Background()))

	require.NotNil(s.st.RepoByID(1))
	require.Nil(s.st.PullByID(10))
}

func (s *SyncSuite) TestConcurrentRunIsRefused() {
	require := s.Require()
	s.seedKnownState()

	gate := make(chan struct{})
	s.handleEvents(`[]`)
	s.mux.HandleFunc("/repos/o/alpha/pulls", func(w http.ResponseWriter, r *http.Request) {
		<-gate
		testutil.Paged(`[]`)(w, r)
	})
	s.st.RepoByID(1).Dirty = true

	eng := s.newEngine(config.Default())

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	for !eng.Refreshing() {
		time.Sleep(time.Millisecond)
	}
	require.Error(eng.Run(context.Background()))

	close(gate)
	require.Nil(<-done)
}

func (s *SyncSuite) TestCancelledCycleRollsBack() {
	require := s.Require()
	s.seedKnownState()
	s.handleEvents(`[{"created_at":"2026-03-01T10:00:00Z","repo":{"id":1}}]`)

	gate := make(chan struct{})
	defer close(gate)
	started := make(chan struct{}, 1)
	s.mux.HandleFunc("/repos/o/alpha/pulls", func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
		testutil.Paged(`[]`)(w, r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := s.newEngine(config.Default())

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	<-started
	cancel()
	require.Error(<-done)

	// The interrupted server is failed and its working set is put back the
	// way the last good cycle left it.
	p := s.st.PullByID(10)
	require.NotNil(p)
	require.Equal("original title", p.Title)
	require.Equal(data.ConditionOpen, p.Condition)
	require.NotNil(s.st.CommentByID(100))
	require.True(!s.st.ServerByID("default").LastSyncSucceeded)
	require.True(s.st.GetMeta().LastSuccessfulRefresh.IsZero())
}

func TestSyncSuite(t *testing.T) {
	suite.Run(t, new(SyncSuite))
}
