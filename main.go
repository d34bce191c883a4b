package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Chemokoren/trailer/pkg/api"
	"github.com/Chemokoren/trailer/pkg/config"
	"github.com/Chemokoren/trailer/pkg/data"
	"github.com/Chemokoren/trailer/pkg/engine"
	"github.com/Chemokoren/trailer/pkg/store"
	"github.com/Chemokoren/trailer/version"

	"github.com/genuinetools/pkg/cli"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	githubToken string
	apiURL      string
	dbPath      string

	mergePolicy string
	closePolicy string

	debug bool
)

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	p := cli.NewProgram()
	p.Name = "trailer"
	p.Description = "A command line tool to keep a local copy of your GitHub pull requests in sync"

	p.GitCommit = version.GITCOMMIT
	p.Version = version.VERSION

	p.FlagSet = flag.NewFlagSet("global", flag.ExitOnError)
	p.FlagSet.StringVar(&githubToken, "token", os.Getenv("GITHUB_TOKEN"), "GitHub API token (or env var GITHUB_TOKEN)")
	p.FlagSet.StringVar(&apiURL, "url", envOrDefault("GITHUB_API_URL", "https://api.github.com"), "GitHub API base URL, for enterprise installs")
	p.FlagSet.StringVar(&apiURL, "u", envOrDefault("GITHUB_API_URL", "https://api.github.com"), "GitHub API base URL, for enterprise installs")

	p.FlagSet.StringVar(&dbPath, "db", envOrDefault("TRAILER_DB", "trailer.db"), "Path to the local database")

	p.FlagSet.StringVar(&mergePolicy, "merge-policy", "keepMine", "What to do with merged items (keepMine, keepAll, discard)")
	p.FlagSet.StringVar(&closePolicy, "close-policy", "keepMine", "What to do with closed items (keepMine, keepAll, discard)")

	p.FlagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	p.FlagSet.BoolVar(&debug, "d", false, "enable debug logging")

	p.Before = func(ctx context.Context) error {
		if debug {
			logrus.SetLevel(logrus.DebugLevel)
		}

		if len(githubToken) < 1 {
			return errors.New("github token cannot be empty")
		}

		return nil
	}

	p.Commands = []cli.Command{
		&syncCommand{},
		&limitsCommand{},
		&statusCommand{},
	}

	p.Run()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runCommand opens the store, seeds the configured server and hands an
// engine to the command handler. On ^C or SIGTERM outstanding requests are
// cancelled; the engine rolls back whatever was in flight.
func runCommand(ctx context.Context, handle func(context.Context, *engine.Engine, *store.Store) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	signal.Notify(signals, syscall.SIGTERM)
	go func() {
		for sig := range signals {
			logrus.Infof("Received %s, cancelling.", sig.String())
			cancel()
		}
	}()

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	seedServer(st)

	client, err := api.NewClient()
	if err != nil {
		return err
	}
	client.OnRateUpdate = func(s *data.Server) {
		logrus.Debugf("(%s) rate limit: %d/%d remaining", s.Label, s.RequestsRemaining, s.RequestsLimit)
	}

	eng := engine.New(client, st, settings())
	return handle(ctx, eng, st)
}

// seedServer reflects the flag/env configuration into the store. The engine
// itself never creates or destroys servers.
func seedServer(st *store.Store) {
	server := st.ServerByID("default")
	if server == nil {
		server = &data.Server{ID: "default"}
		st.AddServer(server)
	}
	server.Label = "GitHub"
	server.APIPath = apiURL
	server.AuthToken = githubToken
}

func settings() config.Settings {
	s := config.Default()
	s.MergeHandlingPolicy = parsePolicy(mergePolicy)
	s.CloseHandlingPolicy = parsePolicy(closePolicy)
	return s
}

func parsePolicy(name string) config.HandlingPolicy {
	switch name {
	case "keepAll":
		return config.KeepAll
	case "discard":
		return config.Discard
	default:
		return config.KeepMine
	}
}
