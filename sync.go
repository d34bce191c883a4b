package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Chemokoren/trailer/pkg/engine"
	"github.com/Chemokoren/trailer/pkg/store"
)

const syncHelp = `Run one sync cycle against the configured servers.`

func (cmd *syncCommand) Name() string      { return "sync" }
func (cmd *syncCommand) Args() string      { return "[OPTIONS]" }
func (cmd *syncCommand) ShortHelp() string { return syncHelp }
func (cmd *syncCommand) LongHelp() string  { return syncHelp }
func (cmd *syncCommand) Hidden() bool      { return false }

func (cmd *syncCommand) Register(fs *flag.FlagSet) {}

type syncCommand struct{}

func (cmd *syncCommand) Run(ctx context.Context, args []string) error {
	return runCommand(ctx, cmd.handleSync)
}

func (cmd *syncCommand) handleSync(ctx context.Context, eng *engine.Engine, st *store.Store) error {
	err := eng.Run(ctx)

	fmt.Printf("%d repositories, %d pull requests tracked\n", len(st.Repos()), len(st.AllPulls()))
	fmt.Println(eng.LastUpdateDescription())

	return err
}
