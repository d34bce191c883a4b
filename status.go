package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Chemokoren/trailer/pkg/engine"
	"github.com/Chemokoren/trailer/pkg/store"
)

const statusHelp = `Show when the local copy was last brought up to date.`

func (cmd *statusCommand) Name() string      { return "status" }
func (cmd *statusCommand) Args() string      { return "" }
func (cmd *statusCommand) ShortHelp() string { return statusHelp }
func (cmd *statusCommand) LongHelp() string  { return statusHelp }
func (cmd *statusCommand) Hidden() bool      { return false }

func (cmd *statusCommand) Register(fs *flag.FlagSet) {}

type statusCommand struct{}

func (cmd *statusCommand) Run(ctx context.Context, args []string) error {
	return runCommand(ctx, cmd.handleStatus)
}

func (cmd *statusCommand) handleStatus(ctx context.Context, eng *engine.Engine, st *store.Store) error {
	fmt.Println(eng.LastUpdateDescription())
	return nil
}
