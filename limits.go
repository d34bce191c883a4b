package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Chemokoren/trailer/pkg/engine"
	"github.com/Chemokoren/trailer/pkg/store"
)

const limitsHelp = `Show the remaining API rate budget for each server.`

func (cmd *limitsCommand) Name() string      { return "limits" }
func (cmd *limitsCommand) Args() string      { return "" }
func (cmd *limitsCommand) ShortHelp() string { return limitsHelp }
func (cmd *limitsCommand) LongHelp() string  { return limitsHelp }
func (cmd *limitsCommand) Hidden() bool      { return false }

func (cmd *limitsCommand) Register(fs *flag.FlagSet) {}

type limitsCommand struct{}

func (cmd *limitsCommand) Run(ctx context.Context, args []string) error {
	return runCommand(ctx, cmd.handleLimits)
}

func (cmd *limitsCommand) handleLimits(ctx context.Context, eng *engine.Engine, st *store.Store) error {
	for _, server := range st.Servers() {
		if !server.GoodToGo() {
			continue
		}
		remaining, limit, reset, err := eng.Client().RateLimits(ctx, server)
		if err != nil {
			return fmt.Errorf("failed to get rate limit from %s: %v", server.Label, err)
		}
		if reset.IsZero() {
			fmt.Printf("%s: rate limiting disabled\n", server.Label)
			continue
		}
		fmt.Printf("%s: %d of %d requests remaining, resets at %s\n", server.Label, remaining, limit, reset)
	}
	return nil
}
