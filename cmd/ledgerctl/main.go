package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/congo-pay/accountledger/internal/app"
	"github.com/congo-pay/accountledger/internal/config"
	"github.com/congo-pay/accountledger/internal/logging"
)

var cli struct {
	Statement StatementCmd `cmd:"" help:"Build a client statement for a date range."`
	Verify    VerifyCmd    `cmd:"" help:"Replay an account's balances and report stale ones."`
	Rechain   RechainCmd   `cmd:"" help:"Rewrite stale balances of an account."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("ledgerctl"),
		kong.Description("Maintenance commands for the account ledger, run against the configured store."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	ctx.FatalIfErrorf(err)

	logger := logging.New(cfg.LogLevel, cfg.AppName)
	background := context.Background()

	backends, err := app.Connect(background, cfg, logger)
	ctx.FatalIfErrorf(err)

	services, err := app.Build(cfg, backends, logger)
	if err != nil {
		_ = backends.Close()
		ctx.FatalIfErrorf(err)
	}

	err = ctx.Run(&env{ctx: background, services: services, out: os.Stdout})
	if cerr := backends.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "close backends: %v\n", cerr)
	}
	ctx.FatalIfErrorf(err)
}
