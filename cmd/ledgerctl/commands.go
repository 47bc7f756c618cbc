package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/congo-pay/accountledger/internal/app"
	"github.com/congo-pay/accountledger/internal/ledger"
	"github.com/congo-pay/accountledger/internal/statement"
)

// errInconsistent makes verify exit non-zero when stale balances are found.
var errInconsistent = errors.New("account chain is inconsistent")

type env struct {
	ctx      context.Context
	services *app.Services
	out      io.Writer
}

type StatementCmd struct {
	Client string `help:"Client id." required:""`
	From   string `help:"First day of the range (YYYY-MM-DD)."`
	To     string `help:"Last day of the range (YYYY-MM-DD)."`
	Format string `help:"Output format." enum:"json,pdf" default:"json"`
	Output string `help:"Write to this file instead of stdout." short:"o" type:"path"`
}

func (cmd *StatementCmd) Run(e *env) error {
	from, err := optionalDate(cmd.From)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := optionalDate(cmd.To)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	st, err := e.services.Statements.Build(e.ctx, cmd.Client, from, to)
	if err != nil {
		return err
	}

	var payload []byte
	switch cmd.Format {
	case "pdf":
		payload, err = statement.RenderPDF(st)
	default:
		payload, err = json.MarshalIndent(st, "", "  ")
		payload = append(payload, '\n')
	}
	if err != nil {
		return err
	}

	if cmd.Output == "" {
		_, err = e.out.Write(payload)
		return err
	}
	return os.WriteFile(cmd.Output, payload, 0o644)
}

type VerifyCmd struct {
	Account string `help:"Account number." arg:""`
}

func (cmd *VerifyCmd) Run(e *env) error {
	report, err := e.services.Engine.Verify(e.ctx, cmd.Account)
	if err != nil {
		return err
	}
	printReport(e.out, report, "stale")
	if !report.Consistent() {
		return errInconsistent
	}
	return nil
}

type RechainCmd struct {
	Account string `help:"Account number." arg:""`
}

func (cmd *RechainCmd) Run(e *env) error {
	report, err := e.services.Engine.Rechain(e.ctx, cmd.Account)
	if err != nil {
		return err
	}
	printReport(e.out, report, "rewritten")
	return nil
}

func printReport(w io.Writer, r ledger.ChainReport, staleLabel string) {
	fmt.Fprintf(w, "account %s: %d movements checked, %d %s, closing balance %s\n",
		r.AccountNumber, r.Checked, len(r.Stale), staleLabel, r.Closing.StringFixed(2))
	for _, m := range r.Stale {
		fmt.Fprintf(w, "  %s %s %s -> %s\n", ledger.FormatDate(m.Date), m.ID, m.Type, m.Balance.StringFixed(2))
	}
	if r.FirstNegative != "" {
		fmt.Fprintf(w, "  balance goes negative at %s\n", r.FirstNegative)
	}
}

func optionalDate(v string) (time.Time, error) {
	if v = strings.TrimSpace(v); v == "" {
		return time.Time{}, nil
	}
	return ledger.ParseDate(v)
}
