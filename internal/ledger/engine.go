package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const defaultMaxRetries = 3

// EngineConfig carries the optional collaborators of an Engine.
type EngineConfig struct {
	// MaxRetries bounds how often a write is retried after ErrWriteConflict.
	MaxRetries int
	Clients    ClientDirectory
	Publisher  Publisher
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine computes, validates and commits movements against the running
// balance of their account.
type Engine struct {
	store      Store
	accounts   AccountDirectory
	clients    ClientDirectory
	publisher  Publisher
	logger     *slog.Logger
	now        func() time.Time
	maxRetries int
	locks      *keyedLocker
}

// NewEngine builds a ledger engine over the given store and account directory.
func NewEngine(store Store, accounts AccountDirectory, cfg EngineConfig) *Engine {
	e := &Engine{
		store:      store,
		accounts:   accounts,
		clients:    cfg.Clients,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
		now:        cfg.Now,
		maxRetries: cfg.MaxRetries,
		locks:      newKeyedLocker(),
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.maxRetries <= 0 {
		e.maxRetries = defaultMaxRetries
	}
	return e
}

// MovementInput captures a movement proposed by a caller.
type MovementInput struct {
	AccountNumber string
	// Date is optional; the zero value means the commit date.
	Date  time.Time
	Type  string
	Value decimal.Decimal
}

// RecordMovement validates the movement against the account's latest balance
// and commits it with the resulting balance.
func (e *Engine) RecordMovement(ctx context.Context, in MovementInput) (Movement, error) {
	if in.Value.IsZero() {
		return Movement{}, fmt.Errorf("%w: value must not be zero", ErrInvalidMovement)
	}

	acct, err := e.activeAccount(ctx, in.AccountNumber)
	if err != nil {
		return Movement{}, err
	}

	var saved Movement
	err = e.serialized(ctx, "record movement", []string{acct.Number}, func() error {
		head, err := e.store.Head(ctx, acct.Number)
		if err != nil {
			return err
		}

		prior := acct.InitialBalance
		if head.Last != nil {
			prior = head.Last.Balance
		}

		now := e.now().UTC()
		date := DateOf(now)
		if !in.Date.IsZero() {
			date = DateOf(in.Date)
		}
		if head.Last != nil && date.Before(head.Last.Date) {
			return fmt.Errorf("%w: date %s precedes latest movement on %s",
				ErrInvalidMovement, FormatDate(date), FormatDate(head.Last.Date))
		}

		balance := prior.Add(in.Value)
		if in.Value.IsNegative() && balance.IsNegative() {
			return &InsufficientFundsError{AccountNumber: acct.Number, Prior: prior, Attempted: in.Value.Abs()}
		}

		saved, err = e.store.Append(ctx, Movement{
			ID:            ulid.Make().String(),
			AccountNumber: acct.Number,
			Date:          date,
			Type:          in.Type,
			Value:         in.Value,
			Balance:       balance,
			CreatedAt:     now,
		}, head)
		return err
	})
	if err != nil {
		return Movement{}, err
	}

	e.publish(ctx, Event{Kind: EventMovementRecorded, Movement: saved})
	return saved, nil
}

// Correction describes the fields of a committed movement to change. Nil fields are kept.
type Correction struct {
	AccountNumber *string
	Type          *string
	Value         *decimal.Decimal
}

// CorrectionResult is the corrected movement plus the number of later movements
// whose stored balance no longer chains and needs Rechain.
type CorrectionResult struct {
	Movement       Movement
	StaleFollowers int
}

// CorrectMovement rewrites a committed movement and recomputes its balance from
// the movement preceding it. Later movements are not re-chained.
func (e *Engine) CorrectMovement(ctx context.Context, id string, c Correction) (CorrectionResult, error) {
	if c.Value != nil && c.Value.IsZero() {
		return CorrectionResult{}, fmt.Errorf("%w: value must not be zero", ErrInvalidMovement)
	}

	current, err := e.store.Get(ctx, id)
	if err != nil {
		return CorrectionResult{}, err
	}
	target := current.AccountNumber
	if c.AccountNumber != nil && *c.AccountNumber != "" {
		target = *c.AccountNumber
	}
	acct, err := e.activeAccount(ctx, target)
	if err != nil {
		return CorrectionResult{}, err
	}

	var result CorrectionResult
	err = e.serialized(ctx, "correct movement", []string{target, current.AccountNumber}, func() error {
		current, err := e.store.Get(ctx, id)
		if err != nil {
			return err
		}
		// The partition read is consistent; prefer its copy over the index lookup.
		sourceChain, err := e.chain(ctx, current.AccountNumber)
		if err != nil {
			return err
		}
		for _, m := range sourceChain {
			if m.ID == id {
				current = m
				break
			}
		}
		source := current.AccountNumber
		moved := source != target

		targetHead, err := e.store.Head(ctx, target)
		if err != nil {
			return err
		}
		heads := []Head{targetHead}

		updated := current
		updated.AccountNumber = target
		if c.Type != nil {
			updated.Type = *c.Type
		}
		if c.Value != nil {
			updated.Value = *c.Value
		}
		if moved {
			updated.Seq = targetHead.Version + 1
		}

		chain, err := e.chain(ctx, target)
		if err != nil {
			return err
		}
		prior := acct.InitialBalance
		stale := 0
		for _, m := range chain {
			if m.ID == updated.ID {
				continue
			}
			if before(m, updated) {
				prior = m.Balance
			} else {
				stale++
			}
		}

		balance := prior.Add(updated.Value)
		if updated.Value.IsNegative() && balance.IsNegative() {
			return &InsufficientFundsError{AccountNumber: target, Prior: prior, Attempted: updated.Value.Abs()}
		}
		updated.Balance = balance

		if moved {
			sourceHead, err := e.store.Head(ctx, source)
			if err != nil {
				return err
			}
			heads = append(heads, sourceHead)
			for _, m := range sourceChain {
				if before(current, m) {
					stale++
				}
			}
		}

		if err := e.store.Rewrite(ctx, heads, []Revision{{Before: current, After: updated}}); err != nil {
			return err
		}
		result = CorrectionResult{Movement: updated, StaleFollowers: stale}
		return nil
	})
	if err != nil {
		return CorrectionResult{}, err
	}

	if result.StaleFollowers > 0 {
		e.logger.Warn("movement corrected without re-chaining later balances",
			slog.String("movement_id", id),
			slog.String("account", target),
			slog.Int("stale_followers", result.StaleFollowers))
	}
	e.publish(ctx, Event{Kind: EventMovementCorrected, Movement: result.Movement, StaleFollowers: result.StaleFollowers})
	return result, nil
}

// DeleteMovement removes the most recent movement of an account. Movements
// that later balances chain from cannot be deleted.
func (e *Engine) DeleteMovement(ctx context.Context, id string) error {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	err = e.serialized(ctx, "delete movement", []string{m.AccountNumber}, func() error {
		head, err := e.store.Head(ctx, m.AccountNumber)
		if err != nil {
			return err
		}
		if head.Last == nil {
			return ErrNotFound
		}
		if head.Last.ID != id {
			if _, err := e.store.Get(ctx, id); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s is not the latest movement of %s", ErrMovementHasDependents, id, m.AccountNumber)
		}
		m = *head.Last
		return e.store.Remove(ctx, m, head)
	})
	if err != nil {
		return err
	}

	e.publish(ctx, Event{Kind: EventMovementDeleted, Movement: m})
	return nil
}

// Verify replays an account's chain and reports stale balances without writing.
func (e *Engine) Verify(ctx context.Context, accountNumber string) (ChainReport, error) {
	acct, err := e.account(ctx, accountNumber)
	if err != nil {
		return ChainReport{}, err
	}
	chain, err := e.chain(ctx, acct.Number)
	if err != nil {
		return ChainReport{}, err
	}
	return replay(acct.Number, acct.InitialBalance, chain), nil
}

// Rechain replays an account's chain and rewrites every stale balance. It is a
// maintenance operation and runs under the account lock.
func (e *Engine) Rechain(ctx context.Context, accountNumber string) (ChainReport, error) {
	acct, err := e.account(ctx, accountNumber)
	if err != nil {
		return ChainReport{}, err
	}

	var report ChainReport
	err = e.serialized(ctx, "rechain", []string{acct.Number}, func() error {
		head, err := e.store.Head(ctx, acct.Number)
		if err != nil {
			return err
		}
		chain, err := e.chain(ctx, acct.Number)
		if err != nil {
			return err
		}
		report = replay(acct.Number, acct.InitialBalance, chain)
		if report.Consistent() {
			return nil
		}
		return e.store.Rewrite(ctx, []Head{head}, revisions(chain, report.Stale))
	})
	if err != nil {
		return ChainReport{}, err
	}

	if !report.Consistent() {
		e.logger.Info("account rechained",
			slog.String("account", acct.Number),
			slog.Int("checked", report.Checked),
			slog.Int("rewritten", len(report.Stale)))
		if report.FirstNegative != "" {
			e.logger.Warn("rechained account goes negative",
				slog.String("account", acct.Number),
				slog.String("movement_id", report.FirstNegative))
		}
		for _, m := range report.Stale {
			e.publish(ctx, Event{Kind: EventAccountRechained, Movement: m})
		}
	}
	return report, nil
}

// HasMovements reports whether any movement exists for the account number.
func (e *Engine) HasMovements(ctx context.Context, accountNumber string) (bool, error) {
	head, err := e.store.Head(ctx, accountNumber)
	if err != nil {
		return false, err
	}
	return head.Last != nil, nil
}

// Balance returns the current balance of an account derived from its latest movement.
func (e *Engine) Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	acct, err := e.account(ctx, accountNumber)
	if err != nil {
		return decimal.Zero, err
	}
	head, err := e.store.Head(ctx, acct.Number)
	if err != nil {
		return decimal.Zero, err
	}
	if head.Last == nil {
		return acct.InitialBalance, nil
	}
	return head.Last.Balance, nil
}

func (e *Engine) chain(ctx context.Context, accountNumber string) ([]Movement, error) {
	ms, err := e.store.Find(ctx, Query{AccountNumbers: []string{accountNumber}})
	if err != nil {
		return nil, err
	}
	SortChronological(ms)
	return ms, nil
}

func (e *Engine) account(ctx context.Context, number string) (Account, error) {
	acct, err := e.accounts.ByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, number)
		}
		return Account{}, err
	}
	return acct, nil
}

func (e *Engine) activeAccount(ctx context.Context, number string) (Account, error) {
	acct, err := e.account(ctx, number)
	if err != nil {
		return Account{}, err
	}
	if !acct.Active {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountInactive, number)
	}
	return acct, nil
}

// serialized runs fn under the locks of accounts, retrying write conflicts.
// The locks are released on return, so callers publish events outside them.
func (e *Engine) serialized(ctx context.Context, op string, accounts []string, fn func() error) error {
	unlock, err := e.locks.LockAll(ctx, accounts...)
	if err != nil {
		return err
	}
	defer unlock()
	return e.withRetry(ctx, op, accounts[0], fn)
}

// withRetry runs fn until it stops failing with ErrWriteConflict or the retry budget is spent.
func (e *Engine) withRetry(ctx context.Context, op, accountNumber string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err = fn(); !errors.Is(err, ErrWriteConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.logger.Debug("write conflict, retrying",
			slog.String("op", op),
			slog.String("account", accountNumber),
			slog.Int("attempt", attempt+1))
	}
	return fmt.Errorf("%s on %s: %w", op, accountNumber, err)
}

func (e *Engine) publish(ctx context.Context, event Event) {
	if e.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("publish ledger event",
			slog.String("kind", string(event.Kind)),
			slog.String("movement_id", event.Movement.ID),
			slog.Any("error", err))
	}
}
