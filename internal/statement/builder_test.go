package statement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/accountledger/internal/ledger"
)

var day = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	engine  *ledger.Engine
	builder *Builder
	dir     *ledger.StaticDirectory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := ledger.NewStaticDirectory()
	dir.PutClient(ledger.Client{ID: "client-1", Name: "Jose Lema"})
	dir.PutAccount(ledger.Account{ID: "a1", Number: "001", Type: "savings", InitialBalance: dec("1000"), Active: true, ClientID: "client-1"})
	engine := ledger.NewEngine(ledger.NewInMemory(), dir, ledger.EngineConfig{
		Clients: dir,
		Now:     func() time.Time { return day },
	})
	return fixture{engine: engine, builder: NewBuilder(dir, dir, engine), dir: dir}
}

func (f fixture) record(t *testing.T, number, value string, date time.Time) {
	t.Helper()
	_, err := f.engine.RecordMovement(context.Background(), ledger.MovementInput{AccountNumber: number, Date: date, Type: "movement", Value: dec(value)})
	require.NoError(t, err)
}

func TestBuild_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, "001", "500", day)

	_, err := f.engine.RecordMovement(ctx, ledger.MovementInput{AccountNumber: "001", Date: day, Value: dec("-2000")})
	var insufficient *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Prior.Equal(dec("1500")))

	f.record(t, "001", "-1500", day)

	st, err := f.builder.Build(ctx, "client-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "Jose Lema", st.ClientName)
	require.Len(t, st.Accounts, 1)
	acct := st.Accounts[0]
	assert.True(t, acct.ClosingBalance.IsZero(), "closing %s", acct.ClosingBalance)
	require.Len(t, acct.Movements, 2)
	assert.True(t, acct.Movements[0].Value.Equal(dec("500")), "lines are chronological")

	assert.True(t, st.Summary.TotalCredits.Equal(dec("500")))
	assert.True(t, st.Summary.TotalDebits.Equal(dec("1500")))
	assert.True(t, st.Summary.ClosingBalance.IsZero())
}

func TestBuild_RangeAndMultipleAccounts(t *testing.T) {
	f := newFixture(t)
	f.dir.PutAccount(ledger.Account{ID: "a2", Number: "002", Type: "checking", InitialBalance: dec("50"), Active: true, ClientID: "client-1"})
	f.dir.PutAccount(ledger.Account{ID: "a3", Number: "003", Type: "checking", InitialBalance: dec("20"), Active: true, ClientID: "client-1"})
	f.dir.PutClient(ledger.Client{ID: "client-2", Name: "Other"})
	f.dir.PutAccount(ledger.Account{ID: "a4", Number: "004", Type: "checking", InitialBalance: dec("0"), Active: true, ClientID: "client-2"})

	f.record(t, "001", "100", day.AddDate(0, 0, -5))
	f.record(t, "001", "-300", day)
	f.record(t, "002", "25", day.AddDate(0, 0, -1))
	f.record(t, "002", "-10", day.AddDate(0, 0, 3))
	f.record(t, "004", "999", day)

	st, err := f.builder.Build(context.Background(), "client-1", day.AddDate(0, 0, -1), day)
	require.NoError(t, err)
	require.Len(t, st.Accounts, 3)
	assert.Equal(t, []string{"001", "002", "003"}, []string{st.Accounts[0].Number, st.Accounts[1].Number, st.Accounts[2].Number})

	// 001: only the debit is in range
	assert.True(t, st.Accounts[0].ClosingBalance.Equal(dec("800")))
	// 002: the later debit is outside the range
	assert.True(t, st.Accounts[1].ClosingBalance.Equal(dec("75")))
	// 003: no movements at all
	assert.True(t, st.Accounts[2].ClosingBalance.Equal(dec("20")))
	assert.Empty(t, st.Accounts[2].Movements)

	assert.True(t, st.Summary.TotalCredits.Equal(dec("25")))
	assert.True(t, st.Summary.TotalDebits.Equal(dec("300")))
	assert.True(t, st.Summary.ClosingBalance.Equal(dec("895")))
}

func TestBuild_Deterministic(t *testing.T) {
	f := newFixture(t)
	f.record(t, "001", "10", day)
	f.record(t, "001", "-5", day)

	first, err := f.builder.Build(context.Background(), "client-1", day, day)
	require.NoError(t, err)
	second, err := f.builder.Build(context.Background(), "client-1", day, day)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.builder.Build(context.Background(), "ghost", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)

	_, err = f.builder.Build(context.Background(), "client-1", day, day.AddDate(0, 0, -1))
	assert.True(t, errors.Is(err, ErrInvalidRange))
}
