package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"bankassist/internal/api"
)

// DefaultTransactionLimit matches the service-side default page size.
const DefaultTransactionLimit = 50

// ErrSuperseded reports that a drilldown fetch resolved after a newer request
// for another account was issued; its result was discarded.
var ErrSuperseded = errors.New("drilldown request superseded")

// FetchError is a retryable failure loading accounts or transactions. The
// view surfaces it as an empty state plus a retry affordance.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Service is the slice of the remote API the aggregator needs.
type Service interface {
	ListAccounts(ctx context.Context) ([]api.Account, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]api.Transaction, error)
}

// Drilldown is the transaction history modal for one selected account.
// Transactions is never nil: an account with no transactions yields an
// explicit empty slice, distinct from "no drilldown open".
type Drilldown struct {
	Account      api.Account
	Transactions []api.Transaction
}

// Aggregator owns the account list and the drilldown selection. Account and
// transaction snapshots are replaced wholesale by re-fetch, never merged.
type Aggregator struct {
	svc    Service
	logger *slog.Logger

	mu        sync.Mutex
	accounts  []api.Account
	drilldown *Drilldown
	// account id of the most recent OpenDrilldown request; slower responses
	// for other accounts are discarded against it
	requested int64
}

func NewAggregator(svc Service, logger *slog.Logger) *Aggregator {
	return &Aggregator{svc: svc, logger: logger}
}

// LoadAccounts fetches the full account list and replaces any prior list
// wholesale. A stale account absent from the new list disappears from the
// view. On failure the list is left empty.
func (a *Aggregator) LoadAccounts(ctx context.Context) ([]api.Account, error) {
	fetched, err := a.svc.ListAccounts(ctx)
	if err != nil {
		a.mu.Lock()
		a.accounts = nil
		a.mu.Unlock()
		a.logger.Warn("failed to load accounts", "error", err)
		return nil, &FetchError{Op: "load accounts", Err: err}
	}

	a.mu.Lock()
	a.accounts = fetched
	a.mu.Unlock()

	a.logger.Info("accounts loaded", "count", len(fetched))
	return fetched, nil
}

// TotalBalance sums current balances across accounts; 0 for an empty list.
// Accounts are assumed to share one currency per deployment; summing across
// currencies is out of scope.
func TotalBalance(accounts []api.Account) float64 {
	var total float64
	for _, account := range accounts {
		total += account.CurrentBalance
	}
	return total
}

// LoadTransactions fetches up to limit most-recent transactions for one
// account. Independent per account: it touches no cached data for others.
func (a *Aggregator) LoadTransactions(ctx context.Context, accountID int64, limit int) ([]api.Transaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	transactions, err := a.svc.ListTransactions(ctx, accountID, limit)
	if err != nil {
		a.logger.Warn("failed to load transactions", "account_id", accountID, "error", err)
		return nil, &FetchError{Op: "load transactions", Err: err}
	}
	if transactions == nil {
		transactions = []api.Transaction{}
	}
	return transactions, nil
}

// OpenDrilldown loads the account's history and commits the selection only
// after the fetch resolves, so the modal never opens empty or stale. A fetch
// that resolves after a newer OpenDrilldown for another account is discarded.
func (a *Aggregator) OpenDrilldown(ctx context.Context, account api.Account) (*Drilldown, error) {
	a.mu.Lock()
	a.requested = account.AccountID
	a.mu.Unlock()

	transactions, err := a.LoadTransactions(ctx, account.AccountID, DefaultTransactionLimit)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.requested != account.AccountID {
		a.logger.Info("discarding stale drilldown result", "account_id", account.AccountID)
		return nil, ErrSuperseded
	}

	if err != nil {
		// The modal does not open on failure.
		a.requested = 0
		return nil, err
	}

	a.drilldown = &Drilldown{Account: account, Transactions: transactions}
	a.logger.Info("drilldown opened", "account_id", account.AccountID, "transactions", len(transactions))
	return a.drilldown, nil
}

// CloseDrilldown discards the selection.
func (a *Aggregator) CloseDrilldown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drilldown = nil
	a.requested = 0
}

// Drilldown returns the active selection, or nil when no modal is open.
func (a *Aggregator) Drilldown() *Drilldown {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drilldown
}

// Accounts returns a copy of the current account list.
func (a *Aggregator) Accounts() []api.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]api.Account, len(a.accounts))
	copy(out, a.accounts)
	return out
}

// Reset discards all loaded state. Called on logout.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts = nil
	a.drilldown = nil
	a.requested = 0
}
