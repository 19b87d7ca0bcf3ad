package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/farmtrace/provenance/common/config"
	"github.com/farmtrace/provenance/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Client is the per-process gateway to the ledger. One contract binding is
// created lazily on first use and shared by every caller; reads may run
// concurrently, submissions queue behind the wallet session (one pending
// confirmation at a time).
type Client struct {
	provider Provider
	bind     BindFunc
	log      Logger

	submitTimeout time.Duration
	readTimeout   time.Duration
	minorPerToken uint64

	bindMu   sync.Mutex
	contract Contract

	// held for the whole broadcast-and-confirm window of one submission
	submitMu sync.Mutex
}

// New creates a ledger client. The binding is not dialed until first use.
func New(provider Provider, bind BindFunc, cfg config.LedgerConfig, log Logger) *Client {
	return &Client{
		provider:      provider,
		bind:          bind,
		log:           log,
		submitTimeout: cfg.SubmitTimeout,
		readTimeout:   cfg.ReadTimeout,
		minorPerToken: cfg.MinorUnitsPerToken,
	}
}

// binding returns the shared contract binding, creating it on first use.
// A failed bind is not cached, so a later call can retry.
func (c *Client) binding(ctx context.Context) (Contract, error) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	if c.contract != nil {
		return c.contract, nil
	}

	contract, err := c.bind(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to bind contract: %w", err)
	}

	c.contract = contract
	c.log.Info("contract binding established")
	return c.contract, nil
}

// Connect opens a wallet session. Callers act on the errors: retry when
// the provider is missing, re-prompt when the holder rejected.
func (c *Client) Connect(ctx context.Context) (AccountHandle, error) {
	if c.provider == nil {
		return AccountHandle{}, ErrProviderUnavailable
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return AccountHandle{}, fmt.Errorf("failed to request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return AccountHandle{}, ErrNoAccounts
	}

	c.log.Info("wallet session opened", "account", accounts[0], "account_count", len(accounts))
	return AccountHandle{Active: accounts[0], All: accounts}, nil
}

// CreateProductInput carries the fields of a createProduct submission.
// The price is given in display-currency minor units and converted with
// the fixed configured rate.
type CreateProductInput struct {
	Name            string
	Description     string
	ContentHash     string
	PriceMinorUnits uint64
}

// CreateProduct submits a product creation and waits for inclusion.
func (c *Client) CreateProduct(ctx context.Context, from models.Address, in CreateProductInput) (models.TxRef, error) {
	price := NativeValue(in.PriceMinorUnits, c.minorPerToken)
	return c.submit(ctx, "createProduct", func(ctx context.Context, contract Contract) (models.TxRef, error) {
		return contract.CreateProduct(ctx, from, in.Name, in.Description, in.ContentHash, price)
	})
}

// CreateBatch submits a batch creation and waits for inclusion.
func (c *Client) CreateBatch(ctx context.Context, from models.Address, productIDs []uint64, location string) (models.TxRef, error) {
	return c.submit(ctx, "createBatch", func(ctx context.Context, contract Contract) (models.TxRef, error) {
		return contract.CreateBatch(ctx, from, productIDs, location)
	})
}

// UpdateBatchLocation submits a location update and waits for inclusion.
func (c *Client) UpdateBatchLocation(ctx context.Context, from models.Address, batchID uint64, location string) (models.TxRef, error) {
	return c.submit(ctx, "updateBatchLocation", func(ctx context.Context, contract Contract) (models.TxRef, error) {
		return contract.UpdateBatchLocation(ctx, from, batchID, location)
	})
}

// PurchaseBatch submits a payable purchase. The paid value is the batch
// total in minor units converted to the ledger's native unit.
func (c *Client) PurchaseBatch(ctx context.Context, from models.Address, batchID, totalMinorUnits uint64) (models.TxRef, error) {
	value := NativeValue(totalMinorUnits, c.minorPerToken)
	return c.submit(ctx, "purchaseBatch", func(ctx context.Context, contract Contract) (models.TxRef, error) {
		return contract.PurchaseBatch(ctx, from, batchID, value)
	})
}

type submitFunc func(ctx context.Context, contract Contract) (models.TxRef, error)

func (c *Client) submit(ctx context.Context, op string, fn submitFunc) (models.TxRef, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return "", err
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	start := time.Now()
	ref, err := fn(ctx, contract)
	if err != nil {
		return "", c.submitErr(op, err)
	}

	if err := contract.WaitIncluded(ctx, ref); err != nil {
		return "", c.submitErr(op, err)
	}

	c.log.Info("transaction included", "op", op, "tx_ref", ref, "took", time.Since(start))
	return ref, nil
}

func (c *Client) submitErr(op string, err error) error {
	var revert *RevertError
	switch {
	case errors.As(err, &revert):
		c.log.Warn("transaction reverted", "op", op, "reason", revert.Reason)
		return err
	case errors.Is(err, context.DeadlineExceeded):
		c.log.Error("transaction inclusion timed out", "op", op)
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	default:
		return fmt.Errorf("failed to submit %s: %w", op, err)
	}
}

// ReadProduct reads current product state. ErrNotFound for ids never created.
func (c *Client) ReadProduct(ctx context.Context, id uint64) (models.Product, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return models.Product{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	product, err := contract.Products(ctx, id)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to read product %d: %w", id, err)
	}
	return product, nil
}

// ReadBatch reads current batch state. ErrNotFound for ids never created.
func (c *Client) ReadBatch(ctx context.Context, id uint64) (models.Batch, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return models.Batch{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	batch, err := contract.Batches(ctx, id)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to read batch %d: %w", id, err)
	}
	return batch, nil
}

// ReadProductWithHistory reads a product and its ordered custody chain.
func (c *Client) ReadProductWithHistory(ctx context.Context, id uint64) (models.Product, []models.CustodyEntry, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return models.Product{}, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	product, holders, err := contract.GetProductWithHistory(ctx, id)
	if err != nil {
		return models.Product{}, nil, fmt.Errorf("failed to read product %d history: %w", id, err)
	}

	chain := make([]models.CustodyEntry, len(holders))
	for i, holder := range holders {
		chain[i] = models.CustodyEntry{Holder: holder}
	}
	return product, chain, nil
}

// ProductCount returns the number of products ever created.
func (c *Client) ProductCount(ctx context.Context) (uint64, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	count, err := contract.ProductCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read product count: %w", err)
	}
	return count, nil
}

// BatchCount returns the number of batches ever created.
func (c *Client) BatchCount(ctx context.Context) (uint64, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	count, err := contract.BatchCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read batch count: %w", err)
	}
	return count, nil
}

// HasRole checks a contract role. Advisory only: callers log a warning on
// false for UX guidance, the ledger itself enforces roles on submission.
func (c *Client) HasRole(ctx context.Context, role Role, account models.Address) (bool, error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	ok, err := contract.HasRole(ctx, role, account)
	if err != nil {
		return false, fmt.Errorf("failed to check role %s: %w", role, err)
	}
	c.log.Debug("role check", "role", role, "account", account, "granted", ok)
	return ok, nil
}

// WatchEvents exposes the contract's log watcher to the event synchronizer.
func (c *Client) WatchEvents(ctx context.Context, kind models.EventKind) (<-chan RawLog, func(), error) {
	contract, err := c.binding(ctx)
	if err != nil {
		return nil, nil, err
	}
	return contract.WatchEvents(ctx, kind)
}

// BlockTimestamp resolves a block number to its timestamp via the provider.
func (c *Client) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	if c.provider == nil {
		return time.Time{}, ErrProviderUnavailable
	}
	ts, err := c.provider.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read block %d timestamp: %w", blockNumber, err)
	}
	return ts, nil
}

// ListAccounts returns already-authorized accounts without prompting.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Address, error) {
	if c.provider == nil {
		return nil, ErrProviderUnavailable
	}
	accounts, err := c.provider.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}
