// Package storage persists the order journal and closed-trade results.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/tidwall/buntdb"

	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/logger"
)

// orderIndex orders journal iteration by update timestamp
const orderIndex = "update_index"

// OrderJournal implements core.OrderStorage on BuntDB
type OrderJournal struct {
	lastID int64
	db     *buntdb.DB
	log    logger.Logger
}

// NewOrderJournalMemory creates an in-memory journal, used by tests and dry runs
func NewOrderJournalMemory(log logger.Logger) (*OrderJournal, error) {
	return NewOrderJournal(":memory:", log)
}

// NewOrderJournal opens or creates the journal file
func NewOrderJournal(sourceFile string, log logger.Logger) (*OrderJournal, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.EverySecond}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(orderIndex, "*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &OrderJournal{db: db, log: log}, nil
}

func (j *OrderJournal) nextID() int64 {
	return atomic.AddInt64(&j.lastID, 1)
}

// CreateOrder stores a freshly submitted child order
func (j *OrderJournal) CreateOrder(_ context.Context, order *core.Order) error {
	return j.db.Update(func(tx *buntdb.Tx) error {
		if order.ID == 0 {
			order.ID = j.nextID()
		}

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		key := strconv.FormatInt(order.ID, 10)
		if _, _, err = tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to store order: %w", err)
		}
		return nil
	})
}

// UpdateOrder rewrites an existing journal entry
func (j *OrderJournal) UpdateOrder(_ context.Context, order *core.Order) error {
	return j.db.Update(func(tx *buntdb.Tx) error {
		key := strconv.FormatInt(order.ID, 10)

		if _, err := tx.Get(key); err != nil {
			return fmt.Errorf("%w: journal id %d", core.ErrOrderNotFound, order.ID)
		}

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		if _, _, err = tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return nil
	})
}

// Orders returns journal entries matching every filter, oldest update first
func (j *OrderJournal) Orders(_ context.Context, filters ...core.OrderFilter) ([]*core.Order, error) {
	orders := make([]*core.Order, 0)

	err := j.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(orderIndex, func(key, value string) bool {
			var order core.Order
			if err := json.Unmarshal([]byte(value), &order); err != nil {
				j.log.Warnf("skipping malformed journal entry %s: %v", key, err)
				return true
			}

			for _, filter := range filters {
				if !filter(order) {
					return true
				}
			}

			orders = append(orders, &order)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	return orders, nil
}

// Close closes the journal file
func (j *OrderJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
