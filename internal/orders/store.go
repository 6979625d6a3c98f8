package orders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Store is the persistence boundary for the order collection. Load
// returns orders in file order; Save replaces the whole collection.
type Store interface {
	Load() ([]Order, error)
	Save(orders []Order) error
}

// FileStore persists the order collection as a single JSON array with
// whole-file replace semantics. The manager is its only runtime writer.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads every persisted order. An absent file is an empty
// collection, not an error. An unreadable file, an undecodable element
// or an unknown status label is a CorruptStoreError; the caller decides
// how severe that is. Elements that are neither sell nor buy shaped are
// skipped with a warning so one foreign record cannot strand the rest.
func (s *FileStore) Load() ([]Order, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}

	logger := log.With().Str("component", "order_store").Logger()

	orders := make([]Order, 0, len(elements))
	for _, raw := range elements {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, &CorruptStoreError{Path: s.path, Err: err}
		}
		_, isSell := probe["min_price"]
		_, isBuy := probe["max_price"]

		var order Order
		switch {
		case isSell:
			var sell SellOrder
			if err := json.Unmarshal(raw, &sell); err != nil {
				return nil, &CorruptStoreError{Path: s.path, Err: err}
			}
			order = &sell
		case isBuy:
			var buy BuyOrder
			if err := json.Unmarshal(raw, &buy); err != nil {
				return nil, &CorruptStoreError{Path: s.path, Err: err}
			}
			order = &buy
		default:
			logger.Warn().RawJSON("record", raw).Msg("unknown order shape in store, skipping")
			continue
		}

		if !order.GetStatus().valid() {
			return nil, &CorruptStoreError{
				Path: s.path,
				Err:  fmt.Errorf("unknown order status %q", order.GetStatus()),
			}
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Save serializes the full collection and replaces the file in one write.
func (s *FileStore) Save(orders []Order) error {
	if orders == nil {
		orders = []Order{}
	}

	data, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding orders: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating order store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing order store: %w", err)
	}
	return nil
}
