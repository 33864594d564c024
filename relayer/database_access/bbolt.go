package databaseaccess

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ethernal-Tech/token-bridge/common"
	"github.com/Ethernal-Tech/token-bridge/relayer/core"
	"go.etcd.io/bbolt"
)

var (
	processedNoncesBucket = []byte("ProcessedNonces")
	transfersBucket       = []byte("Transfers")
	watcherCursorsBucket  = []byte("WatcherCursors")
)

type BBoltDatabase struct {
	db *bbolt.DB
}

var _ core.Database = (*BBoltDatabase)(nil)

func (bd *BBoltDatabase) Init(filePath string) error {
	db, err := bbolt.Open(filePath, 0660, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	bd.db = db

	return db.Update(func(tx *bbolt.Tx) error {
		for _, bn := range [][]byte{processedNoncesBucket, transfersBucket, watcherCursorsBucket} {
			_, err := tx.CreateBucketIfNotExists(bn)
			if err != nil {
				return fmt.Errorf("could not bucket: %s, err: %w", string(bn), err)
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) Close() error {
	return bd.db.Close()
}

func (bd *BBoltDatabase) IsNonceProcessed(chainID string, nonce uint64) (bool, error) {
	var result bool

	err := bd.db.View(func(tx *bbolt.Tx) error {
		result = tx.Bucket(processedNoncesBucket).Get(common.ToNonceKey(chainID, nonce)) != nil

		return nil
	})
	if err != nil {
		return false, err
	}

	return result, nil
}

// MarkNonceProcessed writes the nonce record exactly once. bbolt serializes
// update transactions, so the first writer wins and every later caller gets
// common.ErrAlreadyProcessed.
func (bd *BBoltDatabase) MarkNonceProcessed(chainID string, nonce uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(processedNoncesBucket)
		key := common.ToNonceKey(chainID, nonce)

		if bucket.Get(key) != nil {
			return common.ErrAlreadyProcessed
		}

		if err := bucket.Put(key, []byte{1}); err != nil {
			return fmt.Errorf("nonce record write error: %w", err)
		}

		return nil
	})
}

func (bd *BBoltDatabase) AddTransfer(record *core.TransferRecord) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(transfersBucket)

		// replayed intents must not reset an existing record
		if bucket.Get(record.DBKey()) != nil {
			return nil
		}

		bytes, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("could not marshal transfer record: %w", err)
		}

		if err := bucket.Put(record.DBKey(), bytes); err != nil {
			return fmt.Errorf("transfer record write error: %w", err)
		}

		return nil
	})
}

func (bd *BBoltDatabase) UpdateTransfer(record *core.TransferRecord) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		bytes, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("could not marshal transfer record: %w", err)
		}

		if err := tx.Bucket(transfersBucket).Put(record.DBKey(), bytes); err != nil {
			return fmt.Errorf("transfer record write error: %w", err)
		}

		return nil
	})
}

func (bd *BBoltDatabase) GetTransfer(requestID common.Hash) (*core.TransferRecord, error) {
	var result *core.TransferRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(transfersBucket).Get(requestID[:]); len(data) > 0 {
			result = &core.TransferRecord{}

			return json.Unmarshal(data, result)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetTransfersByStatus(
	status core.TransferStatus,
) ([]*core.TransferRecord, error) {
	return bd.getTransfers(func(record *core.TransferRecord) bool {
		return record.Status == status
	})
}

func (bd *BBoltDatabase) GetNonTerminalTransfers() ([]*core.TransferRecord, error) {
	return bd.getTransfers(func(record *core.TransferRecord) bool {
		return !record.IsTerminal()
	})
}

func (bd *BBoltDatabase) getTransfers(
	filterFunc func(*core.TransferRecord) bool,
) ([]*core.TransferRecord, error) {
	var result []*core.TransferRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(transfersBucket).Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			record := &core.TransferRecord{}

			if err := json.Unmarshal(v, record); err != nil {
				return err
			}

			if filterFunc(record) {
				result = append(result, record)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) PruneTerminalTransfers(olderThan time.Time) (int, error) {
	pruned := 0

	err := bd.db.Update(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(transfersBucket).Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			record := &core.TransferRecord{}

			if err := json.Unmarshal(v, record); err != nil {
				return err
			}

			if record.IsTerminal() && record.UpdatedAt.Before(olderThan) {
				if err := cursor.Delete(); err != nil {
					return err
				}

				pruned++
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return pruned, nil
}

func (bd *BBoltDatabase) GetWatcherCursor(chainID string) (uint64, error) {
	var result uint64

	err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(watcherCursorsBucket).Get([]byte(chainID)); len(data) > 0 {
			result = common.BytesToUint64(data)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return result, nil
}

func (bd *BBoltDatabase) SetWatcherCursor(chainID string, blockNumber uint64) error {
	return bd.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(watcherCursorsBucket).Put([]byte(chainID), common.Uint64ToBytes(blockNumber))
		if err != nil {
			return fmt.Errorf("watcher cursor write error: %w", err)
		}

		return nil
	})
}
