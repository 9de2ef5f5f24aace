package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by GetKey when the key does not exist.
var ErrNotFound = badger.ErrKeyNotFound

// loadMaxPendingWrites bounds the write batches badger keeps in flight while loading a backup.
const loadMaxPendingWrites = 256

type Config struct {
	Path string
	// InMemory keeps everything in RAM, Path is ignored. Used by tests.
	InMemory bool
}

// Storage is the key/value store behind the transfer journal.
type Storage interface {
	Close() error

	GetKey(key []byte) ([]byte, error)
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)
	// GetByPrefixReverse is GetByPrefix in descending key order, at most limit items. limit <= 0 means all.
	GetByPrefixReverse(prefix []byte, limit int) ([]*KeyValueItem, error)
	CountKeysByPrefix(prefix []byte) (int64, error)

	Set(key, value []byte) error
	BatchWrite(updates map[string][]byte) error

	GetCounter(key []byte, defaultValue ...uint64) (uint64, error)
	IncCounter(key []byte, defaultValue ...uint64) (uint64, error)

	Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error)
	Load(ctx context.Context, r io.Reader) error

	DbPath() string
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	path string
	db   *badger.DB
}

// NewWithPath opens (or creates) an on-disk journal store at path.
func NewWithPath(path string) (Storage, error) {
	return New(&Config{Path: path})
}

func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// badger logs to stderr by default, which garbles the CLI output
	opts = opts.WithLogger(nil).WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", c.Path, err)
	}
	return &BadgerStorage{path: c.Path, db: db}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) DbPath() string {
	return s.path
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// BatchWrite commits all updates, splitting into several transactions when one grows too big.
func (s *BadgerStorage) BatchWrite(updates map[string][]byte) error {
	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for k, v := range updates {
		err := txn.Set([]byte(k), v)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return err
			}
			txn = s.db.NewTransaction(true)
			err = txn.Set([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (s *BadgerStorage) GetKey(key []byte) (value []byte, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// GetByPrefix returns every item under prefix in ascending key order.
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	return s.collect(prefix, false, 0)
}

func (s *BadgerStorage) GetByPrefixReverse(prefix []byte, limit int) ([]*KeyValueItem, error) {
	return s.collect(prefix, true, limit)
}

// CountKeysByPrefix walks keys only, values are never fetched.
func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	if len(prefix) == 0 {
		return 0, fmt.Errorf("cannot count prefix with length 0")
	}

	var total int64
	err := s.walk(prefix, false, false, func(*badger.Item) (bool, error) {
		total++
		return true, nil
	})
	return total, err
}

func (s *BadgerStorage) collect(prefix []byte, reverse bool, limit int) ([]*KeyValueItem, error) {
	var result []*KeyValueItem
	err := s.walk(prefix, reverse, true, func(item *badger.Item) (bool, error) {
		if limit > 0 && len(result) >= limit {
			return false, nil
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return false, err
		}
		result = append(result, &KeyValueItem{Key: item.KeyCopy(nil), Value: v})
		return true, nil
	})
	return result, err
}

// walk calls fn for each key under prefix until fn returns false or an error.
func (s *BadgerStorage) walk(prefix []byte, reverse, values bool, fn func(*badger.Item) (bool, error)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = values
		opts.PrefetchSize = 30
		opts.Reverse = reverse
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if reverse {
			// in reverse mode Seek lands on the largest key <= start
			start = append(append([]byte{}, prefix...), 0xff)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			more, err := fn(it.Item())
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

// GetCounter returns the counter at key, or defaultValue when it was never set.
func (s *BadgerStorage) GetCounter(key []byte, defaultValue ...uint64) (counter uint64, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		var found bool
		counter, found, err = readCounter(txn, key)
		if !found {
			if len(defaultValue) == 0 {
				return badger.ErrKeyNotFound
			}
			counter = defaultValue[0]
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return counter, nil
}

// IncCounter adds one to the counter at key, starting from defaultValue (or 0), and returns the new value.
func (s *BadgerStorage) IncCounter(key []byte, defaultValue ...uint64) (next uint64, err error) {
	err = s.db.Update(func(txn *badger.Txn) error {
		current, found, err := readCounter(txn, key)
		if err != nil {
			return err
		}
		if !found && len(defaultValue) > 0 {
			current = defaultValue[0]
		}
		next = current + 1
		// stored as text so they are readable from the badger cli
		return txn.Set(key, []byte(strconv.FormatUint(next, 10)))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func readCounter(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var counter uint64
	err = item.Value(func(val []byte) error {
		counter, err = strconv.ParseUint(string(val), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid counter format: %w", err)
		}
		return nil
	})
	return counter, true, err
}

func (s *BadgerStorage) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	return s.db.Backup(w, since)
}

// Load restores a stream written by Backup.
func (s *BadgerStorage) Load(ctx context.Context, r io.Reader) error {
	return s.db.Load(r, loadMaxPendingWrites)
}
