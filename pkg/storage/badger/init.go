package badger

import (
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrDelete       = errors.New("delete error")
)

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

// NewInMemoryDatabase opens a badger instance that never touches disk.
func NewInMemoryDatabase() (*Database, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, pkgerrors.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return val, nil
}

// create writes key only if it is absent, inside one transaction.
func (d *Database) create(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return pkgerrors.ErrEntityExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		return txn.Set(key, val)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pkgerrors.ErrEntityExists):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
}

func (d *Database) delete(key []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}

		return txn.Delete(key)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return pkgerrors.ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}
}

func (d *Database) listWithPrefix(prefix []byte, offset, limit uint64) ([][]byte, error) {
	var items [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = int(min(limit, 1000))
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := uint64(0)
		count := uint64(0)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++

				continue
			}
			if count >= limit {
				break
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, val)
			count++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return items, nil
}

func (d *Database) keysWithPrefix(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return keys, nil
}

// last returns the value of the greatest key under prefix.
func (d *Database) last(prefix []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return pkgerrors.ErrNotFound
		}
		var err error
		val, err = it.Item().ValueCopy(nil)

		return err
	})
	switch {
	case err == nil:
		return val, nil
	case errors.Is(err, pkgerrors.ErrNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
}

func (d *Database) countWithPrefix(prefix []byte) (uint64, error) {
	keys, err := d.keysWithPrefix(prefix)
	if err != nil {
		return 0, err
	}

	return uint64(len(keys)), nil
}
