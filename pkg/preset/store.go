package preset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a preset does not exist.
var ErrNotFound = errors.New("preset: not found")

const keyPrefix = "preset:"

// StoreOptions configures a Store.
type StoreOptions struct {
	// Dir is the directory for the Badger files. Required unless InMemory.
	Dir string

	// InMemory keeps everything in memory. Useful for tests.
	InMemory bool

	// Logger receives Badger warnings and errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store persists presets in Badger as msgpack values.
type Store struct {
	db *badger.DB
}

// Open opens or creates a preset store.
func Open(opts StoreOptions) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("preset: StoreOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{l: opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("preset: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save validates and writes p under its name, replacing any previous
// preset of that name.
func (s *Store) Save(_ context.Context, p Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("preset: encode %s: %w", p.Name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+p.Name), data)
	})
}

// Load reads the preset called name. Builtin presets are returned when no
// stored preset overrides them.
func (s *Store) Load(_ context.Context, name string) (Preset, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		if p, ok := Builtins()[name]; ok {
			return p, nil
		}
		return Preset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Preset{}, err
	}
	var p Preset
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("preset: decode %s: %w", name, err)
	}
	return p, nil
}

// List returns the names of the stored and builtin presets, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for name := range Builtins() {
		seen[name] = true
	}
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			seen[strings.TrimPrefix(string(it.Item().Key()), keyPrefix)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored preset. Deleting a missing preset is not an
// error; builtins cannot be removed and reappear after deletion.
func (s *Store) Delete(_ context.Context, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + name))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger forwards Badger warnings and errors to slog and drops the
// chatty info and debug output.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) logger() *slog.Logger {
	if b.l != nil {
		return b.l
	}
	return slog.Default()
}

func (b badgerLogger) Errorf(f string, v ...interface{}) {
	b.logger().Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (b badgerLogger) Warningf(f string, v ...interface{}) {
	b.logger().Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
