package database

import (
	"fmt"
	"sync"

	"github.com/lstore/lstore/pkg/mvcc"
	"github.com/lstore/lstore/pkg/storage"
)

// Database is the top-level handle for a set of tables sharing one data
// directory, one buffer pool, and one transaction id generator. Every
// table owns its own index and lock manager; the Database itself only
// tracks the registry and lifecycle (open/create/drop/close).
type Database struct {
	config *Config

	mu     sync.RWMutex
	tables map[string]*Table
	merges map[string]*MergeWorker

	bufferPool *storage.BufferPool
	pageStore  *storage.PageStore
	idGen      *mvcc.IDGenerator

	isOpen bool
}

// Open opens (or creates) the database rooted at config.DataDir: it loads
// metadata.json, builds the shared buffer pool and page store, and
// recovers every listed table from its page files.
func Open(config *Config) (*Database, error) {
	if config == nil {
		config = DefaultConfig("./data")
	}

	pageStore, err := storage.NewPageStore(config.DataDir, config.RecordsPerPage)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	bufferPool := storage.NewBufferPool(config.BufferPoolSize, pageStore)

	db := &Database{
		config:     config,
		tables:     make(map[string]*Table),
		merges:     make(map[string]*MergeWorker),
		bufferPool: bufferPool,
		pageStore:  pageStore,
		idGen:      mvcc.NewIDGenerator(),
		isOpen:     true,
	}

	cat, err := loadMetadata(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, tm := range cat.Tables {
		tbl := NewTable(tm.Name, tm.NumColumns, tm.KeyIndex, bufferPool, config)
		if err := tbl.Recover(pageStore); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.attachTable(tbl)
	}

	return db, nil
}

func (db *Database) attachTable(tbl *Table) {
	db.tables[tbl.name] = tbl
	if db.config.EnableBackgroundMerge {
		mw := NewMergeWorker(tbl, db.config.MergeTailThreshold)
		tbl.AttachMergeWorker(mw)
		db.merges[tbl.name] = mw
	}
}

// CreateTable registers a brand-new table named name with numColumns user
// columns, keyIndex of them forming the primary key, and persists the
// updated catalog to metadata.json.
func (db *Database) CreateTable(name string, numColumns, keyIndex int) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.isOpen {
		return nil, ErrDatabaseClosed
	}
	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	if keyIndex < 0 || keyIndex >= numColumns {
		return nil, fmt.Errorf("%w: key index %d out of range for %d columns", ErrInvalidColumn, keyIndex, numColumns)
	}

	tbl := NewTable(name, numColumns, keyIndex, db.bufferPool, db.config)
	db.attachTable(tbl)

	if err := db.persistCatalogLocked(); err != nil {
		delete(db.tables, name)
		delete(db.merges, name)
		return nil, err
	}
	return tbl, nil
}

// Table returns the named table, or ErrTableNotFound.
func (db *Database) Table(name string) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	tbl, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return tbl, nil
}

// DropTable removes a table from the catalog. Its page files are left on
// disk; only metadata.json and the in-memory registry are updated.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if mw, ok := db.merges[name]; ok {
		mw.Shutdown()
		delete(db.merges, name)
	}
	delete(db.tables, name)
	return db.persistCatalogLocked()
}

// ListTables returns every registered table name.
func (db *Database) ListTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	return names
}

// BeginTransaction hands out a fresh transaction bound to this database's
// id generator.
func (db *Database) BeginTransaction() *mvcc.Transaction {
	return mvcc.NewTransaction(db.idGen.Next())
}

// Autocommit wraps fn as a transaction's sole operation, runs it to
// completion (retrying is the TransactionWorker's job, not this one), and
// reports whether it committed.
func (db *Database) Autocommit(fn func(txn *mvcc.Transaction) error) bool {
	txn := db.BeginTransaction()
	txn.AddOperation(fn)
	return txn.Run()
}

// Close flushes and closes the database. If config.FlushOnClose is false,
// resident dirty pages are dropped instead of written back.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.isOpen {
		return nil
	}

	for _, mw := range db.merges {
		mw.Shutdown()
	}

	if db.config.FlushOnClose {
		if err := db.bufferPool.EvictAll(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	} else {
		db.bufferPool.DiscardAll()
	}

	db.isOpen = false
	return nil
}

// Stats returns buffer-pool and per-table statistics, useful for tests
// and diagnostics.
func (db *Database) Stats() map[string]interface{} {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tableStats := make(map[string]interface{}, len(db.tables))
	for name, tbl := range db.tables {
		tbl.mu.RLock()
		tableStats[name] = map[string]interface{}{
			"base_count": tbl.baseCount,
			"tail_count": tbl.tailCount,
			"deleted":    len(tbl.deleted),
		}
		tbl.mu.RUnlock()
	}

	return map[string]interface{}{
		"tables":      len(db.tables),
		"table_stats": tableStats,
		"buffer_pool": db.bufferPool.Stats(),
	}
}

func (db *Database) persistCatalogLocked() error {
	cat := &catalogMeta{Tables: make([]tableMeta, 0, len(db.tables))}
	for name, tbl := range db.tables {
		cat.Tables = append(cat.Tables, tableMeta{
			Name:       name,
			NumColumns: tbl.numColumns,
			KeyIndex:   tbl.keyIndex,
		})
	}
	return storeMetadata(db.config.DataDir, cat)
}
