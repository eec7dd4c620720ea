package indexer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// DataIndexer stores msgpack encoded values of type T in a SQLite database.
// Every value has a lookup key and belongs to exactly one source file, so all
// values of a file can be replaced at once when the file is analyzed again.
type DataIndexer[T any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewDataIndexer opens (or creates) the database at dbPath
func NewDataIndexer[T any](dbPath string) (*DataIndexer[T], error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN and avoids SQLITE_BUSY
	// when a watcher and a server share the database
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA auto_vacuum=INCREMENTAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			value BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(key);

		CREATE TABLE IF NOT EXISTS entry_files (
			file_path TEXT NOT NULL,
			entry_id INTEGER NOT NULL,
			PRIMARY KEY (file_path, entry_id),
			FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_entry_files_path ON entry_files(file_path);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &DataIndexer[T]{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// ReplaceAllItems stores items grouped as map[filePath]map[key]item and
// makes them the complete content of the index, in a single transaction.
// Files not present in items are dropped.
func (idx *DataIndexer[T]) ReplaceAllItems(items map[string]map[string]T) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM entry_files"); err != nil {
		return fmt.Errorf("failed to delete file associations: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}

	if err := saveItems(tx, items); err != nil {
		return err
	}

	return tx.Commit()
}

// GetValues returns all items stored under key
func (idx *DataIndexer[T]) GetValues(key string) ([]T, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.Query("SELECT value FROM entries WHERE key = ?", key)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanValues[T](rows)
}

// GetValuesByPath returns all items belonging to filePath
func (idx *DataIndexer[T]) GetValuesByPath(filePath string) ([]T, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.Query(`
		SELECT e.value FROM entries e
		INNER JOIN entry_files f ON e.id = f.entry_id
		WHERE f.file_path = ?
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanValues[T](rows)
}

// GetAllValues returns every stored item
func (idx *DataIndexer[T]) GetAllValues() ([]T, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.Query("SELECT value FROM entries")
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanValues[T](rows)
}

// GetAllFilePaths returns every file that has at least one stored item
func (idx *DataIndexer[T]) GetAllFilePaths() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.Query("SELECT DISTINCT file_path FROM entry_files ORDER BY file_path")
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, path)
	}

	return paths, rows.Err()
}

// BatchDeleteByFilePaths deletes all items of the given files in a single transaction
func (idx *DataIndexer[T]) BatchDeleteByFilePaths(filePaths []string) error {
	if len(filePaths) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteFiles(tx, filePaths); err != nil {
		return err
	}

	return tx.Commit()
}

func (idx *DataIndexer[T]) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.Exec("DELETE FROM entry_files; DELETE FROM entries;"); err != nil {
		return err
	}

	_, err := idx.db.Exec("PRAGMA incremental_vacuum")
	return err
}

// Close checkpoints the WAL and closes the database
func (idx *DataIndexer[T]) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, _ = idx.db.Exec("PRAGMA optimize")
	_, _ = idx.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

	return idx.db.Close()
}

func deleteFiles(tx *sql.Tx, filePaths []string) error {
	for _, filePath := range filePaths {
		_, err := tx.Exec(`
			DELETE FROM entries WHERE id IN (
				SELECT entry_id FROM entry_files WHERE file_path = ?
			)
		`, filePath)
		if err != nil {
			return fmt.Errorf("failed to delete entries of %s: %w", filePath, err)
		}

		if _, err := tx.Exec("DELETE FROM entry_files WHERE file_path = ?", filePath); err != nil {
			return fmt.Errorf("failed to delete file associations of %s: %w", filePath, err)
		}
	}
	return nil
}

func saveItems[T any](tx *sql.Tx, items map[string]map[string]T) error {
	entryStmt, err := tx.Prepare("INSERT INTO entries (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare entry statement: %w", err)
	}
	defer func() { _ = entryStmt.Close() }()

	fileStmt, err := tx.Prepare("INSERT INTO entry_files (file_path, entry_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare file statement: %w", err)
	}
	defer func() { _ = fileStmt.Close() }()

	for filePath, keyItems := range items {
		for key, item := range keyItems {
			data, err := msgpack.Marshal(item)
			if err != nil {
				return fmt.Errorf("failed to marshal item %s: %w", key, err)
			}

			result, err := entryStmt.Exec(key, data)
			if err != nil {
				return fmt.Errorf("failed to save item %s: %w", key, err)
			}

			entryID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}

			if _, err := fileStmt.Exec(filePath, entryID); err != nil {
				return fmt.Errorf("failed to save file association: %w", err)
			}
		}
	}

	return nil
}

func scanValues[T any](rows *sql.Rows) ([]T, error) {
	defer func() { _ = rows.Close() }()

	var items []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(data) == 0 {
			continue
		}

		var item T
		if err := msgpack.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
