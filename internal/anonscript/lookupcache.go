package anonscript

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/icore/internal/spreadsheet"
)

// LookupCache persists a parsed mapping spreadsheet's rows in a local sqlite
// database, keyed by the spreadsheet's path and modification time. Mapping
// spreadsheets can carry thousands of MRN-to-pseudonym rows; caching avoids
// re-parsing the same spreadsheet on every resumed run.
type LookupCache struct {
	db *sql.DB
}

// OpenLookupCache opens (creating if absent) the cache database at
// appdataDir/lookup_cache.db.
func OpenLookupCache(appdataDir string) (*LookupCache, error) {
	db, err := sql.Open("sqlite", filepath.Join(appdataDir, "lookup_cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open lookup cache: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS mapping_rows (
	spreadsheet_path TEXT NOT NULL,
	spreadsheet_mtime INTEGER NOT NULL,
	tag_name TEXT NOT NULL,
	original TEXT NOT NULL,
	replacement TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mapping_rows_path ON mapping_rows(spreadsheet_path, spreadsheet_mtime);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create lookup cache schema: %w", err)
	}
	return &LookupCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *LookupCache) Close() error {
	return c.db.Close()
}

// Get returns the cached mapping table for path if a row set was stored
// under the same modification time; ok is false on a cache miss.
func (c *LookupCache) Get(path string, mtime time.Time) (mt *spreadsheet.MappingTable, ok bool, err error) {
	rows, err := c.db.Query(
		`SELECT tag_name, original, replacement FROM mapping_rows WHERE spreadsheet_path = ? AND spreadsheet_mtime = ? ORDER BY tag_name`,
		path, mtime.Unix())
	if err != nil {
		return nil, false, fmt.Errorf("query lookup cache: %w", err)
	}
	defer rows.Close()

	byTag := map[string]*spreadsheet.MappingPair{}
	var order []string
	for rows.Next() {
		var tagName, original, replacement string
		if err := rows.Scan(&tagName, &original, &replacement); err != nil {
			return nil, false, fmt.Errorf("scan lookup cache row: %w", err)
		}
		p, exists := byTag[tagName]
		if !exists {
			p = &spreadsheet.MappingPair{TagName: tagName}
			byTag[tagName] = p
			order = append(order, tagName)
		}
		p.Originals = append(p.Originals, original)
		p.Replacements = append(p.Replacements, replacement)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(order) == 0 {
		return nil, false, nil
	}

	mt = &spreadsheet.MappingTable{}
	for _, tagName := range order {
		mt.Pairs = append(mt.Pairs, *byTag[tagName])
	}
	return mt, true, nil
}

// Put stores mt's rows under (path, mtime), replacing any prior entry.
func (c *LookupCache) Put(path string, mtime time.Time, mt *spreadsheet.MappingTable) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin lookup cache tx: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM mapping_rows WHERE spreadsheet_path = ? AND spreadsheet_mtime = ?`, path, mtime.Unix()); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear stale lookup cache rows: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO mapping_rows (spreadsheet_path, spreadsheet_mtime, tag_name, original, replacement) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare lookup cache insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range mt.Pairs {
		for i, original := range p.Originals {
			if _, err := stmt.Exec(path, mtime.Unix(), p.TagName, original, p.Replacements[i]); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert lookup cache row: %w", err)
			}
		}
	}
	return tx.Commit()
}

// LoadMappingTableCached loads path's mapping table, consulting cache first
// and refreshing it on a miss.
func LoadMappingTableCached(cache *LookupCache, path string) (*spreadsheet.MappingTable, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat mapping spreadsheet %s: %w", path, err)
	}
	mtime := info.ModTime()
	if mt, ok, err := cache.Get(path, mtime); err == nil && ok {
		return mt, nil
	}

	mt, err := spreadsheet.LoadMappingTable(path)
	if err != nil {
		return nil, err
	}
	if err := cache.Put(path, mtime, mt); err != nil {
		return nil, fmt.Errorf("populate lookup cache: %w", err)
	}
	return mt, nil
}
