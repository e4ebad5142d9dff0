package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// MySQL is a KV stored in a two-column table.
type MySQL struct {
	db    *sql.DB
	table string
}

// NewMySQL uses table in db, creating it if needed. The *sql.DB comes from
// config.ConnectDB, which registers the go-sql-driver/mysql driver.
func NewMySQL(ctx context.Context, db *sql.DB, table string) (*MySQL, error) {
	if table == "" {
		table = "kv"
	}
	if strings.ContainsAny(table, "` ;") {
		return nil, errors.Errorf("invalid table name %q", table)
	}
	m := &MySQL{db: db, table: "`" + table + "`"}
	_, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+m.table+
		" (k VARCHAR(191) NOT NULL PRIMARY KEY, v LONGBLOB NOT NULL)")
	if err != nil {
		return nil, errors.Wrap(err, "create kv table")
	}
	return m, nil
}

func (m *MySQL) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := m.db.QueryRowContext(ctx, "SELECT v FROM "+m.table+" WHERE k = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (m *MySQL) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO "+m.table+" (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)", key, value)
	return err
}

func (m *MySQL) Delete(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM "+m.table+" WHERE k = ?", key)
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (m *MySQL) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT k FROM "+m.table+" WHERE k LIKE ? ORDER BY k", likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
