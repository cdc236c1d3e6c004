package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// sqlRow is one record as stored by the SQL backend
type sqlRow struct {
	Key    string `db:"ycsb_key"`
	Fields []byte `db:"fields"`
}

// sqlDialect holds the statements that differ between engines. %s is the
// table name; placeholders are written as ? and rebound by sqlx.
type sqlDialect struct {
	createTable  string
	insertStrict string
	insertUpsert string
}

var sqlDialects = map[string]sqlDialect{
	"postgres": {
		// C collation gives byte order, matching the key-value backends
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			ycsb_key VARCHAR(255) COLLATE "C" PRIMARY KEY,
			fields   BYTEA NOT NULL
		)`,
		insertStrict: `INSERT INTO %s (ycsb_key, fields) VALUES (?, ?) ON CONFLICT (ycsb_key) DO NOTHING`,
		insertUpsert: `INSERT INTO %s (ycsb_key, fields) VALUES (?, ?)
			ON CONFLICT (ycsb_key) DO UPDATE SET fields = EXCLUDED.fields`,
	},
	"mysql": {
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			ycsb_key VARBINARY(255) PRIMARY KEY,
			fields   LONGBLOB NOT NULL
		)`,
		insertStrict: `INSERT IGNORE INTO %s (ycsb_key, fields) VALUES (?, ?)`,
		insertUpsert: `INSERT INTO %s (ycsb_key, fields) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE fields = VALUES(fields)`,
	},
}

// SQLDatabase implements SQLBackend over sqlx. Each harness table maps to a
// table of (ycsb_key, fields) rows, created on first use; fields are packed
// with msgpack.
type SQLDatabase struct {
	db      *sqlx.DB
	driver  string
	dialect sqlDialect
	tables  sync.Map // table name -> struct{}
}

// NewSQLBackend connects to the database named by cfg.SQL
func NewSQLBackend(cfg Config) (Backend, error) {
	dialect, ok := sqlDialects[cfg.SQL.Driver]
	if !ok {
		return nil, configErr("unsupported sql driver %q", cfg.SQL.Driver)
	}

	db, err := sqlx.Connect(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.SQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.SQL.MaxOpenConns)

	log.Info().
		Str("driver", cfg.SQL.Driver).
		Int("max_open_conns", cfg.SQL.MaxOpenConns).
		Msg("Created SQL backend")

	return &SQLDatabase{
		db:      db,
		driver:  cfg.SQL.Driver,
		dialect: dialect,
	}, nil
}

func (s *SQLDatabase) Name() string {
	return string(BackendSQL)
}

// ensureTable validates the table name and creates the table once.
func (s *SQLDatabase) ensureTable(ctx context.Context, table string) error {
	if _, ok := s.tables.Load(table); ok {
		return nil
	}
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.createTable, table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	s.tables.Store(table, struct{}{})
	return nil
}

func (s *SQLDatabase) query(format, table string) string {
	return s.db.Rebind(fmt.Sprintf(format, table))
}

// ReadRow implements SQLBackend.ReadRow
func (s *SQLDatabase) ReadRow(ctx context.Context, table, key string) (Fields, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	var row sqlRow
	err := s.db.GetContext(ctx, &row, s.query(`SELECT ycsb_key, fields FROM %s WHERE ycsb_key = ?`, table), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeFields(row.Fields)
}

// ScanRows implements SQLBackend.ScanRows
func (s *SQLDatabase) ScanRows(ctx context.Context, table, startKey string, count int) ([]Record, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	var rows []sqlRow
	err := s.db.SelectContext(ctx, &rows,
		s.query(`SELECT ycsb_key, fields FROM %s WHERE ycsb_key >= ? ORDER BY ycsb_key LIMIT ?`, table),
		startKey, count)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		f, err := decodeFields(row.Fields)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Key: row.Key, Fields: f})
	}
	return records, nil
}

// InsertRow implements SQLBackend.InsertRow
func (s *SQLDatabase) InsertRow(ctx context.Context, table, key string, values Fields, upsert bool) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	enc, err := encodeFields(values)
	if err != nil {
		return err
	}

	if upsert {
		_, err := s.db.ExecContext(ctx, s.query(s.dialect.insertUpsert, table), key, enc)
		return err
	}

	res, err := s.db.ExecContext(ctx, s.query(s.dialect.insertStrict, table), key, enc)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateRow implements SQLBackend.UpdateRow. The current row is locked with
// SELECT ... FOR UPDATE while the fields are merged.
func (s *SQLDatabase) UpdateRow(ctx context.Context, table, key string, values Fields, upsert bool, maxSize int) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	// a concurrent upsert may create the row between our select and insert;
	// the second pass then merges into it
	for attempt := 0; attempt < 2; attempt++ {
		done, err := s.updateOnce(ctx, table, key, values, upsert, maxSize)
		if err != nil || done {
			return err
		}
	}
	return fmt.Errorf("update of %s/%s kept racing with concurrent inserts", table, key)
}

func (s *SQLDatabase) updateOnce(ctx context.Context, table, key string, values Fields, upsert bool, maxSize int) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var row sqlRow
	err = tx.GetContext(ctx, &row, s.query(`SELECT ycsb_key, fields FROM %s WHERE ycsb_key = ? FOR UPDATE`, table), key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !upsert {
			return false, ErrNotFound
		}
		enc, err := encodeFields(values)
		if err != nil {
			return false, err
		}
		res, err := tx.ExecContext(ctx, s.query(s.dialect.insertStrict, table), key, enc)
		if err != nil {
			return false, err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	current, err := decodeFields(row.Fields)
	if err != nil {
		return false, err
	}
	merged := current.merge(values)
	if err := checkRecordSize(merged, maxSize); err != nil {
		return false, err
	}
	enc, err := encodeFields(merged)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, s.query(`UPDATE %s SET fields = ? WHERE ycsb_key = ?`, table), enc, key); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// DeleteRow implements SQLBackend.DeleteRow
func (s *SQLDatabase) DeleteRow(ctx context.Context, table, key string) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.query(`DELETE FROM %s WHERE ycsb_key = ?`, table), key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Backend.Close
func (s *SQLDatabase) Close() error {
	return s.db.Close()
}
