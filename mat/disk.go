package mat

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableMatrix = "m"
)

// DiskMatrix is a sparse matrix stored in an SQLite database.
// Elements are accumulated inside a transaction, which is committed when the matrix is read.
// Add records the first failure, which is reported by Err.
type DiskMatrix struct {
	Path string
	rows int
	cols int

	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
	err  error
}

func NewDiskMatrix(dbPath string, rows, cols int) (*DiskMatrix, error) {
	m := &DiskMatrix{Path: dbPath, rows: rows, cols: cols}
	var err error
	m.db, err = newDB(m.Path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

// Close closes the database and removes its file.
func (m *DiskMatrix) Close() error {
	var err error
	if m.tx != nil {
		if err1 := m.stmt.Close(); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
		}
		if err1 := m.tx.Rollback(); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
		}
		m.tx, m.stmt = nil, nil
	}
	if err1 := m.db.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := os.Remove(m.Path); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func (m *DiskMatrix) Rows() int  { return m.rows }
func (m *DiskMatrix) Cols() int  { return m.cols }
func (m *DiskMatrix) Err() error { return m.err }

func (m *DiskMatrix) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	if err := m.zeros(); err != nil && m.err == nil {
		m.err = err
	}
}

func (m *DiskMatrix) zeros() error {
	if err := m.commit(); err != nil {
		return errors.Wrap(err, "")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	if err := deleteAll(ctx, m.db); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (m *DiskMatrix) Add(v float64, row, col int) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("%d %d out of %dx%d", row, col, m.rows, m.cols))
	}
	if v == 0 || m.err != nil {
		return
	}
	if err := m.add(v, row, col); err != nil {
		m.err = err
	}
}

func (m *DiskMatrix) add(v float64, row, col int) error {
	if m.tx == nil {
		if err := m.begin(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if _, err := m.stmt.Exec(row, col, v); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %d %d %f", m.Path, row, col, v))
	}
	return nil
}

func (m *DiskMatrix) begin() error {
	tx, err := m.db.Begin()
	if err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr := fmt.Sprintf(`INSERT INTO %s (i, j, v) VALUES (?, ?, ?) ON CONFLICT (i, j) DO UPDATE SET v = v + excluded.v`, tableMatrix)
	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	m.tx, m.stmt = tx, stmt
	return nil
}

func (m *DiskMatrix) commit() error {
	if m.tx == nil {
		return nil
	}
	var err error
	if err1 := m.stmt.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := m.tx.Commit(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	m.tx, m.stmt = nil, nil
	return err
}

// COO commits the accumulation transaction and reads the elements in row major order.
// It returns the first error of an earlier Add or Zeros.
func (m *DiskMatrix) COO() (*COO, error) {
	if m.err != nil {
		return nil, errors.Wrap(m.err, "")
	}
	if err := m.commit(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	b := &COO{rows: m.rows, cols: m.cols, Data: make([]Element, 0)}

	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT i, j, v FROM %s WHERE v != 0 ORDER BY i, j`, tableMatrix)
	rows, err := m.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, m.Path)
	}
	defer rows.Close()

	for rows.Next() {
		var e Element
		if err := rows.Scan(&e.Row, &e.Col, &e.V); err != nil {
			return nil, errors.Wrap(err, "")
		}
		b.Data = append(b.Data, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	return b, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=MEMORY&_synchronous=OFF", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// A single connection, so that reads observe the committed accumulation transaction.
	db.SetMaxOpenConns(1)

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableMatrix)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE %s (i INTEGER, j INTEGER, v REAL, PRIMARY KEY (i, j)) STRICT`, tableMatrix)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func deleteAll(ctx context.Context, db *sql.DB) error {
	sqlStr := fmt.Sprintf(`DELETE FROM %s`, tableMatrix)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
