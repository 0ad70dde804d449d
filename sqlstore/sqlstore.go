// Package sqlstore provides a database/sql nestedset.Store. The tree ID
// is the table name; column names come from Config. Predicates and
// updates compile straight into WHERE and SET clauses, so the wide bulk
// updates of the interval engine run as single UPDATE statements, and
// WithinTree maps onto one SQL transaction.
//
// Tested against mattn/go-sqlite3; the generated SQL sticks to the
// portable subset.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacentio/arbor/nestedset"
)

// runner is the querying surface shared by *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session implements nestedset.Store over either a database handle or an
// open transaction.
type session struct {
	run    runner
	config Config
	now    func() time.Time
}

// Store is a relational nestedset.Store.
type Store struct {
	session
	db *sql.DB
}

// New creates a Store over an open database handle.
func New(db *sql.DB, config Config) (*Store, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Store{
		session: session{run: db, config: config, now: time.Now},
		db:      db,
	}, nil
}

// Init creates the node table and its interval indexes if they do not
// exist yet.
func (s *Store) Init(ctx context.Context, treeID string) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	c := s.config
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s TEXT PRIMARY KEY,
			%s TEXT NOT NULL DEFAULT '',
			%s INTEGER NOT NULL DEFAULT 0,
			%s INTEGER NOT NULL DEFAULT 0,
			%s TEXT NOT NULL DEFAULT ''
		)`, treeID, c.KeyColumn, c.ParentColumn, c.LeftColumn, c.RightColumn, c.ModifiedColumn),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", treeID, c.LeftColumn, treeID, c.LeftColumn),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", treeID, c.RightColumn, treeID, c.RightColumn),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", treeID, c.ParentColumn, treeID, c.ParentColumn),
	}
	for _, stmt := range ddl {
		if _, err := s.run.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: init %s: %w", treeID, err)
		}
	}
	return nil
}

// --- record CRUD ---

// Put creates a node row with unpositioned bounds. A non-empty parent
// must already exist.
func (s *Store) Put(ctx context.Context, treeID, key, parentKey string) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	c := s.config
	if parentKey != "" {
		var one int
		err := s.run.QueryRowContext(ctx,
			fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", treeID, c.KeyColumn),
			parentKey).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlstore: parent %q: %w", parentKey, nestedset.ErrNotFound)
		}
		if err != nil {
			return err
		}
	}
	_, err := s.run.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, 0, 0, ?)",
			treeID, c.KeyColumn, c.ParentColumn, c.LeftColumn, c.RightColumn, c.ModifiedColumn),
		key, parentKey, s.timestamp())
	if err != nil {
		return fmt.Errorf("sqlstore: put %q: %w", key, err)
	}
	return nil
}

// SetParent rewrites a node's stored parent field. It does not touch the
// interval bounds; run Tree.SyncPosition afterwards.
func (s *Store) SetParent(ctx context.Context, treeID, key, parentKey string) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	c := s.config
	res, err := s.run.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ?, %s = ? WHERE %s = ?",
			treeID, c.ParentColumn, c.ModifiedColumn, c.KeyColumn),
		parentKey, s.timestamp(), key)
	if err != nil {
		return err
	}
	return s.requireRow(res, key)
}

// Remove deletes a node row. Callers detach via Tree.Remove first.
func (s *Store) Remove(ctx context.Context, treeID, key string) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	res, err := s.run.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", treeID, s.config.KeyColumn), key)
	if err != nil {
		return err
	}
	return s.requireRow(res, key)
}

// --- nestedset.Store ---

func (s *session) Bounds(ctx context.Context, treeID, key string) (nestedset.Bounds, error) {
	if err := checkTable(treeID); err != nil {
		return nestedset.Bounds{}, err
	}
	c := s.config
	var b nestedset.Bounds
	err := s.run.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?", c.LeftColumn, c.RightColumn, treeID, c.KeyColumn),
		key).Scan(&b.Left, &b.Right)
	if errors.Is(err, sql.ErrNoRows) {
		return nestedset.Bounds{}, fmt.Errorf("sqlstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	if err != nil {
		return nestedset.Bounds{}, err
	}
	return b, nil
}

func (s *session) SetBounds(ctx context.Context, treeID, key string, b nestedset.Bounds) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	c := s.config
	res, err := s.run.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ? WHERE %s = ?",
			treeID, c.LeftColumn, c.RightColumn, c.ModifiedColumn, c.KeyColumn),
		b.Left, b.Right, s.timestamp(), key)
	if err != nil {
		return err
	}
	return s.requireRow(res, key)
}

func (s *session) UpdateBounds(ctx context.Context, treeID string, where nestedset.Predicate, set nestedset.Update) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	setClause, setArgs := s.setSQL(set)
	if setClause == "" {
		return nil // both rewrites are identity
	}
	query := fmt.Sprintf("UPDATE %s SET %s", treeID, setClause)
	args := setArgs
	if whereClause, whereArgs := s.whereSQL(where); whereClause != "" {
		query += " WHERE " + whereClause
		args = append(args, whereArgs...)
	}
	_, err := s.run.ExecContext(ctx, query, args...)
	return err
}

func (s *session) Enumerate(ctx context.Context, treeID string, where nestedset.Predicate, order nestedset.Order, limit int) ([]string, error) {
	if err := checkTable(treeID); err != nil {
		return nil, err
	}
	c := s.config
	query := fmt.Sprintf("SELECT %s FROM %s", c.KeyColumn, treeID)
	var args []any
	if whereClause, whereArgs := s.whereSQL(where); whereClause != "" {
		query += " WHERE " + whereClause
		args = whereArgs
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, %s ASC", s.column(order.Bound), dir, c.KeyColumn)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryKeys(ctx, query, args...)
}

func (s *session) Children(ctx context.Context, treeID, parentKey string) ([]string, error) {
	if err := checkTable(treeID); err != nil {
		return nil, err
	}
	c := s.config
	// COALESCE folds NULL parents into the root group.
	query := fmt.Sprintf("SELECT %s FROM %s WHERE COALESCE(%s, '') = ? ORDER BY %s ASC",
		c.KeyColumn, treeID, c.ParentColumn, c.KeyColumn)
	return s.queryKeys(ctx, query, parentKey)
}

func (s *session) MaxRight(ctx context.Context, treeID string, rootsOnly bool) (int64, error) {
	if err := checkTable(treeID); err != nil {
		return 0, err
	}
	c := s.config
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", c.RightColumn, treeID)
	if rootsOnly {
		query += fmt.Sprintf(" WHERE COALESCE(%s, '') = ''", c.ParentColumn)
	}
	var max int64
	if err := s.run.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

// WithinTree runs fn inside one SQL transaction. SQLite serializes
// writers, so this both isolates and orders structural operations.
func (s *Store) WithinTree(ctx context.Context, treeID string, fn func(nestedset.Store) error) error {
	if err := checkTable(treeID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txSession := s.session
	txSession.run = tx
	if err := fn(&txSession); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// --- SQL compilation ---

func (s *session) column(b nestedset.Bound) string {
	if b == nestedset.BoundRight {
		return s.config.RightColumn
	}
	return s.config.LeftColumn
}

// whereSQL compiles a predicate into a WHERE clause and its arguments.
func (s *session) whereSQL(p nestedset.Predicate) (string, []any) {
	if len(p) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(p))
	args := make([]any, 0, len(p))
	for _, cond := range p {
		clauses = append(clauses, fmt.Sprintf("%s %s ?", s.column(cond.Bound), cond.Op))
		args = append(args, cond.Value)
	}
	return strings.Join(clauses, " AND "), args
}

// setSQL compiles an update into a SET clause and its arguments. The
// modified column is touched whenever any bound changes. Returns an
// empty clause when both rewrites are identity.
func (s *session) setSQL(u nestedset.Update) (string, []any) {
	var clauses []string
	var args []any
	for _, part := range []struct {
		col string
		a   nestedset.Affine
	}{
		{s.config.LeftColumn, u.Left},
		{s.config.RightColumn, u.Right},
	} {
		if part.a.Identity() {
			continue
		}
		switch part.a.Scale {
		case 1:
			clauses = append(clauses, fmt.Sprintf("%s = %s + ?", part.col, part.col))
			args = append(args, part.a.Offset)
		case -1:
			clauses = append(clauses, fmt.Sprintf("%s = -%s + ?", part.col, part.col))
			args = append(args, part.a.Offset)
		case 0:
			clauses = append(clauses, fmt.Sprintf("%s = ?", part.col))
			args = append(args, part.a.Offset)
		default:
			clauses = append(clauses, fmt.Sprintf("%s = ? * %s + ?", part.col, part.col))
			args = append(args, part.a.Scale, part.a.Offset)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	clauses = append(clauses, s.config.ModifiedColumn+" = ?")
	args = append(args, s.timestamp())
	return strings.Join(clauses, ", "), args
}

func (s *session) queryKeys(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.run.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *session) requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	return nil
}

func (s *session) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

var (
	_ nestedset.Store = (*Store)(nil)
	_ nestedset.Txer  = (*Store)(nil)
	_ nestedset.Store = (*session)(nil)
)
