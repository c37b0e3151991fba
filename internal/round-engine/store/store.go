// Package store persiste rodadas, apostas e carteiras.
//
// O mesmo código atende Postgres (produção) e SQLite (ambiente local e testes):
// as queries são escritas com "?" e reescritas para "$n" no Postgres, e os
// SELECTs que precisam de lock de linha recebem FOR UPDATE apenas no Postgres.
// No SQLite a conexão única já serializa as transações.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/radieske/updown-rounds/internal/shared/db"
)

// layout de largura fixa: ordenação de texto == ordenação cronológica no SQLite
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

type dialect struct {
	driver    string
	forUpdate string
}

func newDialect(driver string) (dialect, error) {
	switch driver {
	case db.DriverPostgres:
		return dialect{driver: driver, forUpdate: " FOR UPDATE"}, nil
	case db.DriverSQLite:
		return dialect{driver: driver}, nil
	default:
		return dialect{}, fmt.Errorf("store: unsupported driver %q", driver)
	}
}

// rebind troca "?" por "$1", "$2", ... no Postgres
func (d dialect) rebind(query string) string {
	if d.driver != db.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ts converte horários para o formato de bind do driver
func (d dialect) ts(t time.Time) any {
	t = t.UTC()
	if d.driver == db.DriverSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

func (d dialect) tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.ts(*t)
}

// money arredonda para centavos no momento da escrita
func money(v decimal.Decimal) string { return v.StringFixed(2) }

func price(v decimal.Decimal) string { return v.StringFixed(8) }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn concentra as leituras, usadas tanto fora quanto dentro de transação
type conn struct {
	q querier
	d dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// Store é o ponto de entrada do repositório
type Store struct {
	conn
	db *sql.DB
}

// New cria o Store para o driver informado (postgres | sqlite)
func New(sqlDB *sql.DB, driver string) (*Store, error) {
	d, err := newDialect(driver)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn{q: sqlDB, d: d}, db: sqlDB}, nil
}

// DB expõe a conexão (migrations e testes)
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifica a conexão (usado no /healthz)
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Tx é uma unidade de trabalho atômica. Toda movimentação de saldo acontece aqui dentro.
type Tx struct {
	conn
}

// WithTx executa fn numa transação. Qualquer erro desfaz tudo.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{conn: conn{q: sqlTx, d: s.d}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation reconhece violação de UNIQUE nos dois drivers
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// nullTime lê horários gravados como TIMESTAMPTZ (Postgres) ou TEXT (SQLite)
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("store: cannot scan %T into time", src)
	}
}

func (n *nullTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("store: invalid time %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
