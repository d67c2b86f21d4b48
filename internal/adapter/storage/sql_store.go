package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// SQLStore implements port.Store on database/sql. Every update is a
// conditional `WHERE id = ? AND version = ?` statement; zero affected rows
// means another transaction got there first.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

var _ port.Store = (*SQLStore)(nil)

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return &domain.StorageUnavailableError{Op: op, Err: err}
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// lockLost reports errors raised when a concurrent writer holds the row.
func (t *sqlTx) lockLost(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlockDetected || myErr.Number == mysqlLockWaitTimeout
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// writeFailed reports a lost row lock as a version conflict so callers can
// retry, and anything else as unavailable storage.
func (t *sqlTx) writeFailed(op, entity, id string, expected domain.Version, err error) error {
	if t.lockLost(err) {
		return &domain.ConcurrencyConflictError{Entity: entity, ID: id, Expected: expected}
	}
	return unavailable(op, err)
}

// casResult turns the outcome of a conditional update into a domain error.
func (t *sqlTx) casResult(ctx context.Context, result sql.Result, table, entity, id string, expected domain.Version) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("update "+entity, err)
	}
	if rows == 1 {
		return nil
	}

	query := fmt.Sprintf(`SELECT version FROM %s WHERE id = ?`, table)
	if t.dialect == DialectMySQL {
		// a plain read returns the snapshot under REPEATABLE READ
		query += ` FOR UPDATE`
	}
	var current domain.Version
	err = t.tx.QueryRowContext(ctx, query, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		return t.writeFailed("read "+entity+" version", entity, id, expected, err)
	}
	return &domain.ConcurrencyConflictError{Entity: entity, ID: id, Expected: expected, Current: current}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Products

const productColumns = `id, grower_id, name, description, minimum_price, auction_price, stock,
	auction_clock_id, position, auctioned_count, auctioned_at, version, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p            domain.Product
		auctionPrice decimal.NullDecimal
		clockID      sql.NullString
		auctionedAt  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.GrowerID, &p.Name, &p.Description, &p.MinimumPrice, &auctionPrice, &p.Stock,
		&clockID, &p.Position, &p.AuctionedCount, &auctionedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if auctionPrice.Valid {
		p.AuctionPrice = &auctionPrice.Decimal
	}
	if clockID.Valid {
		p.AuctionClockID = &clockID.String
	}
	p.AuctionedAt = timePtr(auctionedAt)
	return &p, nil
}

func (t *sqlTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
	}
	if err != nil {
		return nil, unavailable("query product", err)
	}
	return p, nil
}

func (t *sqlTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GrowerID, p.Name, p.Description, p.MinimumPrice, nullDecimal(p.AuctionPrice), p.Stock,
		nullString(p.AuctionClockID), p.Position, p.AuctionedCount, nullTime(p.AuctionedAt), p.Version,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if t.isDuplicate(err) {
			return &domain.ConcurrencyConflictError{Entity: domain.EntityProduct, ID: p.ID}
		}
		return unavailable("insert product", err)
	}
	return nil
}

func (t *sqlTx) UpdateProduct(ctx context.Context, p *domain.Product, expected domain.Version) error {
	next := expected.Next()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, minimum_price = ?, auction_price = ?, stock = ?,
			auction_clock_id = ?, position = ?, auctioned_count = ?, auctioned_at = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Name, p.Description, p.MinimumPrice, nullDecimal(p.AuctionPrice), p.Stock,
		nullString(p.AuctionClockID), p.Position, p.AuctionedCount, nullTime(p.AuctionedAt),
		next, p.UpdatedAt,
		p.ID, expected,
	)
	if err != nil {
		return t.writeFailed("update product", domain.EntityProduct, p.ID, expected, err)
	}
	if err := t.casResult(ctx, result, "products", domain.EntityProduct, p.ID, expected); err != nil {
		return err
	}
	p.Version = next
	return nil
}

func (t *sqlTx) ListProductsByClock(ctx context.Context, clockID string) ([]*domain.Product, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE auction_clock_id = ? ORDER BY position, id`, clockID)
	if err != nil {
		return nil, unavailable("query products", err)
	}
	defer rows.Close()

	var res []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, unavailable("scan product", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query products", err)
	}
	return res, nil
}

// Auction clocks

const clockColumns = `id, auctioneer_id, status, scheduled_at, started_at, ended_at, duration_seconds,
	highest_price, lowest_price, region, country, peaked_live_views, version, created_at, updated_at`

func scanClock(row rowScanner) (*domain.AuctionClock, error) {
	var (
		c                  domain.AuctionClock
		startedAt, endedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.AuctioneerID, &c.Status, &c.ScheduledAt, &startedAt, &endedAt, &c.DurationSeconds,
		&c.HighestPrice, &c.LowestPrice, &c.Region, &c.Country, &c.PeakedLiveViews, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.StartedAt = timePtr(startedAt)
	c.EndedAt = timePtr(endedAt)
	return &c, nil
}

func (t *sqlTx) GetClock(ctx context.Context, id string) (*domain.AuctionClock, error) {
	c, err := scanClock(t.tx.QueryRowContext(ctx, `SELECT `+clockColumns+` FROM auction_clocks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: domain.EntityClock, ID: id}
	}
	if err != nil {
		return nil, unavailable("query auction clock", err)
	}
	return c, nil
}

// GetClockShared takes a shared row lock on MySQL so a concurrent status
// change waits for this transaction. SQLite transactions already run one at
// a time.
func (t *sqlTx) GetClockShared(ctx context.Context, id string) (*domain.AuctionClock, error) {
	query := `SELECT ` + clockColumns + ` FROM auction_clocks WHERE id = ?`
	if t.dialect == DialectMySQL {
		query += ` FOR SHARE`
	}
	c, err := scanClock(t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: domain.EntityClock, ID: id}
	}
	if err != nil {
		if t.lockLost(err) {
			return nil, &domain.ConcurrencyConflictError{Entity: domain.EntityClock, ID: id}
		}
		return nil, unavailable("query auction clock", err)
	}
	return c, nil
}

func (t *sqlTx) InsertClock(ctx context.Context, c *domain.AuctionClock) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO auction_clocks (`+clockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AuctioneerID, c.Status, c.ScheduledAt, nullTime(c.StartedAt), nullTime(c.EndedAt), c.DurationSeconds,
		c.HighestPrice, c.LowestPrice, c.Region, c.Country, c.PeakedLiveViews, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if t.isDuplicate(err) {
			return &domain.ConcurrencyConflictError{Entity: domain.EntityClock, ID: c.ID}
		}
		return unavailable("insert auction clock", err)
	}
	return nil
}

func (t *sqlTx) UpdateClock(ctx context.Context, c *domain.AuctionClock, expected domain.Version) error {
	next := expected.Next()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE auction_clocks
		SET status = ?, scheduled_at = ?, started_at = ?, ended_at = ?, duration_seconds = ?,
			highest_price = ?, lowest_price = ?, region = ?, country = ?, peaked_live_views = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		c.Status, c.ScheduledAt, nullTime(c.StartedAt), nullTime(c.EndedAt), c.DurationSeconds,
		c.HighestPrice, c.LowestPrice, c.Region, c.Country, c.PeakedLiveViews,
		next, c.UpdatedAt,
		c.ID, expected,
	)
	if err != nil {
		return t.writeFailed("update auction clock", domain.EntityClock, c.ID, expected, err)
	}
	if err := t.casResult(ctx, result, "auction_clocks", domain.EntityClock, c.ID, expected); err != nil {
		return err
	}
	c.Version = next
	return nil
}

func (t *sqlTx) DeleteClock(ctx context.Context, id string, expected domain.Version) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM auction_clocks WHERE id = ? AND version = ?`, id, expected)
	if err != nil {
		return t.writeFailed("delete auction clock", domain.EntityClock, id, expected, err)
	}
	return t.casResult(ctx, result, "auction_clocks", domain.EntityClock, id, expected)
}

// Orders

const orderColumns = `id, buyer_id, auction_clock_id, status, created_at, updated_at, closed_at, version`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o        domain.Order
		closedAt sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.BuyerID, &o.AuctionClockID, &o.Status, &o.CreatedAt, &o.UpdatedAt, &closedAt, &o.Version); err != nil {
		return nil, err
	}
	o.ClosedAt = timePtr(closedAt)
	return &o, nil
}

func (t *sqlTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: domain.EntityOrder, ID: id}
	}
	if err != nil {
		return nil, unavailable("query order", err)
	}
	return o, nil
}

func (t *sqlTx) FindOrder(ctx context.Context, buyerID, clockID string) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? AND auction_clock_id = ?`, buyerID, clockID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: domain.EntityOrder, ID: buyerID + "/" + clockID}
	}
	if err != nil {
		return nil, unavailable("query order", err)
	}
	return o, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, o.AuctionClockID, o.Status, o.CreatedAt, o.UpdatedAt, nullTime(o.ClosedAt), o.Version,
	)
	if err != nil {
		if t.isDuplicate(err) {
			// another bid from the same buyer created the order first
			return &domain.ConcurrencyConflictError{Entity: domain.EntityOrder, ID: o.BuyerID + "/" + o.AuctionClockID}
		}
		return unavailable("insert order", err)
	}
	return nil
}

func (t *sqlTx) UpdateOrder(ctx context.Context, o *domain.Order, expected domain.Version) error {
	next := expected.Next()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?, closed_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		o.Status, o.UpdatedAt, nullTime(o.ClosedAt), next,
		o.ID, expected,
	)
	if err != nil {
		return t.writeFailed("update order", domain.EntityOrder, o.ID, expected, err)
	}
	if err := t.casResult(ctx, result, "orders", domain.EntityOrder, o.ID, expected); err != nil {
		return err
	}
	o.Version = next
	return nil
}

func (t *sqlTx) ListOrdersByClock(ctx context.Context, clockID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE auction_clock_id = ? ORDER BY created_at, id`
	if t.dialect == DialectMySQL {
		// Locking read sees the latest committed orders, not the snapshot.
		query += ` FOR UPDATE`
	}
	rows, err := t.tx.QueryContext(ctx, query, clockID)
	if err != nil {
		if t.lockLost(err) {
			return nil, &domain.ConcurrencyConflictError{Entity: domain.EntityClock, ID: clockID}
		}
		return nil, unavailable("query orders", err)
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable("scan order", err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query orders", err)
	}
	return res, nil
}

// Order lines

const orderLineColumns = `id, order_id, product_id, auction_clock_id, quantity, price_at_purchase,
	product_minimum_price_at_purchase, created_at, updated_at, version`

func scanOrderLine(row rowScanner) (*domain.OrderLine, error) {
	var l domain.OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.AuctionClockID, &l.Quantity, &l.PriceAtPurchase,
		&l.ProductMinimumPriceAtPurchase, &l.CreatedAt, &l.UpdatedAt, &l.Version)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *sqlTx) GetOrderLine(ctx context.Context, id string) (*domain.OrderLine, error) {
	l, err := scanOrderLine(t.tx.QueryRowContext(ctx, `SELECT `+orderLineColumns+` FROM order_lines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: domain.EntityOrderLine, ID: id}
	}
	if err != nil {
		return nil, unavailable("query order line", err)
	}
	return l, nil
}

func (t *sqlTx) InsertOrderLine(ctx context.Context, l *domain.OrderLine) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_lines (`+orderLineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OrderID, l.ProductID, l.AuctionClockID, l.Quantity, l.PriceAtPurchase,
		l.ProductMinimumPriceAtPurchase, l.CreatedAt, l.UpdatedAt, l.Version,
	)
	if err != nil {
		if t.isDuplicate(err) {
			return &domain.ConcurrencyConflictError{Entity: domain.EntityOrderLine, ID: l.ID}
		}
		return unavailable("insert order line", err)
	}
	return nil
}

// UpdateOrderLine only rewrites quantity; the price snapshot is immutable.
func (t *sqlTx) UpdateOrderLine(ctx context.Context, l *domain.OrderLine, expected domain.Version) error {
	next := expected.Next()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE order_lines SET quantity = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		l.Quantity, l.UpdatedAt, next,
		l.ID, expected,
	)
	if err != nil {
		return t.writeFailed("update order line", domain.EntityOrderLine, l.ID, expected, err)
	}
	if err := t.casResult(ctx, result, "order_lines", domain.EntityOrderLine, l.ID, expected); err != nil {
		return err
	}
	l.Version = next
	return nil
}

func (t *sqlTx) ListOrderLines(ctx context.Context, orderID string) ([]*domain.OrderLine, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+orderLineColumns+` FROM order_lines WHERE order_id = ? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, unavailable("query order lines", err)
	}
	defer rows.Close()

	var res []*domain.OrderLine
	for rows.Next() {
		l, err := scanOrderLine(rows)
		if err != nil {
			return nil, unavailable("scan order line", err)
		}
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query order lines", err)
	}
	return res, nil
}
