package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "auction.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = Migrate(ctx, db, DialectSQLite)
	require.NoError(t, err)
	return NewSQLStore(db, DialectSQLite)
}

func TestSQLStore_SQLite(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.Store { return newSQLiteStore(t) })
}

func TestMigrate_Idempotent(t *testing.T) {
	store := newSQLiteStore(t)

	version, err := Migrate(context.Background(), store.DB(), DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestStatements(t *testing.T) {
	got := statements("CREATE TABLE a (id INT);\n\n  CREATE INDEX i ON a (id);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX i ON a (id)"}, got)
}

func TestSQLStore_StockCheckConstraint(t *testing.T) {
	store := newSQLiteStore(t)
	p := mustProduct(t, 1)
	insertProduct(t, store, p)

	// The schema backs the domain invariant even if a caller skips it.
	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Stock = -1
		return tx.UpdateProduct(ctx, cur, cur.Version)
	})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, 1, getProduct(t, store, p.ID).Stock)
}

func TestSQLTx_WriteFailed(t *testing.T) {
	tx := &sqlTx{dialect: DialectMySQL}

	deadlock := &mysql.MySQLError{Number: mysqlDeadlockDetected, Message: "Deadlock found"}
	err := tx.writeFailed("update product", domain.EntityProduct, "p-1", 3, deadlock)
	var conflict *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.Version(3), conflict.Expected)
	assert.Zero(t, conflict.Current)

	err = tx.writeFailed("update product", domain.EntityProduct, "p-1", 3, errors.New("connection reset"))
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, domain.ErrConcurrencyConflict)
}
