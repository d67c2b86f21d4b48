package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rl1809/flower-auction/internal/port"
)

func getMySQLDB(t *testing.T) *SQLStore {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/flower_auction?parseTime=true"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := OpenMySQL(ctx, MySQLOptions{DSN: dsn, MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := Migrate(ctx, db, DialectMySQL); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return NewSQLStore(db, DialectMySQL)
}

func TestSQLStore_MySQL(t *testing.T) {
	store := getMySQLDB(t)
	runStoreContract(t, func(t *testing.T) port.Store { return store })
}
