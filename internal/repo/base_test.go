package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil {
		t.Fatalf("expected non-nil DB when context provided")
	}
	if withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseWithTxRebinds(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if got := base.WithTx(nil); got.db != db {
		t.Fatalf("expected nil tx to keep the connection")
	}

	tx := db.Session(&gorm.Session{NewDB: true})
	if got := base.WithTx(tx); got.db != tx {
		t.Fatalf("expected tx to replace the connection")
	}
}

func TestFoundMapsRecordNotFound(t *testing.T) {
	type row struct{ ID int }

	got, err := Found(&row{ID: 1}, gorm.ErrRecordNotFound)
	if err != nil || got != nil {
		t.Fatalf("expected nil row and error, got %v %v", got, err)
	}

	boom := errors.New("boom")
	if _, err := Found(&row{}, boom); !errors.Is(err, boom) {
		t.Fatalf("expected passthrough error, got %v", err)
	}

	got, err = Found(&row{ID: 2}, nil)
	if err != nil || got == nil || got.ID != 2 {
		t.Fatalf("expected row passthrough, got %v %v", got, err)
	}
}
