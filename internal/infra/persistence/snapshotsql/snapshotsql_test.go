package snapshotsql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"cylindercore/internal/infra/persistence/memory"
	"cylindercore/pkg/domain"
)

const upsert = `INSERT INTO state(bucket,payload) VALUES(?,?)`

func TestLoadDecodesBuckets(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()
	rows := sqlmock.NewRows([]string{"bucket", "payload"}).
		AddRow("warehouses", []byte(`{"w1":{"id":"w1","code":"W1"}}`)).
		AddRow("legacy", []byte(`[]`))
	mock.ExpectQuery("SELECT bucket, payload FROM state").WillReturnRows(rows)

	snapshot, found, err := Load(context.Background(), db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found || snapshot.Warehouses["w1"].Code != "W1" {
		t.Fatalf("unexpected snapshot %+v", snapshot.Warehouses)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadReportsDecodeFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()
	mock.ExpectQuery("SELECT bucket, payload FROM state").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}).AddRow("cylinders", []byte(`{`)))
	if _, _, err := Load(context.Background(), db); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPersistUpsertsEveryBucket(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()
	mock.ExpectBegin()
	for _, bucket := range memory.Buckets {
		mock.ExpectExec(upsert).WithArgs(bucket, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	snapshot := memory.Snapshot{Warehouses: map[string]domain.Warehouse{"w1": {Base: domain.Base{ID: "w1"}}}}
	if err := Persist(context.Background(), db, upsert, snapshot); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPersistRollsBackOnExecFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := Persist(context.Background(), db, upsert, memory.Snapshot{}); err == nil {
		t.Fatalf("expected persist error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
