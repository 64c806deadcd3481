// go test -v --run TestInsertCandle
//
// These tests need a local Postgres instance; they skip when none is
// reachable.
package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"candlevault/pkg/candle"
)

func testClient(t *testing.T) *PostgresClient {
	t.Helper()

	dsn := os.Getenv("CANDLEVAULT_TEST_DSN")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=candlevault_test port=5432 sslmode=disable"
	}

	client, err := NewClient(dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	if !client.IsHealthy(context.Background()) {
		t.Skip("postgres not healthy")
	}
	if err := client.AutoMigrateCandleRecord(); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		client.DB.Exec("DELETE FROM candle_record WHERE product LIKE 'TEST%'")
		client.Close()
	})
	return client
}

func testRecord(start int64) *CandleRecord {
	return ToCandleRecord("TESTUSD", candle.Minute, candle.Candle{
		Time: start, Open: 10, Close: 11, High: 12, Low: 9, Volume: 1.5,
	})
}

func TestInsertCandle(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Minute).Unix()

	inserted, err := client.InsertCandle(ctx, testRecord(start))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first insert reported as conflict")
	}

	// Same (product, timeframe, start) key: conflict, no error.
	inserted, err = client.InsertCandle(ctx, testRecord(start))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate insert reported as written")
	}

	record, err := client.GetCandle(ctx, "TESTUSD", "1m", time.Unix(start, 0).UTC())
	if err != nil {
		t.Fatal(err)
	}
	if record.Open != 10 || record.Volume != 1.5 {
		t.Errorf("fetched record wrong: %+v", record)
	}
}

func TestInsertCandleBatch(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Minute).Unix()
	records := []*CandleRecord{
		testRecord(start),
		testRecord(start + 60),
		testRecord(start + 120),
	}

	written, err := client.InsertCandleBatch(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if written != 3 {
		t.Errorf("written = %d, want 3", written)
	}

	// A second batch with one new row writes only that row.
	records = append(records, testRecord(start+180))
	for i := range records {
		records[i].ID = 0
	}
	written, err = client.InsertCandleBatch(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if written != 1 {
		t.Errorf("written = %d, want 1", written)
	}
}
