package archive

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestArchive_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.RecordRun("capture/2024-03-01_10-00.csv", "sliding_window")
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	if err := db.RecordAlert(runID, "aa:bb:cc:dd:ee:01", 7100, 5000); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordAlert(runID, "aa:bb:cc:dd:ee:02", 9000, 3000); err != nil {
		t.Fatal(err)
	}

	got, err := db.Alerts(runID)
	if err != nil {
		t.Fatal(err)
	}
	want := []AlertRow{
		{Address: "aa:bb:cc:dd:ee:01", Timestamp: 7100, Duration: 5000},
		{Address: "aa:bb:cc:dd:ee:02", Timestamp: 9000, Duration: 3000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("alerts mismatch (-want +got):\n%s", diff)
	}
}

func TestArchive_RunsAreIsolated(t *testing.T) {
	db := openTestDB(t)

	first, err := db.RecordRun("a.csv", "simple_statistics")
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.RecordRun("a.csv", "sliding_window")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("run ids collided")
	}

	if err := db.RecordAlert(first, "aa:bb:cc:dd:ee:01", 7100, 5000); err != nil {
		t.Fatal(err)
	}

	got, err := db.Alerts(second)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("second run sees %d alerts from the first", len(got))
	}
}

func TestArchive_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	runID, err := db.RecordRun("a.csv", "sliding_window")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordAlert(runID, "aa:bb:cc:dd:ee:01", 7100, 5000); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	got, err := db.Alerts(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Duration != 5000 {
		t.Errorf("unexpected alerts after reopen: %+v", got)
	}
}
