package oplog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 6, 14, 30, 0, 0, time.UTC)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestOperationLog(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	l.SetNowFunc(fixedNow)

	l.Operation("auto", "1", "Cycle1", "Started")
	l.Operation("auto", "1", "Cycle1", "Completed")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, filepath.Join(dir, "operations.csv"))
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][3] != "event" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][3] != "Cycle1" || rows[1][4] != "Started" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[1][0] != "2026-08-06 14:30:00" {
		t.Errorf("timestamp = %s", rows[1][0])
	}
}

func TestAppendKeepsSingleHeader(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	l.Operation("system", "", "Start", "ok")
	l.Close()

	l2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	l2.Operation("system", "", "Stop", "ok")
	l2.Close()

	rows := readCSV(t, filepath.Join(dir, "operations.csv"))
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 across reopen", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[1][0] == "timestamp" {
		t.Error("header duplicated on append")
	}
}

func TestSeparateFilesPerCategory(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	l.Operation("auto", "2", "ModeSelected", "Ready")
	l.Error("hardware", "interlock open", "cycle1")
	l.ParameterChange("pause_resume_delay_ms", "2000", "1500", "engineer")
	l.Close()

	for _, name := range []string{"operations.csv", "errors.csv", "parameters.csv"} {
		rows := readCSV(t, filepath.Join(dir, name))
		if len(rows) != 2 {
			t.Errorf("%s rows = %d, want header + 1", name, len(rows))
		}
	}
}
