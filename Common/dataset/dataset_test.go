package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDescribeAndExtract(t *testing.T) {
	rows := []string{"1,alpha", "2,bravo", "3,charlie", "4,delta", "5,echo"}
	path := writeTempDataset(t, "id,name", rows)

	desc, err := Describe(path, 2)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	if desc.RowCount != int64(len(rows)) {
		t.Fatalf("expected %d rows, got %d", len(rows), desc.RowCount)
	}
	if desc.Header != "id,name" {
		t.Fatalf("expected header id,name, got %q", desc.Header)
	}

	payload, err := desc.Extract(1, 3)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	want := "id,name\n2,bravo\n3,charlie\n4,delta\n"
	if string(payload) != want {
		t.Fatalf("expected %q, got %q", want, payload)
	}
}

func TestExtractTruncatesPastEnd(t *testing.T) {
	rows := []string{"1,a", "2,b", "3,c"}
	path := writeTempDataset(t, "id,v", rows)

	desc, err := Describe(path, DefaultIndexStride)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}

	payload, err := desc.Extract(2, 10)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if string(payload) != "id,v\n3,c\n" {
		t.Fatalf("expected truncated range, got %q", payload)
	}

	payload, err = desc.Extract(100, 5)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if string(payload) != "id,v\n" {
		t.Fatalf("expected header only, got %q", payload)
	}
}

func TestExtractZeroCount(t *testing.T) {
	path := writeTempDataset(t, "id", []string{"1", "2"})
	desc, err := Describe(path, DefaultIndexStride)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	payload, err := desc.Extract(0, 0)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if string(payload) != "id\n" {
		t.Fatalf("expected header only, got %q", payload)
	}
}

func TestExtractRejectsNegativeRange(t *testing.T) {
	path := writeTempDataset(t, "id", []string{"1"})
	desc, err := Describe(path, DefaultIndexStride)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	if _, err := desc.Extract(-1, 5); err == nil {
		t.Fatal("expected error for negative start")
	}
	if _, err := desc.Extract(0, -5); err == nil {
		t.Fatal("expected error for negative count")
	}
}

func TestHeaderOnlyDataset(t *testing.T) {
	path := writeTempDataset(t, "id,name", nil)
	desc, err := Describe(path, DefaultIndexStride)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	if desc.RowCount != 0 {
		t.Fatalf("expected 0 rows, got %d", desc.RowCount)
	}
}

func TestCacheRevalidates(t *testing.T) {
	path := writeTempDataset(t, "id", []string{"1", "2"})
	cache := NewCache(DefaultIndexStride)

	first, err := cache.Get(path)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	again, err := cache.Get(path)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if first != again {
		t.Fatal("expected the cached descriptor on an unchanged file")
	}

	if err := os.WriteFile(path, []byte("id\n1\n2\n3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	// mtime granularity can hide a fast rewrite; force a distinct stamp.
	stamp := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("Chtimes error: %v", err)
	}

	rebuilt, err := cache.Get(path)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rebuilt.RowCount != 3 {
		t.Fatalf("expected rebuilt descriptor with 3 rows, got %d", rebuilt.RowCount)
	}
}

func TestEachRowStopsEarly(t *testing.T) {
	rows := []string{"1", "2", "3", "4"}
	path := writeTempDataset(t, "id", rows)
	desc, err := Describe(path, 2)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}

	var got []string
	err = desc.EachRow(0, int64(len(rows)), func(line string, rowNumber int64) error {
		got = append(got, line)
		if len(got) == 2 {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		t.Fatalf("EachRow error: %v", err)
	}
	if strings.Join(got, ",") != "1,2" {
		t.Fatalf("expected 1,2, got %v", got)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	if got := ResolvePath(dir, "cities"); got != filepath.Join(dir, "cities.csv") {
		t.Fatalf("bare key resolved to %q", got)
	}
	if got := ResolvePath(dir, "other/cities.csv"); got != "other/cities.csv" {
		t.Fatalf("path key resolved to %q", got)
	}
	if got := ResolvePath(dir, "cities.csv"); got != "cities.csv" {
		t.Fatalf("suffixed key resolved to %q", got)
	}
}

func BenchmarkDescribe(b *testing.B) {
	rows := make([]string, 10000)
	for i := range rows {
		rows[i] = fmt.Sprintf("%d,value-%d", i, i)
	}
	path := writeTempDataset(b, "id,value", rows)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Describe(path, DefaultIndexStride); err != nil {
			b.Fatalf("Describe error: %v", err)
		}
	}
}

func BenchmarkExtract(b *testing.B) {
	rows := make([]string, 10000)
	for i := range rows {
		rows[i] = fmt.Sprintf("%d,value-%d", i, i)
	}
	path := writeTempDataset(b, "id,value", rows)
	desc, err := Describe(path, DefaultIndexStride)
	if err != nil {
		b.Fatalf("Describe error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := desc.Extract(5000, 1000); err != nil {
			b.Fatalf("Extract error: %v", err)
		}
	}
}

func writeTempDataset(tb testing.TB, header string, rows []string) string {
	tb.Helper()
	file, err := os.CreateTemp(tb.TempDir(), "dataset-*.csv")
	if err != nil {
		tb.Fatalf("CreateTemp error: %v", err)
	}
	defer file.Close()

	lines := append([]string{header}, rows...)
	if _, err := file.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		tb.Fatalf("WriteString error: %v", err)
	}
	return file.Name()
}
