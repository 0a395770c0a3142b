// Package dataset loads CSV datasets and extracts contiguous row ranges.
// The first line of a file is the header; rows are counted from zero below
// it. Descriptors are cached per path and rebuilt when the file's size or
// modification time changes.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultIndexStride int64 = 1024
	DefaultBufferSize        = 128 * 1024
)

var ErrStop = errors.New("stop iteration")

// ResolvePath maps a dataset key to a file path. Keys that already look
// like paths pass through; bare keys resolve inside the data directory.
func ResolvePath(dataDir, key string) string {
	if strings.ContainsRune(key, filepath.Separator) || strings.HasSuffix(key, ".csv") {
		return key
	}
	return filepath.Join(dataDir, key+".csv")
}

// Descriptor is the cached index of one CSV file: the header line, the data
// row count, and byte offsets of every stride-th data row for cheap seeks.
type Descriptor struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Header   string
	RowCount int64
	Stride   int64
	Offsets  []int64
}

// Cache hands out descriptors keyed by path, revalidating against the
// file's size and mtime on every lookup.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Descriptor
	stride  int64
}

func NewCache(stride int64) *Cache {
	if stride <= 0 {
		stride = DefaultIndexStride
	}
	return &Cache{
		entries: make(map[string]*Descriptor),
		stride:  stride,
	}
}

func (c *Cache) Get(path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dataset %s is a directory", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[path]; ok {
		if existing.Size == info.Size() && existing.ModTime.Equal(info.ModTime()) {
			return existing, nil
		}
	}

	desc, err := Describe(path, c.stride)
	if err != nil {
		return nil, err
	}
	c.entries[path] = desc
	return desc, nil
}

// Describe scans a CSV file once, recording the header, the data row count
// and the seek offsets.
func Describe(path string, stride int64) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dataset %s is a directory", path)
	}
	if stride <= 0 {
		stride = DefaultIndexStride
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, DefaultBufferSize)
	header, headerLen, err := readLine(reader)
	if err != nil {
		return nil, fmt.Errorf("dataset %s has no header: %w", path, err)
	}

	offsets := []int64{int64(headerLen)}
	var (
		rowCount int64
		offset   = int64(headerLen)
	)
	for {
		_, n, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rowCount++
		offset += int64(n)
		if rowCount%stride == 0 {
			offsets = append(offsets, offset)
		}
	}

	return &Descriptor{
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Header:   header,
		RowCount: rowCount,
		Stride:   stride,
		Offsets:  offsets,
	}, nil
}

// readLine returns one line without its terminator plus the number of bytes
// consumed including the terminator.
func readLine(r *bufio.Reader) (string, int, error) {
	raw, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", 0, err
	}
	if raw == "" {
		return "", 0, io.EOF
	}
	consumed := len(raw)
	line := raw
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, consumed, nil
}

// offsetForRow returns the nearest indexed byte offset at or before row and
// the row number it corresponds to.
func (d *Descriptor) offsetForRow(row int64) (int64, int64) {
	if row <= 0 || d.Stride <= 0 || len(d.Offsets) == 0 {
		return d.Offsets[0], 0
	}
	slot := row / d.Stride
	if slot >= int64(len(d.Offsets)) {
		slot = int64(len(d.Offsets) - 1)
	}
	return d.Offsets[slot], slot * d.Stride
}

// Extract returns the payload for rows [start, start+count): the header line
// followed by the selected rows, newline separated. Ranges past the end of
// the file are truncated; a fully out-of-range start yields just the header.
func (d *Descriptor) Extract(start, count int64) ([]byte, error) {
	if d == nil {
		return nil, errors.New("dataset descriptor is nil")
	}
	if start < 0 || count < 0 {
		return nil, fmt.Errorf("invalid range start=%d count=%d", start, count)
	}

	var out bytes.Buffer
	out.WriteString(d.Header)

	if count == 0 || start >= d.RowCount {
		out.WriteByte('\n')
		return out.Bytes(), nil
	}
	end := start + count
	if end > d.RowCount {
		end = d.RowCount
	}

	file, err := os.Open(d.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	offset, baseRow := d.offsetForRow(start)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	reader := bufio.NewReaderSize(file, DefaultBufferSize)

	row := baseRow
	for row < start {
		if _, _, err := readLine(reader); err != nil {
			if errors.Is(err, io.EOF) {
				out.WriteByte('\n')
				return out.Bytes(), nil
			}
			return nil, err
		}
		row++
	}
	for row < end {
		line, _, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		out.WriteByte('\n')
		out.WriteString(line)
		row++
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// EachRow streams rows [start, end) to fn. fn may return ErrStop to end the
// walk early.
func (d *Descriptor) EachRow(start, end int64, fn func(row string, rowNumber int64) error) error {
	if start < 0 || end < start {
		return fmt.Errorf("invalid range %d-%d", start, end)
	}
	file, err := os.Open(d.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	offset, baseRow := d.offsetForRow(start)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	reader := bufio.NewReaderSize(file, DefaultBufferSize)

	row := baseRow
	for row < end {
		line, _, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if row >= start {
			if err := fn(line, row); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		row++
	}
	return nil
}
