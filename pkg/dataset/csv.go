package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"candlevault/pkg/candle"

	"github.com/hashicorp/go-multierror"
)

// Header is the mandatory first row of every dataset file. Column order is
// fixed: timestamp, open, close, volume, unix_timestamp, high, low.
var Header = []string{"timestamp", "open", "close", "volume", "unix_timestamp", "high", "low"}

var recordLen = len(Header)

// Column indexes within a record.
const (
	colTimestamp = iota
	colOpen
	colClose
	colVolume
	colUnix
	colHigh
	colLow
)

// Reader decodes candles from a dataset CSV stream. The header row is
// verified on the first Read.
type Reader struct {
	r     *csv.Reader
	count int
}

func NewReader(r io.Reader) *Reader {
	rcsv := csv.NewReader(r)
	rcsv.Comma = ','
	rcsv.ReuseRecord = true

	return &Reader{r: rcsv}
}

// Read returns the next candle. io.EOF is passed through untouched.
func (dr *Reader) Read() (c candle.Candle, err error) {
	if dr.count == 0 {
		if err := dr.readHeader(); err != nil {
			return c, err
		}
	}

	dr.count++

	record, err := dr.r.Read()
	if err == io.EOF {
		return c, err
	}
	if err != nil {
		return c, fmt.Errorf("read csv record: %w", err)
	}
	if len(record) != recordLen {
		return c, fmt.Errorf("record on line %d: %d fields, expected %d", dr.count, len(record), recordLen)
	}

	var merr *multierror.Error

	c.Time, err = strconv.ParseInt(record[colUnix], 10, 64)
	merr = multierror.Append(merr, err)

	c.Open, err = strconv.ParseFloat(record[colOpen], 64)
	merr = multierror.Append(merr, err)

	c.Close, err = strconv.ParseFloat(record[colClose], 64)
	merr = multierror.Append(merr, err)

	c.Volume, err = strconv.ParseFloat(record[colVolume], 64)
	merr = multierror.Append(merr, err)

	c.High, err = strconv.ParseFloat(record[colHigh], 64)
	merr = multierror.Append(merr, err)

	c.Low, err = strconv.ParseFloat(record[colLow], 64)
	merr = multierror.Append(merr, err)

	if record[colTimestamp] != c.Timestamp() {
		merr = multierror.Append(merr, fmt.Errorf(
			"timestamp %q does not match unix_timestamp %d (%s)",
			record[colTimestamp], c.Time, c.Timestamp()))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return c, fmt.Errorf("record on line %d: %w", dr.count, err)
	}
	return c, nil
}

func (dr *Reader) readHeader() error {
	dr.count++

	record, err := dr.r.Read()
	if err == io.EOF {
		return fmt.Errorf("empty file: missing header row")
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(record) != recordLen {
		return fmt.Errorf("header has %d columns, expected %d", len(record), recordLen)
	}
	for i, name := range Header {
		if record[i] != name {
			return fmt.Errorf("header column %d is %q, expected %q", i+1, record[i], name)
		}
	}
	return nil
}

// Writer encodes candles into a dataset CSV stream, emitting the header
// before the first row.
type Writer struct {
	w           *csv.Writer
	record      []string
	wroteHeader bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:      csv.NewWriter(w),
		record: make([]string, recordLen),
	}
}

func (dw *Writer) Write(c candle.Candle) error {
	if !dw.wroteHeader {
		if err := dw.w.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		dw.wroteHeader = true
	}

	dw.record[colTimestamp] = c.Timestamp()
	dw.record[colOpen] = formatPrice(c.Open)
	dw.record[colClose] = formatPrice(c.Close)
	dw.record[colVolume] = formatPrice(c.Volume)
	dw.record[colUnix] = strconv.FormatInt(c.Time, 10)
	dw.record[colHigh] = formatPrice(c.High)
	dw.record[colLow] = formatPrice(c.Low)

	return dw.w.Write(dw.record)
}

// Flush writes buffered rows to the underlying writer.
func (dw *Writer) Flush() error {
	dw.w.Flush()
	return dw.w.Error()
}

func formatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ReadFile loads a whole dataset file into memory.
func ReadFile(path string) ([]candle.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := NewReader(f)

	var out []candle.Candle
	for {
		c, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// AppendCandle appends one row to an existing dataset file, creating the
// file with a header when absent.
func AppendCandle(path string, c candle.Candle) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WriteFile(path, []candle.Candle{c})
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := NewWriter(f)
	w.wroteHeader = true // the file carries its header already

	if err := w.Write(c); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return w.Flush()
}

// WriteFile writes candles to a temp file in the target directory and
// renames it over path, so readers never observe a half-written file.
func WriteFile(path string, candles []candle.Candle) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".candles-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := NewWriter(tmp)
	for _, c := range candles {
		if err := w.Write(c); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
