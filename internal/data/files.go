package data

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	extJSONL   = ".jsonl"
	extJSONLGz = ".jsonl.gz"
)

// FileLoader reads chain snapshots laid out as {dir}/{date}/{TICKER}.jsonl,
// optionally gzip-compressed as {TICKER}.jsonl.gz.
type FileLoader struct {
	dir    string
	logger *zap.Logger
}

// Compile-time interface verification
var _ Loader = (*FileLoader)(nil)

func NewFileLoader(dir string, logger *zap.Logger) *FileLoader {
	return &FileLoader{dir: dir, logger: logger}
}

// Dir returns the root data directory.
func (l *FileLoader) Dir() string {
	return l.dir
}

// SnapshotPath returns the uncompressed snapshot path for a ticker and date.
func SnapshotPath(dir, date, ticker string) string {
	return filepath.Join(dir, date, SnapshotName(ticker, false))
}

// SnapshotName is the file name of a ticker's snapshot.
func SnapshotName(ticker string, compressed bool) string {
	if compressed {
		return NormalizeTicker(ticker) + extJSONLGz
	}
	return NormalizeTicker(ticker) + extJSONL
}

func (l *FileLoader) Tickers(date string) ([]string, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	entries, err := os.ReadDir(filepath.Join(l.dir, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRecords
		}
		return nil, fmt.Errorf("reading date directory: %w", err)
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var ticker string
		switch {
		case strings.HasSuffix(name, extJSONLGz):
			ticker = strings.TrimSuffix(name, extJSONLGz)
		case strings.HasSuffix(name, extJSONL):
			ticker = strings.TrimSuffix(name, extJSONL)
		default:
			continue
		}
		seen[NormalizeTicker(ticker)] = true
	}

	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

func (l *FileLoader) Load(ctx context.Context, date string, tickers []string) ([]OptionRecord, error) {
	if len(tickers) == 0 {
		all, err := l.Tickers(date)
		if err != nil {
			return nil, err
		}
		tickers = all
	} else {
		if _, err := ParseDate(date); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
		tickers = normalizeAll(tickers)
	}

	var records []OptionRecord
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, ok := FindSnapshot(l.dir, date, ticker)
		if !ok {
			l.logger.Warn("no snapshot for ticker", zap.String("ticker", ticker), zap.String("date", date))
			continue
		}

		loaded, err := readSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}

		l.logger.Debug("loaded snapshot",
			zap.String("ticker", ticker),
			zap.String("date", date),
			zap.Int("count", len(loaded)),
		)
		records = append(records, loaded...)
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// FindSnapshot returns the existing snapshot file for a ticker and date,
// preferring the plain file over the compressed one.
func FindSnapshot(dir, date, ticker string) (string, bool) {
	plain := SnapshotPath(dir, date, ticker)
	if _, err := os.Stat(plain); err == nil {
		return plain, true
	}
	gz := plain + ".gz"
	if _, err := os.Stat(gz); err == nil {
		return gz, true
	}
	return "", false
}

func readSnapshot(path string) ([]OptionRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	return DecodeRecords(r)
}

// DecodeRecords reads one OptionRecord per JSON line. Blank lines are ignored.
func DecodeRecords(r io.Reader) ([]OptionRecord, error) {
	var records []OptionRecord
	scanner := bufio.NewScanner(r)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var rec OptionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rec.Ticker = NormalizeTicker(rec.Ticker)
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func normalizeAll(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n := NormalizeTicker(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
