package person

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// CSVReader reads people from a delimited file with positional columns
// name, email. Every Open starts from the top of the file. A job definition
// holds one reader, so executions sharing it are serialised from Open to Close.
type CSVReader struct {
	path        string
	linesToSkip int
	delimiter   rune

	mu   sync.Mutex
	file *os.File
	csv  *csv.Reader
}

// NewCSVReader creates a reader over path. A zero delimiter means ','.
func NewCSVReader(path string, linesToSkip int, delimiter rune) *CSVReader {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVReader{
		path:        path,
		linesToSkip: linesToSkip,
		delimiter:   delimiter,
	}
}

func (r *CSVReader) Open(_ context.Context) error {
	r.mu.Lock()

	f, err := os.Open(r.path)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to open %s: %w", r.path, err)
	}

	r.file = f
	r.csv = csv.NewReader(f)
	r.csv.Comma = r.delimiter
	r.csv.FieldsPerRecord = -1
	r.csv.TrimLeadingSpace = true
	r.csv.ReuseRecord = true

	for i := 0; i < r.linesToSkip; i++ {
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			r.Close()
			return fmt.Errorf("failed to skip line %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *CSVReader) Read(_ context.Context) (any, error) {
	if r.csv == nil {
		return nil, errors.New("reader is not open")
	}

	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to parse %s: %w", r.path, err)
	}

	line, _ := r.csv.FieldPos(0)
	if len(record) != 2 {
		return nil, fmt.Errorf("%s line %d: expected 2 fields (name, email), got %d", r.path, line, len(record))
	}

	return Person{
		Name:  strings.TrimSpace(record[0]),
		Email: strings.TrimSpace(record[1]),
	}, nil
}

func (r *CSVReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.csv = nil
	r.mu.Unlock()
	return err
}
