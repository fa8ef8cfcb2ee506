package batch

import (
	"context"
	"io"
)

// SliceReader reads items from an in-memory slice. Open rewinds it.
type SliceReader struct {
	items []any
	pos   int
}

// NewSliceReader creates a reader over items
func NewSliceReader(items ...any) *SliceReader {
	return &SliceReader{items: items}
}

func (r *SliceReader) Open(_ context.Context) error {
	r.pos = 0
	return nil
}

func (r *SliceReader) Read(_ context.Context) (any, error) {
	if r.pos >= len(r.items) {
		return nil, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *SliceReader) Close() error {
	return nil
}
