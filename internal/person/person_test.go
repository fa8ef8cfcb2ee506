package person

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *CSVReader) ([]Person, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Open(ctx))
	defer r.Close()

	var people []Person
	for {
		item, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			return people, nil
		}
		if err != nil {
			return people, err
		}
		people = append(people, item.(Person))
	}
}

func TestCSVReader(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		linesToSkip int
		delimiter   rune
		want        []Person
		wantErr     string
	}{
		{
			name:        "header skipped",
			path:        "testdata/people.csv",
			linesToSkip: 1,
			want:        []Person{{Name: "ann", Email: "a@x"}, {Name: "bo", Email: "b@x"}},
		},
		{
			name:        "custom delimiter",
			path:        "testdata/people_semicolon.csv",
			linesToSkip: 1,
			delimiter:   ';',
			want:        []Person{{Name: "ann", Email: "a@x"}, {Name: "bo", Email: "b@x"}, {Name: "cy", Email: "c@x"}},
		},
		{
			name:        "header only",
			path:        "testdata/header_only.csv",
			linesToSkip: 1,
		},
		{
			name:        "skip more lines than present",
			path:        "testdata/people.csv",
			linesToSkip: 10,
		},
		{
			name:        "wrong column count",
			path:        "testdata/malformed.csv",
			linesToSkip: 1,
			want:        []Person{{Name: "ann", Email: "a@x"}},
			wantErr:     "line 3: expected 2 fields (name, email), got 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			people, err := readAll(t, NewCSVReader(tt.path, tt.linesToSkip, tt.delimiter))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, people)
		})
	}
}

func TestCSVReader_OpenRewinds(t *testing.T) {
	r := NewCSVReader("testdata/people.csv", 1, ',')

	first, err := readAll(t, r)
	require.NoError(t, err)
	second, err := readAll(t, r)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCSVReader_MissingFile(t *testing.T) {
	r := NewCSVReader("testdata/does-not-exist.csv", 1, ',')
	err := r.Open(context.Background())
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NoError(t, r.Close())

	_, err = r.Read(context.Background())
	assert.Error(t, err)
}

func TestUppercaseProcessor(t *testing.T) {
	p := UppercaseProcessor{}

	out, err := p.Process(context.Background(), Person{Name: "ann", Email: "a@x"})
	require.NoError(t, err)
	assert.Equal(t, Person{Name: "ANN", Email: "A@X"}, out)

	out, err = p.Process(context.Background(), &Person{Name: "bo", Email: "b@x"})
	require.NoError(t, err)
	assert.Equal(t, Person{Name: "BO", Email: "B@X"}, out)

	_, err = p.Process(context.Background(), "not a person")
	assert.Error(t, err)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.FailOn = 2

	require.NoError(t, repo.Write(ctx, []any{Person{Name: "A"}, Person{Name: "B"}}))
	assert.Error(t, repo.Write(ctx, []any{Person{Name: "C"}}))
	require.NoError(t, repo.Write(ctx, []any{Person{Name: "D"}}))

	people, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Person{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "D"}}, people)

	assert.Error(t, repo.Write(ctx, []any{42}))
}
