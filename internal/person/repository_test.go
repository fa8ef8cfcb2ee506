package person

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_WriteIsAtomic(t *testing.T) {
	dsn := os.Getenv("BATCH_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("BATCH_TEST_DATABASE_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, repo.Migrate(ctx))

	before, err := repo.List(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Write(ctx, []any{Person{Name: "ANN", Email: "A@X"}, Person{Name: "BO", Email: "B@X"}}))

	// a value too long for the column fails the second insert and rolls back the first
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	err = repo.Write(ctx, []any{Person{Name: "CY", Email: "C@X"}, Person{Name: string(long), Email: "D@X"}})
	require.Error(t, err)

	after, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before)+2)
	assert.Equal(t, "ANN", after[len(before)].Name)
	assert.Equal(t, "BO", after[len(before)+1].Name)
}
