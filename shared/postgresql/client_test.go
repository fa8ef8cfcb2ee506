package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "plain values",
			config: Config{Host: "localhost", Port: 5432, User: "batch", Password: "secret", Database: "batch_db", SSLMode: "require"},
			want:   "host=localhost port=5432 user=batch password=secret dbname=batch_db sslmode=require",
		},
		{
			name:   "sslmode defaults to disable",
			config: Config{Host: "db", Port: 5433, User: "batch", Password: "secret", Database: "batch_db"},
			want:   "host=db port=5433 user=batch password=secret dbname=batch_db sslmode=disable",
		},
		{
			name:   "password with space and quote",
			config: Config{Host: "db", Port: 5432, User: "batch", Password: `it's a\secret`, Database: "batch_db", SSLMode: "disable"},
			want:   `host=db port=5432 user=batch password='it\'s a\\secret' dbname=batch_db sslmode=disable`,
		},
		{
			name:   "empty password",
			config: Config{Host: "db", Port: 5432, User: "batch", Database: "batch_db", SSLMode: "disable"},
			want:   "host=db port=5432 user=batch password='' dbname=batch_db sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}
