package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/domain"
)

func TestListQueryDefaults(t *testing.T) {
	query, args := listQuery(domain.ListOpts{})

	assert.True(t, strings.HasSuffix(query, "ORDER BY created_at DESC LIMIT $1"))
	assert.Equal(t, []any{maxListLimit}, args)
}

func TestListQueryFilters(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	query, args := listQuery(domain.ListOpts{Limit: 20, Offset: 40, Since: &since, Until: &until})

	assert.Contains(t, query, "created_at >= $1")
	assert.Contains(t, query, "created_at <= $2")
	assert.Contains(t, query, "LIMIT $3")
	assert.Contains(t, query, "OFFSET $4")
	assert.Equal(t, []any{since, until, 20, 40}, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_simulations.sql", names[0])
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/booksim?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "booksim"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}
