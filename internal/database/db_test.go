package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func TestModelsParse(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=unused"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	tables := map[string]bool{}
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(m))
		tables[stmt.Schema.Table] = true

		if stmt.Schema.Table == "demand_forms" {
			_, ok := stmt.Schema.FieldsByDBName["budget_balance_available"]
			assert.True(t, ok, "budget columns are prefixed")
			_, ok = stmt.Schema.FieldsByDBName["procurement_is_approved"]
			assert.True(t, ok, "approval trail is embedded")
			rel, ok := stmt.Schema.Relationships.Relations["Items"]
			require.True(t, ok)
			assert.Equal(t, schema.HasMany, rel.Type)
		}
	}

	for _, table := range []string{"users", "refresh_tokens", "audit_logs", "demand_forms", "requests", "line_items", "tenders", "orders"} {
		assert.True(t, tables[table], table)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(true)
	assert.True(t, opts.Debug)
	assert.Equal(t, 25, opts.MaxOpenConns)
	assert.Less(t, opts.MaxIdleConns, opts.MaxOpenConns)
}
