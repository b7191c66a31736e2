package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tables = []string{"produtos", "pedidos", "order_events", "payments", "provider_events", "gateway_settings"}

func TestDDLCoversEveryTable(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			schema, seed, err := ddl(driver)
			require.NoError(t, err)
			for _, table := range tables {
				assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
			}
			assert.Contains(t, seed, "INSERT INTO gateway_settings")
		})
	}
}

func TestPostgresDDLHasNoMySQLSyntax(t *testing.T) {
	schema, seed, err := ddl("postgres")
	require.NoError(t, err)
	for _, s := range []string{"ENGINE=", "TINYINT", "DATETIME", "AUTO_INCREMENT", "UNSIGNED", "KEY ix_", "FROM DUAL"} {
		assert.NotContains(t, strings.ToUpper(schema+seed), s)
	}
	assert.Contains(t, schema, "payload_json JSONB")
	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS ux_provider_events_provider_event")
}

func TestDDLUnknownDriver(t *testing.T) {
	_, _, err := ddl("sqlite")
	assert.Error(t, err)
}
