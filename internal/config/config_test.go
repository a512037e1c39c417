package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIDList(t *testing.T) {
	assert.Empty(t, parseIDList(""))
	assert.Equal(t, []int64{1}, parseIDList("1"))
	assert.Equal(t, []int64{1, 42}, parseIDList(" 1, 42 ,junk,"))
}

func TestIsAdminID(t *testing.T) {
	cfg := Config{AdminIDs: []int64{1, 42}}
	assert.True(t, cfg.IsAdminID(42))
	assert.False(t, cfg.IsAdminID(7))
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "utilibot", cfg.AppName)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.False(t, cfg.PersistZeroReading)
}
