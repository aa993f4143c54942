package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupWriter(&buf, "production", false)

	log.Info("database_connected", "host", "db.example.com")
	log.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "database_connected", entry["msg"])
	assert.Equal(t, "opsctl", entry["app"])
	assert.Equal(t, "db.example.com", entry["host"])
}

func TestSetupWriter_VerboseDevelopmentIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := SetupWriter(&buf, "development", true)

	log.Debug("query_plan", "rows", 3)

	assert.Contains(t, buf.String(), "msg=query_plan")
	assert.Contains(t, buf.String(), "rows=3")
}
