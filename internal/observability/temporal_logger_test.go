package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestTemporalLogger_Levels(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	l.Debug("d", "WorkflowID", "wf-1")
	l.Info("i", "attempt", 2)
	l.Warn("w")
	l.Error("e", "Error", "boom")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "debug", entries[0]["level"])
	assert.Equal(t, "wf-1", entries[0]["WorkflowID"])
	assert.Equal(t, float64(2), entries[1]["attempt"])
	assert.Equal(t, "warn", entries[2]["level"])
	assert.Equal(t, "boom", entries[3]["Error"])
	for _, e := range entries {
		assert.Equal(t, "temporal-sdk", e["component"])
	}
}

func TestTemporalLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf))

	child := l.With("Namespace", "document-review")
	child.Info("scheduled")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "document-review", entries[0]["Namespace"])
}

func TestKeyvalToMap_OddAndNonStringKeys(t *testing.T) {
	m := keyvalToMap([]interface{}{"a", 1, 7, "x", "dangling"})
	assert.Equal(t, 1, m["a"])
	assert.Equal(t, "x", m["7"])
	assert.NotContains(t, m, "dangling")
}
