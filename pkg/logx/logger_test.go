package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Output: &buf})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	Component(logger, "forecast").WithField("segment_id", 3).Info("computed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "computed", entry["msg"])
	assert.Equal(t, "forecast", entry["component"])
	assert.Equal(t, float64(3), entry["segment_id"])
	assert.Contains(t, entry, "ts")
}

func TestNewUnknownLevel(t *testing.T) {
	logger := New(Options{Level: "chatty", Format: "text", Output: &bytes.Buffer{}})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
