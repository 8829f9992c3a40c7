package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "p2pexchanged", Env: "test", Level: "debug"})
	logger.Debug("opened", slog.String("offer_id", "0xabc"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "opened", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "p2pexchanged", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "0xabc", line["offer_id"])
	require.Contains(t, line, "timestamp")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())

	require.NoError(t, ValidateLevel("ERROR"))
	require.Error(t, ValidateLevel("verbose"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("payment_method", "IBAN DE89").Value.String())
	require.Equal(t, "0x01", MaskField("offer_id", "0x01").Value.String())
	require.Equal(t, "", MaskField("evidence_url", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "dispute_id")
}
