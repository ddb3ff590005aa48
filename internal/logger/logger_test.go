package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("warn", &buf)

	log.Info().Msg("filtered")
	log.Warn().Msg("kept")

	if bytes.Contains(buf.Bytes(), []byte("filtered")) {
		t.Error("info message emitted at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Error("warn message missing")
	}
}

func TestNewWithOutputEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("debug", &buf)

	log.Debug().Str("connector_id", "c1").Msg("hello")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["message"] != "hello" || record["connector_id"] != "c1" {
		t.Errorf("record: %v", record)
	}
	if record["time"] == nil {
		t.Error("timestamp missing")
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("nonsense", &buf)

	log.Debug().Msg("filtered")
	log.Info().Msg("kept")

	if bytes.Contains(buf.Bytes(), []byte("filtered")) {
		t.Error("debug message emitted at default level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Error("info message missing")
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	log := Nop()
	if log.GetLevel() != zerolog.Disabled {
		t.Errorf("expected disabled level, got %s", log.GetLevel())
	}
}
