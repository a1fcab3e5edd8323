package storage

import (
	"errors"
	"testing"

	"ecosim/internal/model"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := testRun("r1", "2026-01-02T03:04:05Z")
	run.Saturations = 2
	run.StopReason = "saturated"

	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != run {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, run)
	}
}

func TestDecodeRunVersionMismatch(t *testing.T) {
	run := testRun("r1", "")
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeRunMalformed(t *testing.T) {
	if _, err := DecodeRun([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPopulationHistoryCodec(t *testing.T) {
	history := []model.PopulationSample{{Tick: 0, Prey: 20, Predators: 7, Poachers: 3}}
	data, err := EncodePopulationHistory(history)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `[{"tick":0,"prey":20,"predators":7,"poachers":3}]` {
		t.Fatalf("unexpected encoding: %s", data)
	}
	decoded, err := DecodePopulationHistory(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != history[0] {
		t.Fatalf("unexpected decoded history: %+v", decoded)
	}
}
