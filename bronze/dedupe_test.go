package bronze

import (
	"testing"
	"time"
)

func mustEnvelope(t *testing.T, occurredAt time.Time, payload Payload) RawEventEnvelope {
	t.Helper()
	sourceEventID := "evt-1"
	repo := "org/repo"
	return RawEventEnvelope{
		SourceSystem:   "github",
		EventType:      "github.push",
		OccurredAt:     occurredAt,
		Payload:        payload,
		SourceEventID:  &sourceEventID,
		RepoExternalID: &repo,
	}
}

func TestMakeDedupeKeyDeterministic(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e1 := mustEnvelope(t, at, Payload{"a": 1.0})
	e2 := mustEnvelope(t, at, Payload{"a": 1.0})

	k1, err := MakeDedupeKey(e1, false)
	if err != nil {
		t.Fatalf("MakeDedupeKey: %v", err)
	}
	k2, err := MakeDedupeKey(e2, false)
	if err != nil {
		t.Fatalf("MakeDedupeKey: %v", err)
	}
	if k1 != k2 {
		t.Errorf("expected identical dedupe keys, got %q vs %q", k1, k2)
	}
}

func TestMakeDedupeKeySameInstantDifferentZone(t *testing.T) {
	utc := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))

	e1 := mustEnvelope(t, utc, Payload{"a": 1.0})
	e2 := mustEnvelope(t, est, Payload{"a": 1.0})

	k1, err := MakeDedupeKey(e1, false)
	if err != nil {
		t.Fatalf("MakeDedupeKey: %v", err)
	}
	k2, err := MakeDedupeKey(e2, false)
	if err != nil {
		t.Fatalf("MakeDedupeKey: %v", err)
	}
	if k1 != k2 {
		t.Errorf("same instant across timezones should hash identically, got %q vs %q", k1, k2)
	}
}

func TestMakeDedupeKeyKeyOrderIndependent(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e1 := mustEnvelope(t, at, Payload{"a": 1.0, "b": 2.0})
	e2 := mustEnvelope(t, at, Payload{"b": 2.0, "a": 1.0})

	k1, _ := MakeDedupeKey(e1, false)
	k2, _ := MakeDedupeKey(e2, false)
	if k1 != k2 {
		t.Errorf("key-order permuted payloads should hash identically, got %q vs %q", k1, k2)
	}
}

func TestMakeDedupeKeyDiffersOnPayload(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e1 := mustEnvelope(t, at, Payload{"a": 1.0})
	e2 := mustEnvelope(t, at, Payload{"a": 2.0})

	k1, _ := MakeDedupeKey(e1, false)
	k2, _ := MakeDedupeKey(e2, false)
	if k1 == k2 {
		t.Errorf("differing payloads must not hash identically")
	}
}

func TestMakeDedupeKeyDiffersOnEventType(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e1 := mustEnvelope(t, at, Payload{"a": 1.0})
	e2 := e1
	e2.EventType = "github.pull_request"

	k1, _ := MakeDedupeKey(e1, false)
	k2, _ := MakeDedupeKey(e2, false)
	if k1 == k2 {
		t.Errorf("differing event types must not hash identically")
	}
}

func TestMakeDedupeKeyRejectsNaiveOccurredAt(t *testing.T) {
	e := mustEnvelope(t, time.Time{}, Payload{"a": 1.0})
	if _, err := MakeDedupeKey(e, false); err == nil {
		t.Fatal("expected error for zero-value occurred_at")
	}
}

func TestMakeDedupeKeyRejectsUnsupportedPayloadType(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := mustEnvelope(t, at, Payload{"bad": make(chan int)})
	if _, err := MakeDedupeKey(e, false); err == nil {
		t.Fatal("expected error for unsupported payload type")
	}
}

func TestNormalizePayloadConvertsNestedDatetime(t *testing.T) {
	at := time.Date(2024, 7, 2, 9, 30, 0, 0, time.UTC)
	normalized, err := normalizePayload(Payload{
		"nested": map[string]any{"committed_at": at},
	})
	if err != nil {
		t.Fatalf("normalizePayload: %v", err)
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", normalized)
	}
	nested, ok := m["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", m["nested"])
	}
	if _, ok := nested["committed_at"].(string); !ok {
		t.Fatalf("expected datetime leaf converted to string, got %T", nested["committed_at"])
	}
}
