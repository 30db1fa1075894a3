package bronze

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawEventEnvelope is the structured input to RawEventWriter.Ingest.
type RawEventEnvelope struct {
	SourceSystem   string
	EventType      string
	OccurredAt     time.Time
	Payload        Payload
	SourceEventID  *string
	RepoExternalID *string
}

// normalizePayload deep-copies an arbitrary JSON-ish value, converting any
// time.Time leaves to UTC ISO-8601 strings and rejecting anything that
// isn't JSON-representable. Mirrors _normalise_payload in the original
// implementation.
func normalizePayload(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			normalized, err := normalizePayload(item)
			if err != nil {
				return nil, err
			}
			out[k] = normalized
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := normalizePayload(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	case time.Time:
		return normalizeDatetimeForPayload(v)
	default:
		return nil, &UnsupportedPayloadTypeError{GoType: fmt.Sprintf("%T", value)}
	}
}

// normalizeDatetimeForPayload converts a payload-leaf timestamp to a UTC
// ISO-8601 string. Go's time.Time always carries a location (defaulting to
// UTC), so the "naive datetime" failure mode from the original Python
// implementation is represented here as the zero value: callers that never
// set occurred_at/payload timestamps produce time.Time{}, which this
// rejects the same way a naive datetime would be rejected upstream.
func normalizeDatetimeForPayload(value time.Time) (string, error) {
	if value.IsZero() {
		return "", errTimezonePayload()
	}
	return value.UTC().Format(time.RFC3339Nano), nil
}

// serializeForHash returns the canonical JSON used for hashing. Go's
// encoding/json marshals map keys in sorted order and emits no
// insignificant whitespace, matching json.dumps(sort_keys=True,
// separators=(",", ":")).
func serializeForHash(payload Payload) (string, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return string(b), nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// MakeDedupeKey computes the deterministic dedupe key for an envelope
// whose payload has already been normalized (normalizedPayload true) or
// not. See spec.md §4.1 for the five-step algorithm.
func MakeDedupeKey(envelope RawEventEnvelope, normalizedPayload bool) (string, error) {
	if envelope.OccurredAt.IsZero() {
		return "", errTimezoneOccurrence()
	}

	var canonical string
	var err error
	if normalizedPayload {
		b, mErr := json.Marshal(envelope.Payload)
		if mErr != nil {
			return "", fmt.Errorf("canonicalize normalized payload: %w", mErr)
		}
		canonical = string(b)
	} else {
		canonical, err = serializeForHash(envelope.Payload)
		if err != nil {
			return "", err
		}
	}

	payloadHash := sha256Hex(canonical)

	sourceEventID := ""
	if envelope.SourceEventID != nil {
		sourceEventID = *envelope.SourceEventID
	}
	repoExternalID := ""
	if envelope.RepoExternalID != nil {
		repoExternalID = *envelope.RepoExternalID
	}

	material := strings.Join([]string{
		envelope.SourceSystem,
		envelope.EventType,
		sourceEventID,
		repoExternalID,
		envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		payloadHash,
	}, "|")

	return sha256Hex(material), nil
}
