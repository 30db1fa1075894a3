package silver

import (
	"testing"

	"github.com/ghillie/ghillie/bronze"
)

func TestClassifyCommit(t *testing.T) {
	workType, summary, actor, labels, err := classify("github.commit", bronze.Payload{
		"message":     "fix bug",
		"author_name": "Ada",
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if workType != WorkCommit || summary != "fix bug" || actor == nil || *actor != "Ada" || labels != nil {
		t.Errorf("unexpected classification: %+v %q %v %v", workType, summary, actor, labels)
	}
}

func TestClassifyPullRequestWithLabels(t *testing.T) {
	workType, summary, actor, labels, err := classify("github.pull_request", bronze.Payload{
		"title":        "Add feature",
		"author_login": "grace",
		"labels":       []any{"feature", "needs-review"},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if workType != WorkPullRequest || summary != "Add feature" || actor == nil || *actor != "grace" {
		t.Errorf("unexpected classification: %+v %q %v", workType, summary, actor)
	}
	if len(labels) != 2 {
		t.Errorf("expected 2 labels, got %v", labels)
	}
}

func TestClassifyUnsupportedEventType(t *testing.T) {
	if _, _, _, _, err := classify("github.unknown", bronze.Payload{}); err == nil {
		t.Fatal("expected error for unsupported event type")
	}
}

func TestPayloadHashDeterministic(t *testing.T) {
	h1, err := payloadHash(bronze.Payload{"a": 1.0, "b": "x"})
	if err != nil {
		t.Fatalf("payloadHash: %v", err)
	}
	h2, err := payloadHash(bronze.Payload{"b": "x", "a": 1.0})
	if err != nil {
		t.Fatalf("payloadHash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected key-order-independent hash, got %q vs %q", h1, h2)
	}
}

func TestPayloadHashDiffersOnContent(t *testing.T) {
	h1, _ := payloadHash(bronze.Payload{"a": 1.0})
	h2, _ := payloadHash(bronze.Payload{"a": 2.0})
	if h1 == h2 {
		t.Error("differing payloads must not hash identically")
	}
}

func TestPayloadDriftErrorMessage(t *testing.T) {
	err := &PayloadDriftError{RawEventID: 42}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
