package ingestion

import (
	"testing"
	"time"
)

func TestIsStalledWithNoWatermarkIsStalled(t *testing.T) {
	if !isStalled(nil, time.Hour) {
		t.Error("a repository with no watermark should be considered stalled")
	}
}

func TestIsStalledPastThreshold(t *testing.T) {
	d := 2 * time.Hour
	if !isStalled(&d, time.Hour) {
		t.Error("expected a run-age past the threshold to be stalled")
	}
}

func TestIsStalledWithinThreshold(t *testing.T) {
	d := 30 * time.Minute
	if isStalled(&d, time.Hour) {
		t.Error("expected a run-age within the threshold to not be stalled")
	}
}
