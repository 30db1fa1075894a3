package registry

import "testing"

func TestNotFoundErrorMessageNamesRepository(t *testing.T) {
	err := &NotFoundError{Owner: "acme", Name: "widgets"}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
	if got := err.Error(); got != "registry: no tracked repository acme/widgets" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestEntryIsRepositoryInfoSlug(t *testing.T) {
	e := Entry{Owner: "acme", Name: "widgets"}
	if got := e.Slug(); got != "acme/widgets" {
		t.Errorf("expected slug acme/widgets, got %q", got)
	}
}
