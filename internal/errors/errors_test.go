package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestIsKind_ThroughWrapping(t *testing.T) {
	base := MissingDependency("adapt-contrib-text", "course config")
	wrapped := fmt.Errorf("resolve plugins: %w", base)

	if !IsKind(wrapped, KindMissingDependency) {
		t.Fatal("kind not visible through fmt wrapping")
	}
	if IsKind(wrapped, KindValidation) {
		t.Fatal("wrong kind matched")
	}
	if GetKind(wrapped) != KindMissingDependency {
		t.Fatalf("GetKind = %s", GetKind(wrapped))
	}
}

func TestGetKind_DefaultsToInternal(t *testing.T) {
	if GetKind(stderrors.New("plain")) != KindInternal {
		t.Fatal("plain errors must report internal")
	}
}

func TestUnwrap_PreservesCause(t *testing.T) {
	cause := fs.ErrNotExist
	err := IOError("read package manifest", cause)
	if !stderrors.Is(err, fs.ErrNotExist) {
		t.Fatal("cause lost in wrapping")
	}
}

func TestSeverity(t *testing.T) {
	if !IsFatal(New(KindStructural, "broken tree")) {
		t.Fatal("New must be fatal")
	}
	if IsFatal(Warning(KindValidation, "minor")) {
		t.Fatal("Warning must not be fatal")
	}
	if !IsFatal(stderrors.New("plain")) {
		t.Fatal("non-structured errors are always fatal")
	}
	if IsFatal(nil) {
		t.Fatal("nil is not fatal")
	}
}

func TestWithContext(t *testing.T) {
	err := ValidationError("item-1", "page", "missing required field title")
	err.WithContext("extra", 42)

	if err.Context["item_id"] != "item-1" || err.Context["schema"] != "page" {
		t.Fatalf("constructor context missing: %+v", err.Context)
	}
	if err.Context["extra"] != 42 {
		t.Fatalf("chained context missing: %+v", err.Context)
	}
}
