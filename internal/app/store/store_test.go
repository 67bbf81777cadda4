package store

import (
	"errors"
	"fmt"
	"testing"

	"pingup/internal/pkg/errs"
)

func TestTranslate(t *testing.T) {
	if Translate(nil, errs.ErrUserNotFound) != nil {
		t.Fatal("nil should stay nil")
	}

	err := Translate(fmt.Errorf("lookup: %w", ErrNotFound), errs.ErrUserNotFound)
	if !errs.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("not found mapped to %v", err)
	}

	err = Translate(errors.New("connection reset"), errs.ErrUserNotFound)
	if errs.KindOf(err) != errs.KindTransient {
		t.Fatalf("infra failure kind = %s, want transient", errs.KindOf(err))
	}

	passthrough := errs.NewError(errs.ErrAlreadyRequested)
	if got := Translate(passthrough, errs.ErrUserNotFound); !errs.Is(got, errs.ErrAlreadyRequested) {
		t.Fatalf("custom error rewritten to %v", got)
	}
}
