package recovery_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-kit/log"

	"github.com/wudi/pdflinear/observability"
	"github.com/wudi/pdflinear/recovery"
)

func TestRecoveryStrategies(t *testing.T) {
	loc := recovery.Location{ByteOffset: 42, Component: "xref"}
	errBroken := errors.New("broken xref")

	t.Run("StrictStrategy", func(t *testing.T) {
		if a := recovery.NewStrictStrategy().OnError(context.Background(), errBroken, loc); a != recovery.ActionFail {
			t.Fatalf("action = %v, want fail", a)
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		var logs bytes.Buffer
		rec := recovery.NewLenientStrategy(observability.NewKitLogger(log.NewLogfmtLogger(&logs)))
		if a := rec.OnError(context.Background(), errBroken, loc); a != recovery.ActionFix {
			t.Fatalf("action = %v, want fix", a)
		}
		if len(rec.Errors) != 1 || !errors.Is(rec.Errors[0], errBroken) {
			t.Fatalf("recorded errors = %v", rec.Errors)
		}
		if !bytes.Contains(logs.Bytes(), []byte("offset=42")) {
			t.Errorf("warning not logged: %s", logs.String())
		}
	})

	t.Run("LenientStrategyWithoutLogger", func(t *testing.T) {
		rec := recovery.NewLenientStrategy(nil)
		if a := rec.OnError(context.Background(), errBroken, loc); a != recovery.ActionFix {
			t.Fatalf("action = %v, want fix", a)
		}
	})
}

func TestActionString(t *testing.T) {
	for a, want := range map[recovery.Action]string{
		recovery.ActionFail: "fail",
		recovery.ActionSkip: "skip",
		recovery.ActionFix:  "fix",
		recovery.ActionWarn: "warn",
		recovery.Action(9):  "unknown",
	} {
		if got := a.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", a, got, want)
		}
	}
}
