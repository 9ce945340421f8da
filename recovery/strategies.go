package recovery

import (
	"context"
	"fmt"

	"github.com/wudi/pdflinear/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error, logs it as a warning and asks the
// reader to repair what it can.
type LenientStrategy struct {
	Logger observability.Logger
	Errors []error
}

func NewLenientStrategy(logger observability.Logger) *LenientStrategy {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &LenientStrategy{Logger: logger}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.Logger.Warn("recovering from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Error("error", err),
	)
	return ActionFix
}
