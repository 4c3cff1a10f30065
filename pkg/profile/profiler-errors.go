package profile

import (
	"github.com/pkg/errors"
)

var (
	ErrAlreadyEnabled = errors.New("profiler already enabled")
	ErrNotEnabled     = errors.New("profiler not enabled")
	ErrProfilerNil    = errors.New("profiler is nil")
	ErrRuntimeNil     = errors.New("host runtime is nil")
	ErrPeriodInvalid  = errors.New("sampling period must not be negative")
)
