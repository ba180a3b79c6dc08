package render

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

var (
	ErrNoMatchingFormat = errors.New("no candidate format is supported")
	ErrPipeline         = errors.New("pipeline creation failed")
	ErrResource         = errors.New("gpu resource creation failed")
	// ErrInvalidState reports a call made out of order, such as drawing
	// before Init.
	ErrInvalidState = errors.New("invalid renderer state")
	ErrInvalidModel = errors.New("invalid model")

	ErrOutOfDate        = gpu.ErrOutOfDate
	ErrSuboptimal       = gpu.ErrSuboptimal
	ErrNoSuitableDevice = gpu.ErrNoSuitableDevice
	ErrMissingExtension = gpu.ErrMissingExtension
	ErrMissingLayer     = gpu.ErrMissingLayer
)

func resourceErr(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResource)
}
