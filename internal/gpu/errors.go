package gpu

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfDate is returned by acquire and present when the swapchain no
	// longer matches the surface and must be recreated.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal is returned by present when the swapchain still works
	// but should be recreated.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	ErrNoSuitableDevice = errors.New("no suitable physical device")
	ErrMissingExtension = errors.New("required extension not available")
	ErrMissingLayer     = errors.New("required layer not available")
	ErrNoMemoryType     = errors.New("no suitable memory type")
	ErrNotHostVisible   = errors.New("memory is not host visible")

	// ErrInvalidUsage marks API misuse caught by a backend: recording
	// outside Begin/End, bad layouts, exhausted pools and the like.
	ErrInvalidUsage = errors.New("invalid gpu usage")
)

// IsSwapchainStale reports whether err asks for swapchain recreation.
func IsSwapchainStale(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
