package render

import (
	"github.com/charmbracelet/log"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// DeviceContext bundles the logical device with its queues and the command
// pool everything else allocates from. It is created first and destroyed
// last.
type DeviceContext struct {
	Device      gpu.Device
	Graphics    gpu.Queue
	Present     gpu.Queue
	CommandPool gpu.CommandPool

	logger *log.Logger
}

func NewDeviceContext(device gpu.Device, logger *log.Logger) (*DeviceContext, error) {
	pool, err := device.CreateCommandPool()
	if err != nil {
		return nil, resourceErr(err, "create command pool")
	}
	return &DeviceContext{
		Device:      device,
		Graphics:    device.GraphicsQueue(),
		Present:     device.PresentQueue(),
		CommandPool: pool,
		logger:      logger,
	}, nil
}

// Destroy releases the command pool and the device. Every other object
// created from the context must already be gone.
func (c *DeviceContext) Destroy() {
	if c.CommandPool != nil {
		c.CommandPool.Destroy()
		c.CommandPool = nil
	}
	c.Device.Destroy()
}
