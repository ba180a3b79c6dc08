package platform

import "github.com/veandco/go-sdl2/sdl"

// Events summarizes everything that arrived during one PollEvents call.
type Events struct {
	Quit bool
	// Resized is set for any size change, including one to zero.
	Resized   bool
	Minimized bool
	Restored  bool
}

func (e *Events) add(event sdl.Event) {
	switch ev := event.(type) {
	case *sdl.QuitEvent:
		e.Quit = true
	case *sdl.WindowEvent:
		switch ev.Event {
		case sdl.WINDOWEVENT_CLOSE:
			e.Quit = true
		case sdl.WINDOWEVENT_MINIMIZED:
			e.Minimized = true
			e.Restored = false
		case sdl.WINDOWEVENT_RESTORED:
			e.Restored = true
			e.Minimized = false
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			e.Resized = true
		}
	}
}

// PollEvents drains the SDL queue.
func (w *Window) PollEvents() Events {
	var events Events
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		events.add(event)
	}
	return events
}
