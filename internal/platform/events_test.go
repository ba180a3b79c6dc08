package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"
)

func TestEventsAdd(t *testing.T) {
	tests := []struct {
		name   string
		events []sdl.Event
		want   Events
	}{
		{"quit", []sdl.Event{&sdl.QuitEvent{}}, Events{Quit: true}},
		{"close", []sdl.Event{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_CLOSE}}, Events{Quit: true}},
		{"resize", []sdl.Event{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED}}, Events{Resized: true}},
		{"minimize then restore", []sdl.Event{
			&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED},
			&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED},
		}, Events{Restored: true}},
		{"restore then minimize", []sdl.Event{
			&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED},
			&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED},
		}, Events{Minimized: true}},
		{"ignored", []sdl.Event{&sdl.KeyboardEvent{}, &sdl.WindowEvent{Event: sdl.WINDOWEVENT_MOVED}}, Events{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Events
			for _, e := range tt.events {
				got.add(e)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
