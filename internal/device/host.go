// Package device drives the host sound card through miniaudio (malgo): a
// [Microphone] for capture sessions and a [Speaker] for synthesized speech.
package device

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/malgo"
)

// Host owns the miniaudio context shared by every device it opens.
type Host struct {
	ctx *malgo.AllocatedContext
}

// NewHost initialises the platform audio backend.
func NewHost() (*Host, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("device: miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("device: init audio context: %w", err)
	}
	return &Host{ctx: ctx}, nil
}

// Close releases the audio context. Devices must be closed first.
func (h *Host) Close() error {
	if h.ctx == nil {
		return nil
	}
	err := h.ctx.Uninit()
	h.ctx.Free()
	h.ctx = nil
	return err
}

// Info describes one audio endpoint.
type Info struct {
	Name    string
	Default bool
}

// Inputs lists capture devices.
func (h *Host) Inputs() ([]Info, error) { return h.list(malgo.Capture) }

// Outputs lists playback devices.
func (h *Host) Outputs() ([]Info, error) { return h.list(malgo.Playback) }

func (h *Host) list(kind malgo.DeviceType) ([]Info, error) {
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate devices: %w", err)
	}
	out := make([]Info, 0, len(infos))
	for _, info := range infos {
		out = append(out, Info{Name: info.Name(), Default: info.IsDefault > 0})
	}
	return out, nil
}

// find returns the ID of the first device whose name contains name
// (case-insensitive). An empty name selects the system default (nil).
func (h *Host) find(kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), want) {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("device: no device matching %q", name)
}
