//go:build !linux

package kmsdrm

import "log/slog"

// Stub for non-Linux builds, matching the ioctl_other.go split: evdev is a
// Linux-only protocol, so there is nothing to enumerate or poll elsewhere.

type inputDevice struct{}

type inputBridge struct{}

func newInputBridge(log *slog.Logger, _ *sessionBridge) (*inputBridge, error) {
	return &inputBridge{}, nil
}

func (b *inputBridge) pump(d *Device, sink EventSink) {}

func (b *inputBridge) Close() {}
