package kmsdrm

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Linux input protocol constants this bridge actually dispatches on
// (linux/input-event-codes.h); only the subset component G's semantics
// need.
const (
	evKey = 0x01
	evRel = 0x02

	relX     = 0x00
	relY     = 0x01
	relWheel = 0x08

	btnLeft = 0x110
	btnTask = 0x117
)

// keymap is the evdev KEY_* -> Keysym scancode table, reproduced from
// SDL_kmsdrmevents.c's keymap[]. The host's own keysym enum is out of
// scope (spec.md §1), so entries are SDL-style keysym values (ASCII for
// printable keys and ESC/BACKSPACE/TAB/ENTER, 273-276 for the arrows);
// keycodes absent from the table translate to Keysym 0.
var keymap = map[uint16]Keysym{
	1: 27, // ESC
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: '-', 13: '=', 14: 8, // BACKSPACE
	15: 9, // TAB
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't', 21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	26: '[', 27: ']', 28: 13, // ENTER
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g', 35: 'h', 36: 'j', 37: 'k', 38: 'l',
	39: ';', 40: '\'', 41: '`', 43: '\\',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b', 49: 'n', 50: 'm',
	51: ',', 52: '.', 53: '/', 57: ' ',
	103: 273, // UP
	105: 276, // LEFT
	106: 275, // RIGHT
	108: 274, // DOWN
}

// inputEvent mirrors struct input_event on 64-bit Linux (64-bit
// time/suseconds fields, as used by every currently supported kernel
// ABI this backend targets).
type inputEvent struct {
	Sec   uint64
	Usec  uint64
	Type  uint16
	Code  uint16
	Value int32
}

type inputDevice struct {
	path    string
	handle  sessionHandle
	isMouse bool
}

// plainFileHandle wraps a bare os.File opened without logind so it
// satisfies sessionHandle without dragging in directHandle's DRM-specific
// dropMaster-on-close behavior.
type plainFileHandle struct{ f *os.File }

func (h plainFileHandle) Fd() uintptr  { return h.f.Fd() }
func (h plainFileHandle) Close() error { return h.f.Close() }

// inputBridge is component G: enumerated evdev devices plus the keycode
// that cycles the Device's scaling mode.
type inputBridge struct {
	log         *slog.Logger
	devices     []inputDevice
	scalingKey  uint16
	hasScaling  bool
	onScaling   func()
}

// newInputBridge enumerates /dev/input/eventN devices whose udev database
// entry marks them ID_INPUT_KEY=1 or ID_INPUT_MOUSE=1. No third-party
// libudev binding exists anywhere in this pack, so enumeration reads the
// udev hardware database directly (/run/udev/data/cMAJ:MIN) the same way
// libudev itself resolves device properties internally — a deliberate
// stdlib-only exception, justified in DESIGN.md.
//
// bridge is the same logind session used for the DRM node (§4.H): TakeDevice
// is keyed by major/minor, not by subsystem, so it leases evdev nodes too
// when logind is in use; bridge is nil when no session bridge was set up
// (KMSDRM_USE_LOGIND unset or the bus unreachable), in which case each node
// is opened directly instead.
func newInputBridge(log *slog.Logger, bridge *sessionBridge) (*inputBridge, error) {
	b := &inputBridge{log: log}

	if key := os.Getenv("SDL_VIDEO_KMSDRM_SCALING_KEY"); key != "" {
		if n, err := strconv.Atoi(key); err == nil {
			b.scalingKey = uint16(n)
			b.hasScaling = true
		}
	}

	matches, _ := filepath.Glob("/dev/input/event*")
	for _, path := range matches {
		isKeyboard, isMouse, err := udevInputProperties(path)
		if err != nil || (!isKeyboard && !isMouse) {
			continue
		}
		handle, err := openInputNode(bridge, path)
		if err != nil {
			log.Warn("open input device failed", "path", path, "err", err)
			continue
		}
		b.devices = append(b.devices, inputDevice{path: path, handle: handle, isMouse: isMouse})
	}
	return b, nil
}

// openInputNode leases path through the logind session bridge when one is
// available, falling back to a direct non-blocking open otherwise.
func openInputNode(bridge *sessionBridge, path string) (sessionHandle, error) {
	if bridge != nil {
		h, err := bridge.Acquire(path)
		if err != nil {
			return nil, err
		}
		unix.SetNonblock(int(h.Fd()), true)
		return h, nil
	}
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return plainFileHandle{f: f}, nil
}

func udevInputProperties(devPath string) (isKeyboard, isMouse bool, err error) {
	var stat unix.Stat_t
	if err = unix.Stat(devPath, &stat); err != nil {
		return false, false, err
	}
	major, minor := unix.Major(uint64(stat.Rdev)), unix.Minor(uint64(stat.Rdev))
	dbPath := fmt.Sprintf("/run/udev/data/c%d:%d", major, minor)

	f, err := os.Open(dbPath)
	if err != nil {
		return false, false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "E:") {
			continue
		}
		switch {
		case line == "E:ID_INPUT_KEY=1":
			isKeyboard = true
		case line == "E:ID_INPUT_MOUSE=1":
			isMouse = true
		}
	}
	return isKeyboard, isMouse, sc.Err()
}

func (b *inputBridge) pump(d *Device, sink EventSink) {
	var raw inputEvent
	buf := structToBytes(&raw)
	for i := range b.devices {
		dev := &b.devices[i]
		for {
			n, err := unix.Read(int(dev.handle.Fd()), buf)
			if err != nil {
				if err != unix.EAGAIN {
					b.log.Warn("input read error", "path", dev.path, "err", err)
				}
				break
			}
			if n < len(buf) {
				break
			}
			b.dispatch(d, sink, dev, raw)
		}
	}
}

func (b *inputBridge) dispatch(d *Device, sink EventSink, dev *inputDevice, ev inputEvent) {
	switch ev.Type {
	case evKey:
		if b.hasScaling && ev.Code == b.scalingKey {
			if ev.Value == 1 {
				d.advanceScalingMode()
			}
			return
		}
		if ev.Code >= btnLeft && ev.Code <= btnTask {
			kind := EventMouseButtonUp
			if ev.Value != 0 {
				kind = EventMouseButtonDown
			}
			sink.Dispatch(Event{Kind: kind, Button: uint8(ev.Code - btnLeft + 1)})
			return
		}
		kind := EventKeyUp
		if ev.Value != 0 {
			kind = EventKeyDown
		}
		sink.Dispatch(Event{Kind: kind, Key: keymap[ev.Code]})
	case evRel:
		switch ev.Code {
		case relX:
			sink.Dispatch(Event{Kind: EventMouseMotion, RelX: ev.Value})
		case relY:
			sink.Dispatch(Event{Kind: EventMouseMotion, RelY: ev.Value})
		case relWheel:
			button := uint8(4) // wheel-up
			if ev.Value < 0 {
				button = 5 // wheel-down
			}
			sink.Dispatch(Event{Kind: EventMouseButtonDown, Button: button})
			sink.Dispatch(Event{Kind: EventMouseButtonUp, Button: button})
		}
	}
}

func (d *Device) advanceScalingMode() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scalingMode = d.scalingMode.next()
}

func (b *inputBridge) Close() {
	for _, dev := range b.devices {
		dev.handle.Close()
	}
	b.devices = nil
}
