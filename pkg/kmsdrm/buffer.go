package kmsdrm

import (
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
)

// bufferSlot is spec §3's "Buffer slot". Go has no pointer sentinel for
// "uncreated"/"free" as clean as the source's handle=-1/map=-1, so this
// uses the idiomatic equivalents: Created bool for the handle, and a nil
// Mapped slice for "free" — nil slices are already a zero-cost, natural
// "absent" in Go and need no separate sentinel constant.
type bufferSlot struct {
	Created bool
	Handle  uint32
	Pitch   uint32
	Size    uint64
	FBID    uint32
	Mapped  []byte
}

func (s *bufferSlot) inUse() bool { return s.Created }

// createBuffer is component E's create(idx, w, h, def): CREATE_DUMB with
// the format's height factor folded into the kernel height, ADDFB2 via the
// color catalog's fbArgs, MAP_DUMB, then mmap. Any failure unwinds what
// already succeeded in reverse order and leaves the slot zeroed (Created
// false, Pitch 0) to mark it unused.
func createBuffer(h *ioHooks, f *os.File, def ColorDef, w, hgt int, log *slog.Logger) (bufferSlot, error) {
	var slot bufferSlot

	dumb, err := h.createDumb(f, uint32(w), uint32(hgt)*def.H, def.Bpp)
	if err != nil {
		return bufferSlot{}, NewKernelError(err, "CREATE_DUMB %dx%d@%d", w, hgt, def.Bpp)
	}
	slot.Handle = dumb.Handle
	slot.Pitch = dumb.Pitch
	slot.Size = dumb.Size

	handles, pitches, offsets := fbArgs(def, dumb.Handle, dumb.Pitch, hgt)
	fbID, err := h.addFB2(f, uint32(w), uint32(hgt), def.Fourcc, handles, pitches, offsets)
	if err != nil {
		h.destroyDumb(f, dumb.Handle)
		return bufferSlot{}, NewKernelError(err, "ADDFB2 %dx%d", w, hgt)
	}
	slot.FBID = fbID

	offset, err := h.mapDumb(f, dumb.Handle)
	if err != nil {
		h.rmFB(f, fbID)
		h.destroyDumb(f, dumb.Handle)
		return bufferSlot{}, NewKernelError(err, "MAP_DUMB handle=%d", dumb.Handle)
	}

	var fd int = -1
	if f != nil {
		fd = int(f.Fd())
	}
	mapped, err := h.mmap(fd, int64(offset), int(dumb.Size))
	if err != nil {
		h.rmFB(f, fbID)
		h.destroyDumb(f, dumb.Handle)
		return bufferSlot{}, NewKernelError(err, "mmap handle=%d size=%d", dumb.Handle, dumb.Size)
	}
	slot.Mapped = mapped
	slot.Created = true

	if log != nil {
		log.Debug("buffer created", "handle", slot.Handle, "fb", slot.FBID, "size", humanize.Bytes(slot.Size))
	}
	return slot, nil
}

// destroyBuffer is the per-slot half of component E's clear_all: munmap,
// RmFB, DESTROY_DUMB, and the sentinel reset.
func destroyBuffer(h *ioHooks, f *os.File, slot *bufferSlot) {
	if !slot.Created {
		return
	}
	if slot.Mapped != nil {
		h.munmap(slot.Mapped)
	}
	h.rmFB(f, slot.FBID)
	h.destroyDumb(f, slot.Handle)
	*slot = bufferSlot{}
}

// clearAllBuffers destroys every in-use slot in the set, the array form of
// component E's clear_all.
func clearAllBuffers(h *ioHooks, f *os.File, slots []bufferSlot) {
	for i := range slots {
		destroyBuffer(h, f, &slots[i])
	}
}
