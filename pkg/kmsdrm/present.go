package kmsdrm

import (
	"errors"

	"golang.org/x/sys/unix"
)

// startWorkerLocked starts the flip worker for triple-buffer mode. Caller
// holds d.mu. It blocks until the worker is parked in cond.Wait, the paired
// startup signal §5 asks for so SetVideoMode only returns once the worker is
// ready to receive flips.
func (d *Device) startWorkerLocked() {
	d.workerStop = false
	d.workerRunning = true
	d.workerDone = make(chan struct{})
	started := make(chan struct{})

	go d.flipWorker(started)

	d.mu.Unlock()
	<-started
	d.mu.Lock()
}

// flipWorker is component F's triple-buffer worker: park on d.cond, and on
// each wake rotate queued<->front into a fresh atomic request pointing at
// the newly queued slot, then commit. It signals readiness once by closing
// started from inside the locked section, immediately before its first wait.
func (d *Device) flipWorker(started chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer close(d.workerDone)

	log := d.log.With("corr", d.corrID.String())
	first := true
	for {
		if first {
			close(started)
			first = false
		}
		if d.workerStop {
			return
		}
		d.cond.Wait()
		if d.workerStop {
			return
		}

		d.queued, d.front = d.front, d.queued
		slot := d.slots[d.queued]
		p := d.activePipe

		req := d.template.duplicate()
		if err := d.attachPlaneLocked(req, p, slot.FBID, d.w, d.h, d.crtcW, d.crtcH, d.bpp); err != nil {
			log.Warn("flip worker: attach plane failed", "err", err)
			continue
		}
		if err := d.hooks.atomicCommit(d.file, req, drmModeAtomicFlagAllowModeset); err != nil {
			log.Warn("flip worker: commit failed", "err", err)
		}
	}
}

// stopWorkerLocked is §4.F's cancellation sequence: set the stop flag,
// broadcast once, and join. Caller holds d.mu; it must run before buffer
// cleanup and mode-blob destruction (teardownModeLocked's ordering).
func (d *Device) stopWorkerLocked() {
	if !d.workerRunning {
		return
	}
	d.workerStop = true
	d.cond.Broadcast()

	done := d.workerDone
	d.mu.Unlock()
	<-done
	d.mu.Lock()

	d.workerRunning = false
	d.workerDone = nil
}

// FlipHWSurface implements component F's present operation across all
// three buffering states.
func (d *Device) FlipHWSurface() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return ErrUnarmed
	}

	switch d.nBuf {
	case 1:
		return nil
	case 2:
		return d.flipDoubleLocked()
	default:
		d.front, d.back = d.back, d.front
		d.cond.Signal()
		return nil
	}
}

// flipDoubleLocked is §4.F's double-buffer path: duplicate the template,
// re-apply scaling (the scaling mode may have changed since the last flip),
// point FB_ID at the back slot, commit synchronously, then swap.
func (d *Device) flipDoubleLocked() error {
	slot := d.slots[d.back]
	p := d.activePipe

	req := d.template.duplicate()
	if err := d.attachPlaneLocked(req, p, slot.FBID, d.w, d.h, d.crtcW, d.crtcH, d.bpp); err != nil {
		return err
	}
	if err := d.hooks.atomicCommit(d.file, req, drmModeAtomicFlagAllowModeset); err != nil {
		return NewKernelError(err, "ATOMIC commit (flip) crtc=%d", p.CRTC)
	}

	d.front, d.back = d.back, d.front
	return nil
}

// SetColors implements component F's 8-bpp gamma LUT rebuild: write palette
// entries [first, first+n), publish a new GAMMA_LUT blob, and swap+destroy
// the old one. The next flip's rebuilt request picks up the new blob id
// through attachPlaneLocked.
func (d *Device) SetColors(first, n int, colors []Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if first < 0 || n < 0 || first+n > len(d.palette) || n > len(colors) {
		return NewBadPixelFormatError("kmsdrm: SetColors range [%d,%d) out of bounds", first, first+n)
	}
	for i := 0; i < n; i++ {
		d.palette[first+i] = colors[i]
	}

	newBlobID, err := d.hooks.createPropBlob(d.file, gammaLUTBytes(&d.palette))
	if err != nil {
		return NewOutOfMemoryError("kmsdrm: CREATEPROPBLOB(gamma): %v", err)
	}

	oldBlobID := d.gammaBlobID
	d.gammaBlobID = newBlobID
	if oldBlobID != 0 {
		d.hooks.destroyPropBlob(d.file, oldBlobID)
	}
	return nil
}

// gammaLUTBytes packs a 256-entry palette into the drm_color_lut wire
// layout ({u16 red,green,blue,reserved} per entry) GAMMA_LUT blobs use.
// VideoInit calls this with the zero-valued palette to publish an initial
// blob (the original's drm_palette global is likewise zero-initialized at
// startup), and SetColors calls it again after writing new entries.
func gammaLUTBytes(palette *[256]Color) []byte {
	lut := make([]byte, len(palette)*8)
	for i, c := range palette {
		off := i * 8
		putLUT16(lut[off:], uint16(c.R)<<8)
		putLUT16(lut[off+2:], uint16(c.G)<<8)
		putLUT16(lut[off+4:], uint16(c.B)<<8)
	}
	return lut
}

func putLUT16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// UpdateRects implements component F's damage hint: only meaningful when
// the active pipe's plane exposes FB_DAMAGE_CLIPS and a request template
// exists. A commit failure with EBUSY is tolerated, matching the present
// engine's non-blocking damage path.
func (d *Device) UpdateRects(rects []Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active || !d.hasDamageClips || d.template == nil || len(rects) == 0 {
		return
	}

	clips := make([]byte, 0, len(rects)*16)
	for _, r := range rects {
		clips = append(clips, packDamageClip(r)...)
	}

	blobID, err := d.hooks.createPropBlob(d.file, clips)
	if err != nil {
		d.log.Warn("update rects: create damage blob failed", "err", err)
		return
	}

	req := d.template.duplicate()
	p := d.activePipe
	if err := req.addByName(d.props, p.Plane, "FB_DAMAGE_CLIPS", uint64(blobID), false); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		d.log.Warn("update rects: attach damage clips failed", "err", err)
		return
	}
	slot := d.slots[d.front]
	if err := req.addByName(d.props, p.Plane, "FB_ID", uint64(slot.FBID), false); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		return
	}

	err = d.hooks.atomicCommit(d.file, req, drmModeAtomicFlagNonblock)
	d.hooks.destroyPropBlob(d.file, blobID)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			d.log.Debug("update rects: commit busy, dropping", "err", NewTransientBusyError("kmsdrm: %v", err))
		} else {
			d.log.Warn("update rects: commit failed", "err", err)
		}
	}
}

// packDamageClip lays out one drm_mode_rect (x1,y1,x2,y2 as int32) for the
// FB_DAMAGE_CLIPS blob.
func packDamageClip(r Rect) []byte {
	out := make([]byte, 16)
	putInt32(out[0:], int32(r.X))
	putInt32(out[4:], int32(r.Y))
	putInt32(out[8:], int32(r.X+r.W))
	putInt32(out[12:], int32(r.Y+r.H))
	return out
}

func putInt32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
