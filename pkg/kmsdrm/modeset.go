package kmsdrm

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// scalingRect is the result of the scaling helper: the CRTC_{X,Y,W,H}
// atomic properties for the active plane.
type scalingRect struct {
	X, Y, W, H int
}

// applyScaling is §4.D's scaling helper: given (w,h) source, (mw,mh) CRTC,
// and the pipe's pixel-aspect factors, fill CRTC_{W,H} then center.
func applyScaling(mode ScalingMode, w, h, mw, mh, factorW, factorH int) scalingRect {
	if factorW == 0 {
		factorW = 1
	}
	if factorH == 0 {
		factorH = 1
	}

	var cw, ch int
	switch mode {
	case ScalingAspectRatio:
		if w*mh*factorW > h*mw*factorH {
			cw = mw
			ch = factorH * cw * h / (w * factorW)
		} else {
			ch = mh
			cw = factorW * ch * w / (h * factorH)
		}
	case ScalingIntegerScaled:
		if w < mw/factorW && h < mh/factorH {
			sx := (mw / factorW) / w
			sy := (mh / factorH) / h
			cw = w * factorW * sx
			ch = h * factorH * sy
		} else {
			cw, ch = mw, mh
		}
	default: // ScalingFullscreen
		cw, ch = mw, mh
	}

	return scalingRect{X: (mw - cw) / 2, Y: (mh - ch) / 2, W: cw, H: ch}
}

func refreshRateFromEnv() int {
	if v := os.Getenv("SDL_VIDEO_REFRESHRATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 60
}

func colorFlagFromFlags(flags uint32) colorFlag {
	switch {
	case flags&surfaceFlagYUV != 0:
		return colorYUV
	case flags&surfaceFlagSwizzleBGR != 0:
		return colorSwizzleBGR
	default:
		return colorDefault
	}
}

// SetVideoMode implements component D's set_video_mode. It is idempotent
// across repeated calls: re-entry first tears down any active pipe, worker,
// buffers and mode blob before trying again.
func (d *Device) SetVideoMode(w, h, bpp int, flags uint32) (*Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.teardownModeLocked()

	d.corrID = uuid.New()
	log := d.log.With("corr", d.corrID.String())

	def, err := selectColor(bpp, colorFlagFromFlags(flags))
	if err != nil {
		return nil, err
	}

	nBuf := 1
	switch {
	case flags&FlagTripleBuf != 0:
		nBuf = 3
	case flags&FlagDoubleBuf != 0:
		nBuf = 2
	}

	slots := make([]bufferSlot, nBuf)
	for i := range slots {
		s, err := createBuffer(d.hooks, d.file, def, w, h, log)
		if err != nil {
			clearAllBuffers(d.hooks, d.file, slots[:i])
			return nil, err
		}
		slots[i] = s
	}

	targetHz := refreshRateFromEnv()

	var lastErr error
	for _, p := range d.pipes {
		mode, _ := findClosestRefresh(p, targetHz)
		blobID, req, hasDamage, err := d.tryCommitPipe(p, mode, slots, def, w, h, bpp, log)
		if err != nil {
			lastErr = err
			log.Warn("pipe commit failed, trying next", "crtc", p.CRTC, "err", err)
			continue
		}

		d.activePipe = p
		d.modeBlobID = blobID
		d.template = req
		d.hasDamageClips = hasDamage
		d.active = true
		d.slots = slots
		d.nBuf = nBuf
		d.front, d.back, d.queued = 0, 1%nBuf, 2%nBuf
		d.colorDef = def
		d.w, d.h, d.bpp = w, h, bpp
		d.crtcW, d.crtcH = int(mode.HDisplay), int(mode.VDisplay)

		if nBuf == 3 {
			d.startWorkerLocked()
		}

		return d.surfaceLocked(), nil
	}

	clearAllBuffers(d.hooks, d.file, slots)
	if lastErr == nil {
		lastErr = ErrNoPipes
	}
	return nil, NewUnsupportedError("kmsdrm: no pipe accepted mode %dx%d@%d: %v", w, h, bpp, lastErr)
}

// tryCommitPipe builds and commits one candidate pipe's atomic request,
// per §4.D step 4-5. On success it returns the mode blob id, the cached
// template (to be duplicated by every later flip), and the has-damage-clips
// flag; on failure it destroys the mode blob it created and drops the
// request, and the caller moves on to the next pipe.
func (d *Device) tryCommitPipe(p pipe, mode modeInfo, slots []bufferSlot, def ColorDef, w, h, bpp int, log *slog.Logger) (uint32, *atomicRequest, bool, error) {
	if err := d.props.acquire(d.file, p.Plane, drmModeObjectPlane); err != nil {
		return 0, nil, false, err
	}
	if err := d.props.acquire(d.file, p.CRTC, drmModeObjectCRTC); err != nil {
		return 0, nil, false, err
	}
	if err := d.props.acquire(d.file, p.Connector, drmModeObjectConnector); err != nil {
		return 0, nil, false, err
	}

	blobID, err := d.hooks.createPropBlob(d.file, encodeModeBlob(mode))
	if err != nil {
		return 0, nil, false, NewKernelError(err, "CREATEPROPBLOB(mode)")
	}

	req := newAtomicRequest()
	for _, other := range d.pipes {
		if other.CRTC != p.CRTC || other.Plane == p.Plane {
			continue
		}
		req.addByName(d.props, other.Plane, "FB_ID", 0, true)
		req.addByName(d.props, other.Plane, "CRTC_ID", 0, true)
	}

	if err := req.addByName(d.props, p.Connector, "CRTC_ID", uint64(p.CRTC), false); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		return 0, nil, false, err
	}
	if err := req.addByName(d.props, p.CRTC, "MODE_ID", uint64(blobID), false); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		return 0, nil, false, err
	}
	if err := req.addByName(d.props, p.CRTC, "ACTIVE", 1, false); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		return 0, nil, false, err
	}

	template := req.duplicate()

	front := slots[0]
	mw, mh := int(mode.HDisplay), int(mode.VDisplay)
	if err := d.attachPlaneLocked(req, p, front.FBID, w, h, mw, mh, bpp); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		return 0, nil, false, err
	}

	if err := d.hooks.atomicCommit(d.file, req, drmModeAtomicFlagAllowModeset); err != nil {
		d.hooks.destroyPropBlob(d.file, blobID)
		return 0, nil, false, NewKernelError(err, "ATOMIC commit crtc=%d", p.CRTC)
	}

	hasDamage := false
	if _, ok := d.props.lookupID(p.Plane, "FB_DAMAGE_CLIPS"); ok {
		hasDamage = true
	}

	return blobID, template, hasDamage, nil
}

// attachPlaneLocked fills in FB_ID/CRTC_ID/SRC_*/CRTC_* (and GAMMA_LUT at
// 8bpp) on req for the plane of an already-active or about-to-be-active
// pipe. Shared between the initial modeset and double-buffer flips since
// both rebuild the same property set from the duplicated template.
func (d *Device) attachPlaneLocked(req *atomicRequest, p pipe, fbID uint32, w, h, mw, mh, bpp int) error {
	if err := req.addByName(d.props, p.Plane, "FB_ID", uint64(fbID), false); err != nil {
		return err
	}
	if err := req.addByName(d.props, p.Plane, "CRTC_ID", uint64(p.CRTC), false); err != nil {
		return err
	}
	req.add16_16(d.props, p.Plane, "SRC_X", 0)
	req.add16_16(d.props, p.Plane, "SRC_Y", 0)
	req.add16_16(d.props, p.Plane, "SRC_W", uint64(w))
	req.add16_16(d.props, p.Plane, "SRC_H", uint64(h))

	rect := applyScaling(d.scalingMode, w, h, mw, mh, p.FactorW, p.FactorH)
	req.addByName(d.props, p.Plane, "CRTC_X", uint64(int32(rect.X)), true)
	req.addByName(d.props, p.Plane, "CRTC_Y", uint64(int32(rect.Y)), true)
	req.addByName(d.props, p.Plane, "CRTC_W", uint64(rect.W), true)
	req.addByName(d.props, p.Plane, "CRTC_H", uint64(rect.H), true)

	if bpp == 8 && d.gammaBlobID != 0 {
		req.addByName(d.props, p.CRTC, "GAMMA_LUT", uint64(d.gammaBlobID), true)
	}
	return nil
}

// add16_16 sets a property to a DRM 16.16 fixed-point value (source
// rectangle properties use this encoding per §4.D step 4).
func (r *atomicRequest) add16_16(props *propertyCache, objID uint32, name string, value uint64) {
	r.addByName(props, objID, name, value<<16, true)
}

// teardownModeLocked is SetVideoMode's re-entry cleanup and VideoQuit's
// final cleanup: stop the worker, clear buffers, free the mode blob, drop
// the cached template and active-pipe marker. Caller holds d.mu.
func (d *Device) teardownModeLocked() {
	d.stopWorkerLocked()
	if len(d.slots) > 0 {
		clearAllBuffers(d.hooks, d.file, d.slots)
		d.slots = nil
	}
	if d.modeBlobID != 0 {
		d.hooks.destroyPropBlob(d.file, d.modeBlobID)
		d.modeBlobID = 0
	}
	d.template = nil
	d.active = false
}

func (d *Device) surfaceLocked() *Surface {
	idx := d.front
	if d.nBuf > 1 {
		idx = d.back
	}
	return &Surface{
		Format: pixelFormatFromColorDef(d.colorDef),
		W:      d.w,
		H:      d.h,
		Pitch:  d.slots[idx].Pitch,
		Pixels: d.slots[idx].Mapped,
	}
}

func pixelFormatFromColorDef(def ColorDef) PixelFormat {
	return PixelFormat{
		BitsPerPixel: uint8(def.Bpp), BytesPerPixel: uint8(def.Bpp / 8),
		RMask: def.RMask(), GMask: def.GMask(), BMask: def.BMask(), AMask: def.AMask(),
		RShift: def.RShift, GShift: def.GShift, BShift: def.BShift, AShift: def.AShift,
		RBits: def.RBits, GBits: def.GBits, BBits: def.BBits, ABits: def.ABits,
	}
}

const (
	surfaceFlagSwizzleBGR uint32 = 1 << 8
	surfaceFlagYUV        uint32 = 1 << 9
)

// encodeModeBlob packs a modeInfo back into the fixed-size wire layout
// DRM_MODE_CREATE_PROPBLOB expects for a MODE_ID blob (a raw
// struct drm_mode_modeinfo).
func encodeModeBlob(m modeInfo) []byte {
	var raw drmModeModeInfo
	raw.Clock = m.Clock
	raw.HDisplay, raw.HSyncStart, raw.HSyncEnd, raw.HTotal, raw.HSkew = m.HDisplay, m.HSyncStart, m.HSyncEnd, m.HTotal, m.HSkew
	raw.VDisplay, raw.VSyncStart, raw.VSyncEnd, raw.VTotal, raw.VScan = m.VDisplay, m.VSyncStart, m.VSyncEnd, m.VTotal, m.VScan
	raw.VRefresh, raw.Flags, raw.Type = m.VRefresh, m.Flags, m.Type
	copy(raw.Name[:], m.Name)
	return structToBytes(&raw)
}
