package kmsdrm

import (
	"math"
	"os"
)

// modeInfo is the package's working copy of struct drm_mode_modeinfo; it is
// copied out of the raw ioctl struct once so the rest of the package never
// touches drmModeModeInfo's fixed-size Name array again.
type modeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	Name       string
}

func toModeInfo(m drmModeModeInfo) modeInfo {
	n := 0
	for n < len(m.Name) && m.Name[n] != 0 {
		n++
	}
	return modeInfo{
		Clock: m.Clock, HDisplay: m.HDisplay, HSyncStart: m.HSyncStart, HSyncEnd: m.HSyncEnd,
		HTotal: m.HTotal, HSkew: m.HSkew, VDisplay: m.VDisplay, VSyncStart: m.VSyncStart, VSyncEnd: m.VSyncEnd,
		VTotal: m.VTotal, VScan: m.VScan, VRefresh: m.VRefresh, Flags: m.Flags, Type: m.Type, Name: string(m.Name[:n]),
	}
}

// refreshHz is component C's refresh(m).
func (m modeInfo) refreshHz() float64 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	return float64(m.Clock) * 1000.0 / (float64(m.HTotal) * float64(m.VTotal))
}

// pipe is spec §3's "Pipe": a (plane, crtc, encoder, connector) quadruple
// plus its mode list and pixel-aspect correction factors.
type pipe struct {
	Plane, CRTC, Encoder, Connector uint32
	Modes                           []modeInfo
	FactorW, FactorH                int
}

// discoverPipes is component C's registration loop: for every primary
// plane, the Cartesian product of CRTCs x encoders x connectors, keeping
// quadruples where all four objects are live and the possible_crtcs masks,
// encoder binding, connection state and mode count line up. Order of
// discovery is preserved (append-at-tail) because §4.D's retry loop
// iterates pipes in this exact order.
func discoverPipes(f *os.File, props *propertyCache) ([]pipe, error) {
	crtcIDs, connIDs, encIDs, err := getResources(f)
	if err != nil {
		return nil, NewKernelError(err, "GETRESOURCES")
	}
	planeIDs, err := getPlaneResources(f)
	if err != nil {
		return nil, NewKernelError(err, "GETPLANERESOURCES")
	}

	type encInfo struct {
		id, crtcID, possibleCrtcs uint32
	}
	encoders := make([]encInfo, 0, len(encIDs))
	for _, id := range encIDs {
		e, err := getEncoder(f, id)
		if err != nil {
			return nil, NewKernelError(err, "GETENCODER(%d)", id)
		}
		encoders = append(encoders, encInfo{id: id, crtcID: e.CrtcID, possibleCrtcs: e.PossibleCrtcs})
	}

	type connInfo struct {
		id, encoderID, mmWidth, mmHeight, connection uint32
		modes                                        []modeInfo
	}
	connectors := make([]connInfo, 0, len(connIDs))
	for _, id := range connIDs {
		c, err := getConnector(f, id)
		if err != nil {
			return nil, NewKernelError(err, "GETCONNECTOR(%d)", id)
		}
		modes := make([]modeInfo, 0, len(c.Modes))
		for _, m := range c.Modes {
			modes = append(modes, toModeInfo(m))
		}
		connectors = append(connectors, connInfo{
			id: id, encoderID: c.EncoderID, mmWidth: c.MmWidth, mmHeight: c.MmHeight,
			connection: c.Connection, modes: modes,
		})
	}

	var pipes []pipe
	for _, planeID := range planeIDs {
		pl, err := getPlane(f, planeID)
		if err != nil {
			return nil, NewKernelError(err, "GETPLANE(%d)", planeID)
		}
		if err := props.acquire(f, planeID, drmModeObjectPlane); err != nil {
			return nil, err
		}
		if t, ok := props.getValue(planeID, "type"); ok && t == planeTypeOverlay {
			continue // overlays are skipped (spec §4.C)
		}

		for crtcIndex, crtcID := range crtcIDs {
			bit := uint32(1) << uint(crtcIndex)
			if pl.PossibleCrtcs&bit == 0 {
				continue
			}
			for _, e := range encoders {
				if e.possibleCrtcs&bit == 0 {
					continue
				}
				for _, c := range connectors {
					if c.encoderID != e.id {
						continue
					}
					if c.connection != drmModeConnected || len(c.modes) == 0 {
						continue
					}

					factorW, factorH := pixelAspectFactors(c.modes[0], c.mmWidth, c.mmHeight)
					pipes = append(pipes, pipe{
						Plane: planeID, CRTC: crtcID, Encoder: e.id, Connector: c.id,
						Modes: c.modes, FactorW: factorW, FactorH: factorH,
					})
				}
			}
		}
	}
	return pipes, nil
}

// pixelAspectFactors derives (factor_w, factor_h) from the first mode and
// the connector's EDID physical size, per §4.C.
func pixelAspectFactors(m modeInfo, mmWidth, mmHeight uint32) (int, int) {
	if mmWidth == 0 || mmHeight == 0 || m.HDisplay == 0 || m.VDisplay == 0 {
		return 1, 1
	}
	ppmmW := (uint64(m.HDisplay) << 16) / uint64(mmWidth)
	ppmmH := (uint64(m.VDisplay) << 16) / uint64(mmHeight)
	if ppmmH == 0 {
		return 1, 1
	}

	factorW := 1
	if r := int(math.Round(float64(ppmmW) / float64(ppmmH))); r > 1 {
		factorW = r
	}
	factorH := 1
	if ppmmW != 0 {
		if r := int(math.Round(float64(ppmmH) / float64(ppmmW))); r > 1 {
			factorH = r
		}
	}
	return factorW, factorH
}

// findClosestRefresh is component C's find_closest_refresh: the mode
// minimizing |refresh(m) - targetHz|, ties resolved to the earliest index.
func findClosestRefresh(p pipe, targetHz int) (modeInfo, int) {
	best, bestIdx := 0, 0
	bestDelta := math.Inf(1)
	for i, m := range p.Modes {
		delta := math.Abs(m.refreshHz() - float64(targetHz))
		if delta < bestDelta {
			bestDelta = delta
			best = i
			bestIdx = i
		}
	}
	return p.Modes[best], bestIdx
}

// videoModes is spec §3's "Video-mode list": a deduplicated,
// descending-by-pixel-count list of (w,h) synthesized from every pipe's
// modes, plus an aspect-corrected twin whenever a pipe's factors != 1.
func videoModes(pipes []pipe) []Mode {
	seen := make(map[[2]int]bool)
	var out []Mode
	add := func(w, h int, aspect bool) {
		key := [2]int{w, h}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Mode{W: w, H: h, Aspect: aspect})
	}

	for _, p := range pipes {
		for _, m := range p.Modes {
			w, h := int(m.HDisplay), int(m.VDisplay)
			add(w, h, false)
			if p.FactorW != 1 || p.FactorH != 1 {
				add(w/p.FactorW, h/p.FactorH, true)
			}
		}
	}

	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].W*out[j-1].H < out[j].W*out[j].H {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
