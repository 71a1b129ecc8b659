package kmsdrm

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// propNameTable assigns deterministic property ids shared across every
// fake object in these tests; acquire()/lookupID() only ever care about
// (objID, name) -> id stability, never about the id's numeric value.
var propNameTable = map[string]uint32{
	"type": 1, "FB_ID": 2, "CRTC_ID": 3,
	"SRC_X": 4, "SRC_Y": 5, "SRC_W": 6, "SRC_H": 7,
	"CRTC_X": 8, "CRTC_Y": 9, "CRTC_W": 10, "CRTC_H": 11,
	"FB_DAMAGE_CLIPS": 12, "MODE_ID": 13, "ACTIVE": 14, "GAMMA_LUT": 15,
}

var propIDNames = func() map[uint32]string {
	m := make(map[uint32]string, len(propNameTable))
	for n, id := range propNameTable {
		m[id] = n
	}
	return m
}()

// objProps enumerates which property names a fake plane/CRTC/connector
// reports, and any non-zero seed values (e.g. a plane's "type").
func newFakePropertyCache(objProps map[uint32][]string, seedValues map[[2]uint32]uint64) *propertyCache {
	c := newPropertyCache(nil)
	c.getProps = func(_ *os.File, objID, objType uint32) ([]uint32, []uint64, error) {
		names := objProps[objID]
		ids := make([]uint32, len(names))
		values := make([]uint64, len(names))
		for i, n := range names {
			ids[i] = propNameTable[n]
			values[i] = seedValues[[2]uint32{objID, ids[i]}]
		}
		return ids, values, nil
	}
	c.getPropName = func(_ *os.File, id uint32) (string, error) {
		return propIDNames[id], nil
	}
	return c
}

func fakePresentHooks() *ioHooks {
	nextHandle := uint32(100)
	nextFB := uint32(200)
	nextBlob := uint32(300)
	return &ioHooks{
		createDumb: func(_ *os.File, w, hgt, bpp uint32) (drmModeCreateDumb, error) {
			nextHandle++
			return drmModeCreateDumb{Width: w, Height: hgt, Bpp: bpp, Handle: nextHandle, Pitch: w * bpp / 8, Size: uint64(w * hgt * bpp / 8)}, nil
		},
		destroyDumb: func(_ *os.File, handle uint32) error { return nil },
		mapDumb:     func(_ *os.File, handle uint32) (uint64, error) { return 0, nil },
		addFB2: func(_ *os.File, w, hgt, format uint32, handles, pitches, offsets [4]uint32) (uint32, error) {
			nextFB++
			return nextFB, nil
		},
		rmFB: func(_ *os.File, fbID uint32) error { return nil },
		createPropBlob: func(_ *os.File, data []byte) (uint32, error) {
			nextBlob++
			return nextBlob, nil
		},
		destroyPropBlob: func(_ *os.File, id uint32) error { return nil },
		atomicCommit:    func(_ *os.File, req *atomicRequest, flags uint32) error { return nil },
		mmap: func(fd int, offset int64, size int) ([]byte, error) {
			return make([]byte, size), nil
		},
		munmap: func(b []byte) error { return nil },
	}
}

func mkTestPipe(plane, crtc, enc, conn uint32, w, h uint16) pipe {
	return pipe{
		Plane: plane, CRTC: crtc, Encoder: enc, Connector: conn,
		Modes:   []modeInfo{{HDisplay: w, VDisplay: h, HTotal: w + 100, VTotal: h + 20, Clock: 25000, Name: "test"}},
		FactorW: 1, FactorH: 1,
	}
}

func newTestDeviceWithPipes(pipes []pipe, planeHasDamage bool) *Device {
	d := New(Config{})
	d.hooks = fakePresentHooks()

	objProps := map[uint32][]string{}
	for _, p := range pipes {
		planeProps := []string{"type", "FB_ID", "CRTC_ID", "SRC_X", "SRC_Y", "SRC_W", "SRC_H", "CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H"}
		if planeHasDamage {
			planeProps = append(planeProps, "FB_DAMAGE_CLIPS")
		}
		objProps[p.Plane] = planeProps
		objProps[p.CRTC] = []string{"MODE_ID", "ACTIVE", "GAMMA_LUT"}
		objProps[p.Connector] = []string{"CRTC_ID"}
	}
	d.props = newFakePropertyCache(objProps, nil)
	d.pipes = pipes

	// Mirrors VideoInit's own initial gamma blob publish, since these tests
	// construct a *Device directly rather than going through VideoInit.
	blobID, err := d.hooks.createPropBlob(d.file, gammaLUTBytes(&d.palette))
	if err != nil {
		panic(err)
	}
	d.gammaBlobID = blobID

	return d
}

// propValue reports whether req carries a value for (objID, propName),
// resolving the name through propNameTable.
func propValue(req *atomicRequest, objID uint32, propName string) (uint64, bool) {
	propID := propNameTable[propName]
	ids := req.propIDs[objID]
	for i, id := range ids {
		if id == propID {
			return req.values[objID][i], true
		}
	}
	return 0, false
}

func TestSetVideoModeTripleBufferStartsWorkerBlockedInWait(t *testing.T) {
	p := mkTestPipe(1, 10, 20, 30, 640, 480)
	d := newTestDeviceWithPipes([]pipe{p}, false)

	surf, err := d.SetVideoMode(320, 240, 16, FlagTripleBuf)
	require.NoError(t, err)
	require.NotNil(t, surf)

	assert.Equal(t, 3, d.nBuf)
	assert.True(t, d.workerRunning)
	for _, s := range d.slots {
		assert.True(t, s.Created)
	}

	// The worker commits once per flip it handles; waiting for each commit
	// keeps the flips and the worker's rotations in lockstep.
	committed := make(chan struct{}, 3)
	d.hooks.atomicCommit = func(_ *os.File, req *atomicRequest, flags uint32) error {
		committed <- struct{}{}
		return nil
	}

	front0 := d.front
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		require.NoError(t, d.FlipHWSurface())
		<-committed
		d.mu.Lock()
		seen[d.front] = true
		d.mu.Unlock()
	}
	assert.Len(t, seen, 3, "front index should visit every slot once across 3 flips")
	assert.Equal(t, front0, d.front, "front index should be back at its start after 3 flips")

	d.VideoQuit()
	assert.False(t, d.workerRunning)
}

func TestSetVideoMode8bppAttachesGammaLUT(t *testing.T) {
	p := mkTestPipe(1, 10, 20, 30, 640, 480)
	d := newTestDeviceWithPipes([]pipe{p}, false)
	wantBlobID := d.gammaBlobID
	require.NotZero(t, wantBlobID, "harness should have published the initial gamma blob, as VideoInit does")

	var committed *atomicRequest
	d.hooks.atomicCommit = func(_ *os.File, req *atomicRequest, flags uint32) error {
		committed = req
		return nil
	}

	_, err := d.SetVideoMode(320, 240, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), d.colorDef.Bpp)

	require.NotNil(t, committed)
	got, ok := propValue(committed, p.CRTC, "GAMMA_LUT")
	require.True(t, ok, "commit must carry a GAMMA_LUT property at 8bpp")
	assert.Equal(t, uint64(wantBlobID), got)
}

func TestSetVideoModeRetriesNextPipeOnFailure(t *testing.T) {
	bad := mkTestPipe(1, 10, 20, 30, 640, 480)
	good := mkTestPipe(2, 11, 21, 31, 800, 600)
	d := newTestDeviceWithPipes([]pipe{bad, good}, false)

	calls := 0
	d.hooks.atomicCommit = func(_ *os.File, req *atomicRequest, flags uint32) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("EINVAL")
		}
		return nil
	}

	// Count mode blobs only: VideoQuit also destroys the gamma blob the
	// harness published, which is not what these assertions are about.
	gammaBlobID := d.gammaBlobID
	blobsDestroyed := 0
	d.hooks.destroyPropBlob = func(_ *os.File, id uint32) error {
		if id != gammaBlobID {
			blobsDestroyed++
		}
		return nil
	}

	surf, err := d.SetVideoMode(320, 240, 16, 0)
	require.NoError(t, err)
	require.NotNil(t, surf)
	assert.Equal(t, uint32(good.CRTC), d.activePipe.CRTC)
	assert.Equal(t, 1, blobsDestroyed, "the failed pipe's mode blob must be freed exactly once")

	d.VideoQuit()
	assert.Equal(t, 2, blobsDestroyed, "VideoQuit frees the surviving pipe's mode blob")
}

func TestUpdateRectsNoOpWithoutDamageClipsSupport(t *testing.T) {
	p := mkTestPipe(1, 10, 20, 30, 640, 480)
	d := newTestDeviceWithPipes([]pipe{p}, false)
	_, err := d.SetVideoMode(320, 240, 16, 0)
	require.NoError(t, err)

	committed := false
	d.hooks.atomicCommit = func(_ *os.File, req *atomicRequest, flags uint32) error { committed = true; return nil }
	d.UpdateRects([]Rect{{X: 0, Y: 0, W: 10, H: 10}})
	assert.False(t, committed)
}

func TestUpdateRectsCommitsWhenSupported(t *testing.T) {
	p := mkTestPipe(1, 10, 20, 30, 640, 480)
	d := newTestDeviceWithPipes([]pipe{p}, true)
	_, err := d.SetVideoMode(320, 240, 16, 0)
	require.NoError(t, err)

	var gotFlags uint32
	d.hooks.atomicCommit = func(_ *os.File, req *atomicRequest, flags uint32) error { gotFlags = flags; return nil }
	d.UpdateRects([]Rect{{X: 0, Y: 0, W: 10, H: 10}})
	assert.Equal(t, uint32(drmModeAtomicFlagNonblock), gotFlags)
}

func TestSetColorsPublishesAndSwapsBlob(t *testing.T) {
	p := mkTestPipe(1, 10, 20, 30, 640, 480)
	d := newTestDeviceWithPipes([]pipe{p}, false)
	_, err := d.SetVideoMode(320, 240, 8, 0)
	require.NoError(t, err)

	first := d.gammaBlobID
	require.NoError(t, d.SetColors(0, 2, []Color{{R: 1, G: 2, B: 3}, {R: 4, G: 5, B: 6}}))
	assert.NotEqual(t, first, d.gammaBlobID)
	assert.Equal(t, Color{R: 1, G: 2, B: 3}, d.palette[0])
}

func TestFlipUnarmedReturnsErrUnarmed(t *testing.T) {
	d := New(Config{})
	assert.ErrorIs(t, d.FlipHWSurface(), ErrUnarmed)
}
