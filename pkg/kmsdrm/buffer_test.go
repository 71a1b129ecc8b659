package kmsdrm

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHooks() (*ioHooks, *int) {
	calls := 0
	h := &ioHooks{
		createDumb: func(_ *os.File, w, hgt, bpp uint32) (drmModeCreateDumb, error) {
			calls++
			return drmModeCreateDumb{Width: w, Height: hgt, Bpp: bpp, Handle: 7, Pitch: w * bpp / 8, Size: uint64(w * hgt * bpp / 8)}, nil
		},
		addFB2: func(_ *os.File, w, hgt, format uint32, handles, pitches, offsets [4]uint32) (uint32, error) {
			calls++
			return 42, nil
		},
		mapDumb: func(_ *os.File, handle uint32) (uint64, error) {
			calls++
			return 0, nil
		},
		destroyDumb: func(_ *os.File, handle uint32) error { calls++; return nil },
		rmFB:        func(_ *os.File, fbID uint32) error { calls++; return nil },
		mmap: func(fd int, offset int64, size int) ([]byte, error) {
			calls++
			return make([]byte, size), nil
		},
		munmap: func(b []byte) error { calls++; return nil },
	}
	return h, &calls
}

func TestCreateBufferHappyPath(t *testing.T) {
	h, _ := fakeHooks()
	slot, err := createBuffer(h, nil, colorRGB565, 640, 480, nil)
	require.NoError(t, err)
	assert.True(t, slot.Created)
	assert.Equal(t, uint32(7), slot.Handle)
	assert.Equal(t, uint32(42), slot.FBID)
	assert.Len(t, slot.Mapped, int(slot.Size))
}

func TestCreateBufferUnwindsOnAddFB2Failure(t *testing.T) {
	h, calls := fakeHooks()
	h.addFB2 = func(_ *os.File, w, hgt, format uint32, handles, pitches, offsets [4]uint32) (uint32, error) {
		return 0, fmt.Errorf("EINVAL")
	}
	destroyed := false
	h.destroyDumb = func(_ *os.File, handle uint32) error { destroyed = true; return nil }

	_, err := createBuffer(h, nil, colorRGB565, 640, 480, nil)
	require.Error(t, err)
	assert.IsType(t, &KernelError{}, err)
	assert.True(t, destroyed)
	_ = calls
}

func TestCreateBufferUnwindsOnMmapFailure(t *testing.T) {
	h, _ := fakeHooks()
	var rmFBCalled, destroyCalled bool
	h.rmFB = func(_ *os.File, fbID uint32) error { rmFBCalled = true; return nil }
	h.destroyDumb = func(_ *os.File, handle uint32) error { destroyCalled = true; return nil }
	h.mmap = func(fd int, offset int64, size int) ([]byte, error) { return nil, fmt.Errorf("ENOMEM") }

	_, err := createBuffer(h, nil, colorXRGB8888, 320, 240, nil)
	require.Error(t, err)
	assert.True(t, rmFBCalled)
	assert.True(t, destroyCalled)
}

func TestDestroyBufferIsNoOpForUnusedSlot(t *testing.T) {
	h, calls := fakeHooks()
	var slot bufferSlot
	destroyBuffer(h, nil, &slot)
	assert.Equal(t, 0, *calls)
}

func TestClearAllBuffersResetsEverySlot(t *testing.T) {
	h, _ := fakeHooks()
	slots := make([]bufferSlot, 3)
	for i := range slots {
		s, err := createBuffer(h, nil, colorRGB565, 320, 240, nil)
		require.NoError(t, err)
		slots[i] = s
	}
	clearAllBuffers(h, nil, slots)
	for _, s := range slots {
		assert.False(t, s.Created)
	}
}
