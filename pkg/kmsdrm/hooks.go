package kmsdrm

import (
	"os"

	"golang.org/x/sys/unix"
)

// ioHooks is the single seam every engine in this package calls the kernel
// through. Production code gets defaultHooks(), wired straight to the real
// ioctls in ioctl_linux.go; tests substitute fakes so the present engine,
// buffer engine and modeset retry loop can be exercised without a DRM
// device, per spec's testable-properties section (no hardware in CI).
type ioHooks struct {
	createDumb       func(*os.File, uint32, uint32, uint32) (drmModeCreateDumb, error)
	destroyDumb      func(*os.File, uint32) error
	mapDumb          func(*os.File, uint32) (uint64, error)
	addFB2           func(f *os.File, w, h, format uint32, handles, pitches, offsets [4]uint32) (uint32, error)
	rmFB             func(*os.File, uint32) error
	createPropBlob   func(*os.File, []byte) (uint32, error)
	destroyPropBlob  func(*os.File, uint32) error
	atomicCommit     func(*os.File, *atomicRequest, uint32) error
	mmap             func(fd int, offset int64, size int) ([]byte, error)
	munmap           func([]byte) error
}

func defaultHooks() *ioHooks {
	return &ioHooks{
		createDumb:      createDumb,
		destroyDumb:     destroyDumb,
		mapDumb:         mapDumb,
		addFB2:          addFB2,
		rmFB:            rmFB,
		createPropBlob:  createPropBlob,
		destroyPropBlob: destroyPropBlob,
		atomicCommit:    atomicCommit,
		mmap: func(fd int, offset int64, size int) ([]byte, error) {
			return unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		},
		munmap: unix.Munmap,
	}
}
