//go:build !linux

package kmsdrm

import (
	"fmt"
	"os"
)

// This backend only runs against a real Linux KMS/DRM device node; these
// stubs let the package (and its pure-Go tests that don't touch hardware)
// build on other GOOS values, matching the teacher's ioctl_other.go.

func openDRM(path string) (*os.File, error) {
	return nil, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getDumbBufferCap(f *os.File) (bool, error) {
	return false, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getResources(f *os.File) (crtcs, connectors, encoders []uint32, err error) {
	return nil, nil, nil, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getPlaneResources(f *os.File) ([]uint32, error) {
	return nil, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getPlane(f *os.File, id uint32) (drmModeGetPlane, error) {
	return drmModeGetPlane{}, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getEncoder(f *os.File, id uint32) (drmModeGetEncoder, error) {
	return drmModeGetEncoder{}, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getConnector(f *os.File, id uint32) (*rawConnector, error) {
	return nil, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func objGetProperties(f *os.File, objID, objType uint32) ([]uint32, []uint64, error) {
	return nil, nil, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func getPropertyName(f *os.File, propID uint32) (string, error) {
	return "", fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func createDumb(f *os.File, w, h, bpp uint32) (drmModeCreateDumb, error) {
	return drmModeCreateDumb{}, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func destroyDumb(f *os.File, handle uint32) error {
	return fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func mapDumb(f *os.File, handle uint32) (uint64, error) {
	return 0, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func addFB2(f *os.File, w, h, format uint32, handles, pitches, offsets [4]uint32) (uint32, error) {
	return 0, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func rmFB(f *os.File, fbID uint32) error {
	return fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func createPropBlob(f *os.File, data []byte) (uint32, error) {
	return 0, fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func destroyPropBlob(f *os.File, id uint32) error {
	return fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func atomicCommit(f *os.File, req *atomicRequest, flags uint32) error {
	return fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func setMaster(f *os.File) error {
	return fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}

func dropMaster(f *os.File) error {
	return fmt.Errorf("kmsdrm: DRM ioctls only supported on Linux")
}
