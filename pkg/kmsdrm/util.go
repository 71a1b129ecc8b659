package kmsdrm

import "unsafe"

// structToBytes views a fixed-layout C-ABI struct as its raw bytes, for
// handing mode/gamma data to DRM_IOCTL_MODE_CREATEPROPBLOB which expects an
// opaque byte blob matching a kernel struct's memory layout exactly.
func structToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
