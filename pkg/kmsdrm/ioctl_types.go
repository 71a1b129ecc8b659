package kmsdrm

// The wire structs below are referenced from both ioctl_linux.go (the real
// ioctl marshaling) and ioctl_other.go (the non-Linux stub signatures), plus
// cross-platform callers like pipe.go, modeset.go and hooks.go — so they
// live in a file with no build tag rather than duplicated on both sides of
// the split.

type drmModeGetPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

type drmModeGetEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// drmModeModeInfo mirrors struct drm_mode_modeinfo exactly; reused both as
// the wire struct for connector mode arrays and (via toModeInfo) as the
// source for the package's own Mode/refresh computations.
type drmModeModeInfo struct {
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
	Name       [32]byte
}

type drmModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

// rawConnector holds a connector's fixed fields plus its decoded mode list;
// getConnector performs the standard two-call (count, then fill) dance.
type rawConnector struct {
	drmModeGetConnector
	Modes []drmModeModeInfo
}

type drmModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// Object-type and flag constants below are pure ABI values (not ioctl
// numbers), but pipe.go, modeset.go, present.go and device.go all
// reference them with no build tag, so they live here alongside the wire
// structs rather than in ioctl_linux.go.
const (
	drmModeObjectCRTC      = 0xcccccccc
	drmModeObjectConnector = 0xc0c0c0c0
	drmModeObjectEncoder   = 0xe0e0e0e0
	drmModeObjectPlane     = 0xeeeeeeee
	drmModeObjectBlob      = 0xbbbbbbbb
)

const (
	drmModeConnected = 1
	planeTypeOverlay = 0
	planeTypePrimary = 1
)

const (
	drmModeAtomicFlagAllowModeset = 0x0400
	drmModeAtomicFlagNonblock     = 0x0200
	drmModePageFlipEvent          = 0x01
)
