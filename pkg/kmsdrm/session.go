package kmsdrm

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// sessionHandle wraps either a plain *os.File (direct open()) or a
// logind-leased file descriptor; both satisfy the same Fd()/Close()
// contract so the rest of the backend never branches on how the fd was
// acquired (SPEC_FULL.md §3's "Session handle").
type sessionHandle interface {
	Fd() uintptr
	Close() error
}

type directHandle struct{ f *os.File }

func (h directHandle) Fd() uintptr { return h.f.Fd() }
func (h directHandle) Close() error {
	dropMaster(h.f)
	return h.f.Close()
}

// logindHandle is a device fd leased through systemd-logind; Close()
// releases the lease via Session.ReleaseDevice instead of a bare close,
// since logind tracks the lease by major/minor on its side too.
type logindHandle struct {
	fd      uintptr
	session dbus.BusObject
	major   uint32
	minor   uint32
}

func (h logindHandle) Fd() uintptr { return h.fd }
func (h logindHandle) Close() error {
	unix.Close(int(h.fd))
	return h.session.Call("org.freedesktop.login1.Session.ReleaseDevice", 0, h.major, h.minor).Err
}

// sessionBridge is component H: a systemd-logind D-Bus client that
// acquires device fds without root, grounded on cmd/logind-stub/main.go's
// org.freedesktop.login1 method set — that file implements the *server*
// side for a test double; this is the real *client* calling the same
// methods against a real logind.
type sessionBridge struct {
	conn *dbus.Conn
}

// newSessionBridge connects to the system bus. It returns a nil bridge and
// no error when KMSDRM_USE_LOGIND isn't set, which device.go interprets as
// "use direct open()" — logind is a convenience, never a hard requirement.
func newSessionBridge() (*sessionBridge, error) {
	if os.Getenv("KMSDRM_USE_LOGIND") != "1" {
		return nil, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("kmsdrm: connect system bus: %w", err)
	}
	return &sessionBridge{conn: conn}, nil
}

// Acquire takes control of the caller's logind session (idempotent if
// already held) and leases the device at path via TakeDevice, keyed by its
// major/minor device number rather than its path or subsystem, so the same
// handle type covers both the DRM node and each evdev node (§4.H).
func (b *sessionBridge) Acquire(path string) (sessionHandle, error) {
	manager := b.conn.Object("org.freedesktop.login1", dbus.ObjectPath("/org/freedesktop/login1"))

	var sessionPath dbus.ObjectPath
	if err := manager.Call("org.freedesktop.login1.Manager.GetSessionByPID", 0, uint32(os.Getpid())).Store(&sessionPath); err != nil {
		return nil, fmt.Errorf("kmsdrm: GetSessionByPID: %w", err)
	}
	session := b.conn.Object("org.freedesktop.login1", sessionPath)

	if call := session.Call("org.freedesktop.login1.Session.TakeControl", 0, false); call.Err != nil {
		return nil, fmt.Errorf("kmsdrm: TakeControl: %w", call.Err)
	}

	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return nil, fmt.Errorf("kmsdrm: stat %s: %w", path, err)
	}
	major := unix.Major(uint64(stat.Rdev))
	minor := unix.Minor(uint64(stat.Rdev))

	var fd dbus.UnixFD
	var paused bool
	call := session.Call("org.freedesktop.login1.Session.TakeDevice", 0, major, minor)
	if call.Err != nil {
		return nil, fmt.Errorf("kmsdrm: TakeDevice(%d,%d): %w", major, minor, call.Err)
	}
	if err := call.Store(&fd, &paused); err != nil {
		return nil, fmt.Errorf("kmsdrm: decode TakeDevice reply: %w", err)
	}

	return logindHandle{fd: uintptr(fd), session: session, major: major, minor: minor}, nil
}

// Close drops the D-Bus connection; individual device handles release
// themselves independently via logindHandle.Close.
func (b *sessionBridge) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
