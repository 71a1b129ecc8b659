// kmsdrm-fake-logind is a minimal systemd-logind D-Bus stand-in for
// exercising component H's session bridge (pkg/kmsdrm/session.go) without a
// real logind on the test machine. It implements just enough of
// org.freedesktop.login1 for sessionBridge.Acquire: GetSessionByPID,
// TakeControl, TakeDevice (opens /dev/char/MAJOR:MINOR directly and hands
// the fd back over the bus), and ReleaseDevice.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

var logger *slog.Logger

// loginManager handles org.freedesktop.login1.Manager.
type loginManager struct{}

func (m *loginManager) GetSessionByPID(pid uint32) (dbus.ObjectPath, *dbus.Error) {
	logger.Info("GetSessionByPID", "pid", pid)
	return "/org/freedesktop/login1/session/auto", nil
}

// loginSession handles org.freedesktop.login1.Session. Unlike a real
// logind it has no VT to arbitrate, so TakeControl/ReleaseControl are no-ops and
// TakeDevice just opens the device node by major/minor and duplicates the
// fd across the bus.
type loginSession struct{}

func (s *loginSession) TakeControl(force bool) *dbus.Error {
	logger.Info("TakeControl", "force", force)
	return nil
}

func (s *loginSession) ReleaseControl() *dbus.Error {
	logger.Info("ReleaseControl")
	return nil
}

func (s *loginSession) TakeDevice(major, minor uint32) (dbus.UnixFD, bool, *dbus.Error) {
	devPath := fmt.Sprintf("/dev/char/%d:%d", major, minor)
	fd, err := syscall.Open(devPath, syscall.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		fd, err = syscall.Open(devPath, syscall.O_RDONLY|syscall.O_CLOEXEC, 0)
	}
	if err != nil {
		logger.Warn("TakeDevice: open failed", "path", devPath, "err", err)
		return 0, false, dbus.MakeFailedError(err)
	}
	logger.Info("TakeDevice", "path", devPath, "fd", fd)
	return dbus.UnixFD(fd), false, nil
}

func (s *loginSession) ReleaseDevice(major, minor uint32) *dbus.Error {
	logger.Info("ReleaseDevice", "major", major, "minor", minor)
	return nil
}

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Error("connect system bus", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	reply, err := conn.RequestName("org.freedesktop.login1", dbus.NameFlagDoNotQueue|dbus.NameFlagReplaceExisting)
	if err != nil {
		logger.Error("request name", "err", err)
		os.Exit(1)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		logger.Error("bus name already taken", "reply", reply)
		os.Exit(1)
	}

	manager := &loginManager{}
	conn.Export(manager, "/org/freedesktop/login1", "org.freedesktop.login1.Manager")
	conn.Export(introspect.NewIntrospectable(&introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: "org.freedesktop.login1.Manager"},
		},
	}), "/org/freedesktop/login1", "org.freedesktop.DBus.Introspectable")

	sessionPath := dbus.ObjectPath("/org/freedesktop/login1/session/auto")
	conn.Export(&loginSession{}, sessionPath, "org.freedesktop.login1.Session")

	logger.Info("kmsdrm-fake-logind ready", "session", sessionPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}
