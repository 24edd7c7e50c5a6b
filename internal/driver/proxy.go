package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/antimony-sandbox/antimony/internal/envconf"
	"github.com/antimony-sandbox/antimony/internal/ipcproxy"
	"github.com/antimony-sandbox/antimony/internal/privilege"
	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/internal/which"
)

// proxyHandle is a running xdg-dbus-proxy instance.
type proxyHandle struct {
	pid        int
	socketPath string
}

func ipcEnabled(ipc *profile.Ipc) bool {
	return ipc != nil && (ipc.Disable == nil || !*ipc.Disable)
}

// sessionBusAddress extracts the socket path xdg-dbus-proxy should dial from
// $DBUS_SESSION_BUS_ADDRESS (format "unix:path=/run/user/1000/bus[,guid=...]"),
// falling back to the XDG runtime dir's conventional "bus" socket.
func sessionBusAddress() string {
	raw := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimPrefix(part, "unix:")
		if path, ok := strings.CutPrefix(part, "path="); ok {
			return path
		}
	}
	return filepath.Join(envconf.RuntimeDir(), "bus")
}

// launchProxy spawns xdg-dbus-proxy under the Real user and waits for its
// output socket to appear, per spec.md §4.9.
func launchProxy(p *profile.Profile, profileName, hash string, waitTimeout time.Duration) (*proxyHandle, error) {
	proxyBin, err := which.Which("xdg-dbus-proxy")
	if err != nil {
		return nil, fmt.Errorf("locate xdg-dbus-proxy: %w", err)
	}

	shortHash := hash
	if len(shortHash) > 12 {
		shortHash = shortHash[:12]
	}
	outSocket := filepath.Join(envconf.RuntimeDir(), fmt.Sprintf("antimony-%s-%s-bus", profileName, shortHash))
	const systemBusSocket = "/run/dbus/system_bus_socket"

	args := ipcproxy.Args(*p.Ipc, sessionBusAddress(), systemBusSocket, outSocket)

	b := spawner.New(proxyBin).Args(args...)
	if err := b.User(privilege.Real); err != nil {
		return nil, fmt.Errorf("resolve real identity for xdg-dbus-proxy: %w", err)
	}
	pid, err := b.Spawn(os.Environ(), nil)
	if err != nil {
		return nil, fmt.Errorf("spawn xdg-dbus-proxy: %w", err)
	}

	if err := ipcproxy.Wait(outSocket, waitTimeout); err != nil {
		_ = syscall.Kill(pid, syscall.SIGTERM)
		return nil, fmt.Errorf("wait for proxy socket: %w", err)
	}

	return &proxyHandle{pid: pid, socketPath: outSocket}, nil
}

func (h *proxyHandle) teardown() {
	if h == nil {
		return
	}
	_ = syscall.Kill(h.pid, syscall.SIGTERM)
	var ws syscall.WaitStatus
	_, _ = syscall.Wait4(h.pid, &ws, 0, nil)
	_ = os.Remove(h.socketPath)
}
