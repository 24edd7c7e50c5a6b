// Command antimony-monitor is the out-of-sandbox process that services a
// SECCOMP_RET_USER_NOTIF listener fd handed over from the sandboxed parent.
// It is spawned by the driver before the sandbox itself forks (spec.md
// §4.11's handoff choreography) and receives the fd over a unix socket via
// SCM_RIGHTS.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/antimony-sandbox/antimony/internal/driver"
	"github.com/antimony-sandbox/antimony/internal/monitor"
	"github.com/antimony-sandbox/antimony/internal/seccompdb"
	"github.com/antimony-sandbox/antimony/pkg/unixsocket"
)

func main() {
	socketFd := flag.Int("socket-fd", -1, "fd of the unix socket the driver uses to hand off the notify fd")
	mode := flag.String("mode", "permissive", "permissive or notifying")
	dbPath := flag.String("db", "", "seccompdb to record AllowAndRecord decisions against")
	profileName := flag.String("profile", "", "profile name new decisions are recorded under")
	binaries := flag.String("binaries", "", "comma-separated list of the sandbox's resolved binary paths")
	verbose := flag.Bool("verbose", false, "log every decision")
	flag.Parse()

	if *socketFd < 0 {
		fmt.Fprintln(os.Stderr, "antimony-monitor: -socket-fd is required")
		os.Exit(2)
	}

	m := monitor.Permissive
	if *mode == "notifying" {
		m = monitor.Notifying
	}

	var binaryList []string
	if *binaries != "" {
		binaryList = strings.Split(*binaries, ",")
	}

	if err := run(*socketFd, m, *dbPath, *profileName, binaryList, *verbose); err != nil {
		log.Fatalf("antimony-monitor: %v", err)
	}
}

func run(socketFd int, mode monitor.Mode, dbPath, profileName string, binaries []string, verbose bool) error {
	sock, err := unixsocket.NewSocket(socketFd)
	if err != nil {
		return fmt.Errorf("open handoff socket: %w", err)
	}
	defer sock.Close()

	buf := make([]byte, 1)
	_, msg, err := sock.RecvMsg(buf)
	if err != nil {
		return fmt.Errorf("receive notify fd: %w", err)
	}
	if len(msg.Fds) != 1 {
		return fmt.Errorf("expected exactly one fd in handoff, got %d", len(msg.Fds))
	}
	notifyFd := msg.Fds[0]

	var recorder monitor.Recorder
	if dbPath != "" {
		db, err := seccompdb.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open seccompdb: %w", err)
		}
		defer db.Close()
		recorder = driver.NewDBRecorder(db, profileName, binaries)
	}

	handler := &monitor.DefaultHandler{
		Mode:     mode,
		Policy:   &monitor.TablePolicy{},
		Recorder: recorder,
		Verbose:  verbose,
	}

	kill := func(pid int) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
		_ = syscall.Kill(-pid, syscall.SIGTERM)
	}

	if err := monitor.Serve(notifyFd, handler, kill); err != nil && err != monitor.ErrListenerClosed {
		return err
	}
	return nil
}
