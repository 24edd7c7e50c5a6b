// Command antimony is the thin entrypoint wiring the one in-scope CLI
// surface — "run <profile>" — into internal/driver. The rest of the CLI
// (create, edit, export, import, integrate, package, stat, trace) is an
// external collaborator's interface, out of scope here (spec.md §1/§6).
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/antimony-sandbox/antimony/internal/driver"
	"github.com/antimony-sandbox/antimony/internal/envconf"
	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/seccompdb"
	"github.com/antimony-sandbox/antimony/internal/which"
)

// Exit codes, per spec.md §6: 0 success; child's own exit code passed
// through on a normal run; the bands below are reserved for driver faults
// so scripts can tell "the sandboxed program failed" from "Antimony itself
// couldn't launch it".
const (
	exitSuccess            = 0
	exitProfileNotFound    = 64
	exitProfileInvalid     = 65
	exitFeatureUnresolved  = 66
	exitFabricateFailed    = 67
	exitBwrapFailed        = 68
	exitSeccompLoadFailed  = 69
	exitMonitorFailed      = 70
	exitUnknownDriverFault = 71
)

func main() {
	flagSet := pflag.NewFlagSet("antimony", pflag.ContinueOnError)
	configuration := flagSet.StringP("configuration", "c", "", "named configuration overlay to apply")
	verbose := flagSet.BoolP("verbose", "v", false, "log driver lifecycle events")
	dbPath := flagSet.String("db", "", "seccompdb path (defaults to the per-user database)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	args := flagSet.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s run <profile> [-- args...]\n", os.Args[0])
		os.Exit(2)
	}
	if args[0] != "run" {
		fmt.Fprintf(os.Stderr, "antimony: unsupported subcommand %q (only \"run\" is implemented)\n", args[0])
		os.Exit(2)
	}
	rest := args[1:]
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "usage: antimony run <profile> [-- args...]")
		os.Exit(2)
	}
	profileName, childArgs := rest[0], rest[1:]

	code, err := run(profileName, *configuration, *dbPath, *verbose, childArgs)
	if err != nil {
		log.Printf("antimony: %v", err)
	}
	os.Exit(code)
}

func run(profileName, configuration, dbPath string, verbose bool, childArgs []string) (int, error) {
	if dbPath == "" {
		dbPath = filepath.Join(envconf.UserConfigDir(), "seccomp.db")
	}
	db, err := seccompdb.Open(dbPath)
	if err != nil {
		return exitUnknownDriverFault, fmt.Errorf("open seccompdb: %w", err)
	}
	defer db.Close()

	features := profile.FileFeatureStore{
		UserDir:   filepath.Join(envconf.UserConfigDir(), "features"),
		SystemDir: filepath.Join(envconf.AntimonyHome(), "features"),
	}

	d := driver.New(features, db)
	d.DBPath = dbPath
	d.Verbose = verbose

	p, _, err := profile.Resolve(profileName, configuration, features)
	if err != nil {
		return classify(err), err
	}

	targetPath := profileName
	if p.Path != nil {
		targetPath = *p.Path
	}
	if resolved, err := which.Which(targetPath); err == nil {
		targetPath = resolved
	} else if _, statErr := os.Stat(targetPath); statErr != nil {
		return exitProfileInvalid, fmt.Errorf("resolve target binary %q: %w", targetPath, err)
	}

	h, err := d.Run(profileName, configuration, targetPath, childArgs)
	if err != nil {
		return classify(err), err
	}

	exitStatus, err := h.Wait()
	if err != nil {
		return exitUnknownDriverFault, fmt.Errorf("wait for sandboxed process: %w", err)
	}
	return exitStatus, nil
}

// classify maps a driver/profile failure to spec.md §6's exit-code
// taxonomy by inspecting typed errors, never by matching error text.
func classify(err error) int {
	var notFound *profile.ErrNotFound
	if errors.As(err, &notFound) {
		return exitProfileNotFound
	}

	var profErr *profile.Error
	if errors.As(err, &profErr) {
		if profErr.Op == "feature" {
			return exitFeatureUnresolved
		}
		return exitProfileInvalid
	}

	var drvErr *driver.Error
	if errors.As(err, &drvErr) {
		switch drvErr.Stage {
		case driver.StageResolve:
			return exitProfileInvalid
		case driver.StageDependencies, driver.StageFabricate, driver.StageHome, driver.StageStage:
			return exitFabricateFailed
		case driver.StageSeccomp:
			return exitSeccompLoadFailed
		case driver.StageMonitor, driver.StageHandoff:
			return exitMonitorFailed
		case driver.StageBwrap:
			return exitBwrapFailed
		}
	}

	return exitUnknownDriverFault
}
