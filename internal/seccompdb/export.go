package seccompdb

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

func writeExport(path string, entries []SyscallEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%d %s\n", e.Number, e.Arch); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readExport(path string) ([]SyscallEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []SyscallEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("seccompdb: malformed export line %q", line)
		}
		number, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("seccompdb: malformed syscall number %q: %w", fields[0], err)
		}
		entries = append(entries, SyscallEntry{Number: number, Arch: fields[1]})
	}
	return entries, scanner.Err()
}
