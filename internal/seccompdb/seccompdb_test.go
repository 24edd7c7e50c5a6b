package seccompdb

import (
	"os"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndPolicyUnionsAcrossBinaries(t *testing.T) {
	db := openTest(t)

	if err := db.Insert("demo", "/usr/bin/demo", 1, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert("demo", "/usr/lib/demo/helper", 2, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// Duplicate insert must not produce a duplicate policy row.
	if err := db.Insert("demo", "/usr/bin/demo", 1, "x86_64"); err != nil {
		t.Fatalf("Insert (dup): %v", err)
	}

	policy, err := db.Policy("demo")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if len(policy) != 2 {
		t.Fatalf("Policy = %v, want 2 entries", policy)
	}
}

func TestPolicyIsolatedPerProfile(t *testing.T) {
	db := openTest(t)
	if err := db.Insert("a", "/usr/bin/a", 10, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert("b", "/usr/bin/b", 20, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	policyA, err := db.Policy("a")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if len(policyA) != 1 || policyA[0].Number != 10 {
		t.Fatalf("Policy(a) = %v", policyA)
	}
}

func TestCleanDropsBinariesNoLongerOnDisk(t *testing.T) {
	db := openTest(t)
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	if err := os.WriteFile(present, nil, 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	missing := filepath.Join(dir, "missing")

	if err := db.Insert("demo", present, 1, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert("demo", missing, 2, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := db.Clean(func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if n != 1 {
		t.Fatalf("Clean removed %d binaries, want 1", n)
	}

	policy, err := db.Policy("demo")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if len(policy) != 1 || policy[0].Number != 1 {
		t.Fatalf("Policy after Clean = %v", policy)
	}
}

func TestExportMergeRoundTrip(t *testing.T) {
	db := openTest(t)
	if err := db.Insert("demo", "/usr/bin/demo", 1, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert("demo", "/usr/bin/demo", 2, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "demo.policy")
	if err := db.Export("demo", exportPath); err != nil {
		t.Fatalf("Export: %v", err)
	}

	other := openTest(t)
	if err := other.Merge("demo-copy", "/usr/bin/demo", exportPath); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	policy, err := other.Policy("demo-copy")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if len(policy) != 2 {
		t.Fatalf("Policy after Merge = %v, want 2 entries", policy)
	}
}

func TestOptimizeDoesNotError(t *testing.T) {
	db := openTest(t)
	if err := db.Insert("demo", "/usr/bin/demo", 1, "x86_64"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
}
