package profile

import (
	"bytes"
	"testing"

	"github.com/BurntSushi/toml"
)

type setFixture struct {
	Binaries StringSet `toml:"binaries"`
}

func TestStringSetRoundTrip(t *testing.T) {
	var fixture setFixture
	if _, err := toml.Decode(`binaries = ["bash", "git", "bash"]`, &fixture); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fixture.Binaries) != 2 {
		t.Fatalf("expected duplicate to collapse, got %v", fixture.Binaries)
	}
	if _, ok := fixture.Binaries["git"]; !ok {
		t.Fatalf("expected git in set, got %v", fixture.Binaries)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fixture); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var roundTripped setFixture
	if _, err := toml.Decode(buf.String(), &roundTripped); err != nil {
		t.Fatalf("Decode round trip: %v", err)
	}
	if len(roundTripped.Binaries) != len(fixture.Binaries) {
		t.Fatalf("round trip changed set size: got %v, want %v", roundTripped.Binaries, fixture.Binaries)
	}
}

func TestStringSetRejectsNonArray(t *testing.T) {
	var fixture setFixture
	_, err := toml.Decode(`binaries = "bash"`, &fixture)
	if err == nil {
		t.Fatalf("expected decode error for non-array value")
	}
}
