package main

import (
	"errors"
	"testing"

	"github.com/antimony-sandbox/antimony/internal/driver"
	"github.com/antimony-sandbox/antimony/internal/profile"
)

func TestClassifyProfileNotFound(t *testing.T) {
	err := &profile.ErrNotFound{Name: "chromium", Reason: "no profile file"}
	if got := classify(err); got != exitProfileNotFound {
		t.Fatalf("classify(%v) = %d, want %d", err, got, exitProfileNotFound)
	}
}

func TestClassifyFeatureUnresolved(t *testing.T) {
	err := &profile.Error{Op: "feature", Name: "electron", Err: errors.New("boom")}
	if got := classify(err); got != exitFeatureUnresolved {
		t.Fatalf("classify(%v) = %d, want %d", err, got, exitFeatureUnresolved)
	}
}

func TestClassifyProfileInvalid(t *testing.T) {
	err := &profile.Error{Op: "hash", Err: errors.New("boom")}
	if got := classify(err); got != exitProfileInvalid {
		t.Fatalf("classify(%v) = %d, want %d", err, got, exitProfileInvalid)
	}
}

func TestClassifyDriverStages(t *testing.T) {
	cases := []struct {
		stage driver.Stage
		want  int
	}{
		{driver.StageDependencies, exitFabricateFailed},
		{driver.StageFabricate, exitFabricateFailed},
		{driver.StageHome, exitFabricateFailed},
		{driver.StageStage, exitFabricateFailed},
		{driver.StageSeccomp, exitSeccompLoadFailed},
		{driver.StageMonitor, exitMonitorFailed},
		{driver.StageHandoff, exitMonitorFailed},
		{driver.StageBwrap, exitBwrapFailed},
	}
	for _, c := range cases {
		err := &driver.Error{Stage: c.stage, Err: errors.New("boom")}
		if got := classify(err); got != c.want {
			t.Fatalf("classify(stage=%v) = %d, want %d", c.stage, got, c.want)
		}
	}
}

func TestClassifyUnknownFallsBack(t *testing.T) {
	if got := classify(errors.New("something unexpected")); got != exitUnknownDriverFault {
		t.Fatalf("classify(unknown) = %d, want %d", got, exitUnknownDriverFault)
	}
}
