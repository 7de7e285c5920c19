package internal

import (
	"testing"

	"github.com/kcmvp/archunit"
)

func TestArchitecture(t *testing.T) {
	domain := archunit.Packages("domain", []string{".../internal/domain/..."})
	ports := archunit.Packages("ports", []string{".../internal/ports"})
	adapters := archunit.Packages("adapters", []string{".../internal/adapters/..."})

	// Rule 1: Domain should not depend on adapters
	if err := domain.ShouldNotReferLayers(adapters); err != nil {
		t.Errorf("Architecture violation: Domain depends on Adapters: %v", err)
	}

	// Rule 2: Ports describe the boundary and must not depend on its implementations
	if err := ports.ShouldNotReferLayers(adapters); err != nil {
		t.Errorf("Architecture violation: Ports depend on Adapters: %v", err)
	}
}

func TestLayersPresent(t *testing.T) {
	for _, path := range []string{
		".../internal/domain/controller",
		".../internal/domain/calibration",
		".../internal/domain/service",
	} {
		if len(archunit.Packages(path, []string{path}).Packages()) == 0 {
			t.Errorf("no package found for %s", path)
		}
	}
}
