package tools

import (
	"testing"

	"github.com/neurana/undoable-sub002/internal/tools/policy"
)

func TestBuildRegistryRegistersAllBuiltins(t *testing.T) {
	reg, manager, err := BuildRegistry(Spec{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if manager == nil {
		t.Fatalf("expected a non-nil exec manager")
	}

	want := []string{"read", "write", "edit", "apply_patch", "exec", "process"}
	defs := reg.Definitions()
	got := make(map[string]bool, len(defs))
	for _, d := range defs {
		got[d.Name] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("expected tool %q to be registered, registered: %v", name, got)
		}
	}
}

func TestBuildFilteredRegistryAppliesPolicy(t *testing.T) {
	resolver := policy.NewResolver()
	pol := policy.NewPolicy(policy.ProfileMinimal).WithAllow("read")

	reg, _, err := BuildFilteredRegistry(Spec{Workspace: t.TempDir()}, resolver, pol)
	if err != nil {
		t.Fatalf("BuildFilteredRegistry: %v", err)
	}

	if _, ok := reg.Get("read"); !ok {
		t.Fatalf("expected read tool to remain registered")
	}
	if _, ok := reg.Get("exec"); ok {
		t.Fatalf("expected exec tool to be filtered out by minimal profile")
	}
}
