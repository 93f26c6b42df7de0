package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/wrenlabs/gadgetrun/pkg/gadget"
)

func TestRegisterManifestGadgetsFiltersByAllowList(t *testing.T) {
	manifest := &gadgetManifest{
		Gadgets: []execGadgetSpec{
			{Name: "echo", Command: "/bin/sh"},
			{Name: "blocked", Command: "/bin/sh"},
		},
	}
	reg := gadget.NewRegistry()
	if err := registerManifestGadgets(reg, manifest, []string{"echo"}); err != nil {
		t.Fatalf("registerManifestGadgets: %v", err)
	}

	if _, ok := reg.Get("echo"); !ok {
		t.Fatal("expected allowed gadget to be registered")
	}
	if _, ok := reg.Get("blocked"); ok {
		t.Fatal("expected non-allowed gadget to be skipped")
	}
}

func TestRegisterManifestGadgetsEmptyAllowListRegistersEverything(t *testing.T) {
	manifest := &gadgetManifest{
		Gadgets: []execGadgetSpec{
			{Name: "a", Command: "/bin/sh"},
			{Name: "b", Command: "/bin/sh"},
		},
	}
	reg := gadget.NewRegistry()
	if err := registerManifestGadgets(reg, manifest, nil); err != nil {
		t.Fatalf("registerManifestGadgets: %v", err)
	}
	if len(reg.Names()) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", reg.Names())
	}
}

func TestExecGadgetExecuteParsesStdout(t *testing.T) {
	spec := execGadgetSpec{
		Name:    "echoer",
		Command: "/bin/sh",
		Args:    []string{"-c", "cat >/dev/null; echo '{\"content\":\"hello\"}'"},
	}
	g := newExecGadget(spec)

	result, err := g.Execute(context.Background(), json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "hello" {
		t.Fatalf("Content = %q, want %q", result.Content, "hello")
	}
}

func TestExecGadgetExecuteSurfacesNonZeroExit(t *testing.T) {
	spec := execGadgetSpec{
		Name:    "failer",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo boom >&2; exit 1"},
	}
	g := newExecGadget(spec)

	if _, err := g.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error from non-zero exit")
	}
}
