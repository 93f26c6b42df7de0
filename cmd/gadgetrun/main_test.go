package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"run", "trace", "doctor"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildTraceCmdIncludesValidateAndReplay(t *testing.T) {
	cmd := buildTraceCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"validate", "replay"} {
		if !names[name] {
			t.Fatalf("expected trace subcommand %q to be registered", name)
		}
	}
}
