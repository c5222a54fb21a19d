package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func noop(context.Context, Notification, ...any) error { return nil }

func TestLoadKeepsFirstDuplicateAndSkipsMissingInvoke(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "identifier: ping\ndescription: first\naction: pong\n")
	writeFile(t, dir, "b.yaml", "identifier: broken\ndescription: no action here\n")
	writeFile(t, dir, "c.yaml", "identifier: ping\ndescription: second\naction: pong\n")

	loader := NewLoader(KindCommand, NewRegistry(KindCommand), zap.NewNop())
	loader.Bind("pong", noop)

	report, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.TotalFiles != 3 || report.LoadedCount != 1 || report.FailedCount != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	registry := loader.Registry()
	if registry.Len() != 1 {
		t.Fatalf("expected one entry, got %d", registry.Len())
	}
	def, ok := registry.Get("ping")
	if !ok {
		t.Fatalf("expected ping")
	}
	if def.Source != filepath.Join(dir, "a.yaml") || def.Descriptor.Description != "first" {
		t.Fatalf("expected a.yaml to win, got %s", def.Source)
	}
	if !strings.Contains(report.Failures[0].Reason, "missing invoke") {
		t.Fatalf("expected missing invoke failure, got %q", report.Failures[0].Reason)
	}
	if !strings.Contains(report.Failures[1].Reason, ErrDuplicateIdentifier.Error()) {
		t.Fatalf("expected duplicate failure, got %q", report.Failures[1].Reason)
	}
}

func TestLoadWellFormedFiles(t *testing.T) {
	dir := t.TempDir()
	const n = 5
	var want []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("cmd%d", i)
		want = append(want, id)
		writeFile(t, dir, id+".yml", fmt.Sprintf("name: %s\ndescription: number %d\naction: run\n", id, i))
	}
	// Not a definition file.
	writeFile(t, dir, "README.md", "ignored")

	loader := NewLoader(KindCommand, NewRegistry(KindCommand), zap.NewNop())
	loader.Bind("run", noop)

	report, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.LoadedCount != n || report.FailedCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	var got []string
	for _, def := range loader.Registry().All() {
		got = append(got, def.Identifier)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("identifiers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTOMLWithOptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greet.toml", `
identifier = "greet"
description = "Say hello"
action = "hello"

[[options]]
name = "who"
description = "Who to greet"
type = "user"
required = true
`)
	loader := NewLoader(KindCommand, NewRegistry(KindCommand), zap.NewNop())
	loader.Bind("hello", noop)
	if _, err := loader.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	def, ok := loader.Registry().Get("greet")
	if !ok {
		t.Fatalf("expected greet")
	}
	if len(def.Descriptor.Options) != 1 || def.Descriptor.Options[0].Name != "who" || !def.Descriptor.Options[0].Required {
		t.Fatalf("unexpected options: %+v", def.Descriptor.Options)
	}
}

func TestLoadBuiltinsBeforeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ping.yaml", "identifier: ping\ndescription: shadow\naction: ping\n")
	writeFile(t, dir, "pong.yaml", "identifier: pong\ndescription: alias\naction: ping\n")

	loader := NewLoader(KindCommand, NewRegistry(KindCommand), zap.NewNop())
	loader.Register(&Definition{Identifier: "ping", Descriptor: Descriptor{Description: "Latency"}, Invoke: noop})

	report, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.TotalFiles != 3 || report.LoadedCount != 2 || report.FailedCount != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	def, _ := loader.Registry().Get("ping")
	if def.Source != "builtin:ping" {
		t.Fatalf("expected builtin to win, got %s", def.Source)
	}
	if !loader.Registry().Has("pong") {
		t.Fatalf("expected alias to load")
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "buttons")
	loader := NewLoader(KindButton, NewRegistry(KindButton), zap.NewNop())

	report, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("optional kind should not fail: %v", err)
	}
	if report.TotalFiles != 0 || report.LoadedCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created")
	}
}

func TestLoadMissingDirectoryWithBuiltins(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "commands")
	loader := NewLoader(KindCommand, NewRegistry(KindCommand), zap.NewNop())
	loader.Register(&Definition{Identifier: "ping", Descriptor: Descriptor{Description: "Latency"}, Invoke: noop})

	report, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("builtins satisfy a mandatory kind: %v", err)
	}
	if report.TotalFiles != 1 || report.LoadedCount != 1 || report.FailedCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !loader.Registry().Has("ping") {
		t.Fatalf("expected builtin in registry")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created")
	}
}

func TestLoadMandatoryExhausted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "identifier: nothing\n")

	loader := NewLoader(KindEvent, NewRegistry(KindEvent), zap.NewNop())
	report, err := loader.Load(dir)
	if !errors.Is(err, ErrLoadExhausted) {
		t.Fatalf("expected ErrLoadExhausted, got %v", err)
	}
	if report.FailedCount != 1 {
		t.Fatalf("expected failure recorded: %+v", report)
	}
}

func TestLoadEmptyAndMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.yaml", "   \n")
	writeFile(t, dir, "garbage.yaml", "identifier: [unterminated\n")
	writeFile(t, dir, "wrongkind.yaml", "identifier: x\nkind: button\naction: run\n")

	loader := NewLoader(KindModal, NewRegistry(KindModal), zap.NewNop())
	loader.Bind("run", noop)
	report, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.FailedCount != 3 || report.LoadedCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.Contains(report.Failures[0].Reason, "no definition") {
		t.Fatalf("expected empty file failure, got %q", report.Failures[0].Reason)
	}
}

func TestReloadReplacesTable(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "old.yaml", "identifier: old\naction: run\n")

	loader := NewLoader(KindButton, NewRegistry(KindButton), zap.NewNop())
	loader.Bind("run", noop)
	if _, err := loader.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.Remove(first); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeFile(t, dir, "new.yaml", "identifier: new\naction: run\n")
	if _, err := loader.Load(dir); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loader.Registry().Has("old") || !loader.Registry().Has("new") {
		t.Fatalf("expected full replacement, got %d entries", loader.Registry().Len())
	}
}

func TestValidateCommand(t *testing.T) {
	cases := []struct {
		name string
		def  *Definition
		ok   bool
	}{
		{"nil", nil, false},
		{"valid", &Definition{Identifier: "ban-user", Descriptor: Descriptor{Description: "d"}, Invoke: noop}, true},
		{"uppercase", &Definition{Identifier: "Ban", Descriptor: Descriptor{Description: "d"}, Invoke: noop}, false},
		{"no description", &Definition{Identifier: "ban", Invoke: noop}, false},
		{"long description", &Definition{Identifier: "ban", Descriptor: Descriptor{Description: strings.Repeat("x", 101)}, Invoke: noop}, false},
		{"no invoke", &Definition{Identifier: "ban", Descriptor: Descriptor{Description: "d"}}, false},
		{"wrong kind", &Definition{Kind: KindMenu, Identifier: "ban", Descriptor: Descriptor{Description: "d"}, Invoke: noop}, false},
	}
	for _, tc := range cases {
		err := tc.def.Validate(KindCommand)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestRouteKey(t *testing.T) {
	cases := map[string]string{
		"embed:send":     "embed",
		"rolemenu":       "rolemenu",
		"rolemenu:1:2":   "rolemenu",
		"GUILD_ROLE_ADD": "GUILD_ROLE_ADD",
	}
	for in, want := range cases {
		if got := RouteKey(in); got != want {
			t.Fatalf("RouteKey(%q) = %q, want %q", in, got, want)
		}
	}
}
