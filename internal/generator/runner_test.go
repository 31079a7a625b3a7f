package generator

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// fakeInvoker stands in for protoc: it creates the output directories and
// drops a fixed artifact set into the primary one.
type fakeInvoker struct {
	calls     [][]string        // inputs of every invocation
	includes  []string          // includeDirs of the last invocation
	artifacts map[string]string // artifact name -> content
	failOn    string            // fail when any input path contains this
}

func (f *fakeInvoker) Invoke(inputs, outputs, includeDirs []string) error {
	f.calls = append(f.calls, append([]string(nil), inputs...))
	f.includes = append([]string(nil), includeDirs...)

	if f.failOn != "" {
		for _, in := range inputs {
			if strings.Contains(in, f.failOn) {
				return errors.New("generator exited with status 1")
			}
		}
	}

	for _, out := range outputs {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
	}
	for name, content := range f.artifacts {
		if err := os.WriteFile(filepath.Join(outputs[0], name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func defaultArtifacts() map[string]string {
	return map[string]string{
		"schema.pb.cc": "// generated impl",
		"schema.pb.h":  "// generated header",
	}
}

func newTestRunner(t *testing.T, dir string, cfg *Config, inv Invoker) *Runner {
	t.Helper()
	return NewRunner(dir, cfg, NewConfigEnv(dir), inv)
}

func TestRunnerFirstRunThenUpToDate(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "proto", "schema.proto"), []byte("X"))

	cfg := &Config{Groups: []GroupSection{{
		Name:   "g0",
		Input:  []string{"proto/schema.proto"},
		Output: []string{"out/a", "out/b"},
		Cache:  "cache/g0.json",
	}}}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	if len(inv.calls) != 1 {
		t.Fatalf("first run invoked generator %d times, want 1", len(inv.calls))
	}

	// artifacts replicated to the secondary directory
	for name, content := range defaultArtifacts() {
		got, err := os.ReadFile(filepath.Join(dir, "out", "b", name))
		if err != nil {
			t.Fatalf("secondary missing %s: %v", name, err)
		}
		if string(got) != content {
			t.Errorf("%s content = %q, want %q", name, got, content)
		}
	}

	// cache committed with the fingerprint of "X"
	rec, err := loadCache(filepath.Join(dir, "cache", "g0.json"))
	if err != nil {
		t.Fatal(err)
	}
	if want := md5hex([]byte("X")); rec.Hash != want {
		t.Errorf("committed hash = %q, want %q", rec.Hash, want)
	}

	// a second run with no changes performs zero invocations
	inv2 := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv2).Run(); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(inv2.calls) != 0 {
		t.Errorf("second run invoked generator %d times, want 0", len(inv2.calls))
	}
}

func TestRunnerRegeneratesAfterEdit(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "schema.proto")
	writeTestFile(t, input, []byte("v1"))

	cfg := &Config{Groups: []GroupSection{{
		Input:  []string{"schema.proto"},
		Output: []string{"gen"},
		Cache:  "g.json",
	}}}

	if err := newTestRunner(t, dir, cfg, &fakeInvoker{artifacts: defaultArtifacts()}).Run(); err != nil {
		t.Fatal(err)
	}

	writeTestFile(t, input, []byte("v2"))

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatal(err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("edited input invoked generator %d times, want 1", len(inv.calls))
	}
}

func TestRunnerSkipsInvalidGroups(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "ok.proto"), []byte("ok"))

	cfg := &Config{Groups: []GroupSection{
		{Input: []string{"ok.proto"}, Output: []string{"gen"}}, // no cache path
		{Output: []string{"gen"}, Cache: "a.json"},             // no inputs
		{Input: []string{"ok.proto"}, Cache: "b.json"},         // no outputs
		{Input: []string{"ok.proto"}, Output: []string{"gen"}, Cache: "c.json"},
	}}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("invoked generator %d times, want 1 (only the valid group)", len(inv.calls))
	}
}

func TestRunnerFailureAbortsRemainingGroups(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"one.proto", "two.proto", "three.proto"} {
		writeTestFile(t, filepath.Join(dir, name), []byte(name))
	}

	group := func(name string) GroupSection {
		return GroupSection{
			Input:  []string{name + ".proto"},
			Output: []string{"gen-" + name},
			Cache:  name + ".json",
		}
	}
	cfg := &Config{Groups: []GroupSection{group("one"), group("two"), group("three")}}

	inv := &fakeInvoker{artifacts: defaultArtifacts(), failOn: "two.proto"}
	err := newTestRunner(t, dir, cfg, inv).Run()
	if err == nil {
		t.Fatal("run should fail when a group fails generation")
	}

	// group three was never attempted
	if len(inv.calls) != 2 {
		t.Errorf("invoked generator %d times, want 2", len(inv.calls))
	}

	// group one's cache survives from its own successful pass
	rec, err := loadCache(filepath.Join(dir, "one.json"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Hash == "" {
		t.Error("group one's committed cache is gone")
	}

	// the failed group committed nothing
	rec, err = loadCache(filepath.Join(dir, "two.json"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Hash != "" {
		t.Error("failed group must not commit a cache record")
	}
}

func TestRunnerDistributionFailurePreventsCommit(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "one.proto"), []byte("one"))
	writeTestFile(t, filepath.Join(dir, "two.proto"), []byte("two"))

	// a directory squatting on an artifact's destination path makes the
	// copy to the secondary fail
	if err := os.MkdirAll(filepath.Join(dir, "out", "b", "schema.pb.cc"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Groups: []GroupSection{
		{Input: []string{"one.proto"}, Output: []string{"out/a", "out/b"}, Cache: "one.json"},
		{Input: []string{"two.proto"}, Output: []string{"gen-two"}, Cache: "two.json"},
	}}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err == nil {
		t.Fatal("run should fail when distribution fails")
	}

	// generation ran for the first group only
	if len(inv.calls) != 1 {
		t.Errorf("invoked generator %d times, want 1", len(inv.calls))
	}

	// no cache commit for a group whose artifacts never reached every
	// destination, so the next run retries it
	rec, err := loadCache(filepath.Join(dir, "one.json"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Hash != "" {
		t.Error("group with failed distribution must not commit a cache record")
	}
	if _, err := os.Stat(filepath.Join(dir, "two.json")); !os.IsNotExist(err) {
		t.Error("later group must not run after a distribution failure")
	}
}

func TestRunnerForceIgnoresCache(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "s.proto"), []byte("same"))

	cfg := &Config{Groups: []GroupSection{{
		Input:  []string{"s.proto"},
		Output: []string{"gen"},
		Cache:  "g.json",
	}}}

	if err := newTestRunner(t, dir, cfg, &fakeInvoker{artifacts: defaultArtifacts()}).Run(); err != nil {
		t.Fatal(err)
	}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	r := newTestRunner(t, dir, cfg, inv)
	r.Force = true
	if err := r.Run(); err != nil {
		t.Fatal(err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("forced run invoked generator %d times, want 1", len(inv.calls))
	}
}

func TestRunnerCorruptCachePolicies(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "s.proto"), []byte("same"))
	writeTestFile(t, filepath.Join(dir, "g.json"), []byte("{broken"))

	cfg := &Config{Groups: []GroupSection{{
		Input:  []string{"s.proto"},
		Output: []string{"gen"},
		Cache:  "g.json",
	}}}

	// default: regenerate instead of trusting ambiguous cache state
	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatalf("regen policy failed: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("corrupt cache invoked generator %d times, want 1", len(inv.calls))
	}

	// the corrupt record was replaced by a valid one
	if _, err := loadCache(filepath.Join(dir, "g.json")); err != nil {
		t.Errorf("cache still corrupt after regeneration: %v", err)
	}

	// strict policy: corrupt cache aborts the run
	writeTestFile(t, filepath.Join(dir, "g.json"), []byte("{broken"))
	inv = &fakeInvoker{artifacts: defaultArtifacts()}
	r := newTestRunner(t, dir, cfg, inv)
	r.CorruptCache = CorruptFail
	err := r.Run()
	if !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("strict policy error = %v, want ErrCacheCorrupt", err)
	}
	if len(inv.calls) != 0 {
		t.Errorf("strict policy invoked generator %d times, want 0", len(inv.calls))
	}
}

func TestRunnerWhenCondition(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "s.proto"), []byte("s"))

	cfg := &Config{Groups: []GroupSection{
		{Input: []string{"s.proto"}, Output: []string{"a"}, Cache: "a.json", When: "1 == 2"},
		{Input: []string{"s.proto"}, Output: []string{"b"}, Cache: "b.json", When: "1 == 1"},
	}}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatal(err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("invoked generator %d times, want 1 (second group only)", len(inv.calls))
	}
	if _, err := os.Stat(filepath.Join(dir, "a.json")); !os.IsNotExist(err) {
		t.Error("disabled group must not commit a cache record")
	}
}

func TestRunnerExpandsGlobInputs(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "proto", "b.proto"), []byte("b"))
	writeTestFile(t, filepath.Join(dir, "proto", "a.proto"), []byte("a"))
	writeTestFile(t, filepath.Join(dir, "proto", "ignore.txt"), []byte("x"))

	cfg := &Config{Groups: []GroupSection{{
		Input:  []string{"proto/*.proto"},
		Output: []string{"gen"},
		Cache:  "g.json",
	}}}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatal(err)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("invoked generator %d times, want 1", len(inv.calls))
	}

	want := []string{
		filepath.Join(dir, "proto", "a.proto"),
		filepath.Join(dir, "proto", "b.proto"),
	}
	got := inv.calls[0]
	if len(got) != len(want) {
		t.Fatalf("expanded inputs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input[%d] = %q, want %q (sorted expansion)", i, got[i], want[i])
		}
	}
}

func TestRunnerExpandsAbsoluteGlobInputs(t *testing.T) {
	dir := t.TempDir()
	shared := t.TempDir()
	writeTestFile(t, filepath.Join(shared, "b.proto"), []byte("b"))
	writeTestFile(t, filepath.Join(shared, "a.proto"), []byte("a"))
	writeTestFile(t, filepath.Join(shared, "notes.txt"), []byte("x"))

	cfg := &Config{Groups: []GroupSection{{
		Input:  []string{filepath.Join(shared, "*.proto")},
		Output: []string{"gen"},
		Cache:  "g.json",
	}}}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatal(err)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("invoked generator %d times, want 1", len(inv.calls))
	}

	want := []string{
		filepath.Join(shared, "a.proto"),
		filepath.Join(shared, "b.proto"),
	}
	if got := inv.calls[0]; !slices.Equal(got, want) {
		t.Errorf("expanded inputs = %v, want %v", got, want)
	}
}

func TestRunnerPrepareSeesFetchedRemotes(t *testing.T) {
	schemas := t.TempDir()
	writeTestFile(t, filepath.Join(schemas, "types.proto"), []byte("message Shared {}"))

	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "s.proto"), []byte("s"))

	// the prepare script inspects a file that only exists once the remote
	// has been fetched, so it must run after remote resolution
	cfg := &Config{
		Package: PackageSection{
			Name:    "p",
			Prepare: `ReadFile(".protogen/remotes/shared/types.proto") contains "message Shared"`,
		},
		Remotes: map[string]string{"shared": schemas},
		Groups: []GroupSection{{
			Input:  []string{"s.proto"},
			Output: []string{"gen"},
			Cache:  "g.json",
		}},
	}

	inv := &fakeInvoker{artifacts: defaultArtifacts()}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// the fetched remote also ends up on the generator's search path
	want := filepath.Join(dir, ".protogen", "remotes", "shared")
	if !slices.Contains(inv.includes, want) {
		t.Errorf("include dirs %v do not contain fetched remote %s", inv.includes, want)
	}
}

func TestRunnerMissingInputStillFingerprints(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "here.proto"), []byte("here"))

	cfg := &Config{Groups: []GroupSection{{
		Input:  []string{"here.proto", "gone.proto"},
		Output: []string{"gen"},
		Cache:  "g.json",
	}}}

	// generation fails because an input is absent, and that is fatal
	inv := &fakeInvoker{artifacts: defaultArtifacts(), failOn: "gone.proto"}
	if err := newTestRunner(t, dir, cfg, inv).Run(); err == nil {
		t.Fatal("run should fail when generation fails")
	}

	// fingerprinting itself tolerated the absent file: the generator was
	// reached, meaning compare ran on a fingerprint containing the token
	if len(inv.calls) != 1 {
		t.Errorf("invoked generator %d times, want 1", len(inv.calls))
	}
}

func TestCleanRemovesCacheAndArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, ConfigName), []byte(`
[[group]]
input = ["s.proto"]
output = ["gen"]
cache = "g.json"
`))
	writeTestFile(t, filepath.Join(dir, "g.json"), []byte(`{"hash": "abc"}`))
	writeTestFile(t, filepath.Join(dir, "gen", "s.pb.cc"), []byte("// gen"))
	writeTestFile(t, filepath.Join(dir, "gen", "s.pb.h"), []byte("// gen"))
	writeTestFile(t, filepath.Join(dir, "gen", ".gitignore"), []byte(ignoreMarker))

	if err := Clean(dir, false); err != nil {
		t.Fatalf("Clean returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "g.json")); !os.IsNotExist(err) {
		t.Error("cache file not removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "gen", "s.pb.cc")); err != nil {
		t.Error("artifacts should survive a plain clean")
	}

	if err := Clean(dir, true); err != nil {
		t.Fatalf("Clean --artifacts returned error: %v", err)
	}
	for _, name := range []string{"s.pb.cc", "s.pb.h"} {
		if _, err := os.Stat(filepath.Join(dir, "gen", name)); !os.IsNotExist(err) {
			t.Errorf("artifact %s not removed", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "gen", ".gitignore")); err != nil {
		t.Error("ignore marker should be left in place")
	}
}
