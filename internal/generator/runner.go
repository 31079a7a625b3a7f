// Package generator drives the external schema compiler: it decides per
// group whether regeneration is needed, invokes the compiler into the
// primary output directory and replicates artifacts to the secondaries.
package generator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/protogen-build/protogen/internal/msg"
	"github.com/protogen-build/protogen/internal/toolchain"
)

// GroupStatus is the terminal state of one group's pass. Everything except
// StatusFailed lets the run continue with the next group.
type GroupStatus int

const (
	StatusSkipped GroupStatus = iota
	StatusUpToDate
	StatusRegenerated
	StatusFailed
)

func (s GroupStatus) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusUpToDate:
		return "up to date"
	case StatusRegenerated:
		return "regenerated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CorruptCachePolicy decides what an unparseable cache record does to a run.
type CorruptCachePolicy int

const (
	// CorruptRegen treats a corrupt record as a miss and regenerates.
	CorruptRegen CorruptCachePolicy = iota
	// CorruptFail aborts the run on a corrupt record.
	CorruptFail
)

type Runner struct {
	cfg     *Config
	env     ConfigEnv
	basedir string
	invoker Invoker
	fp      *Fingerprinter
	include []string

	Force        bool
	CorruptCache CorruptCachePolicy
}

func NewRunner(basedir string, cfg *Config, env ConfigEnv, invoker Invoker) *Runner {
	return &Runner{
		cfg:     cfg,
		env:     env,
		basedir: basedir,
		invoker: invoker,
		fp:      NewFingerprinter(),
	}
}

// NewRunnerInDirectory loads protogen.toml from path and resolves the protoc
// executable (override > PROTOC env > bundled tools/protoc > $PATH).
func NewRunnerInDirectory(path, protocOverride string) (*Runner, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv(path)
	cfg, err := ParseConfigFromFile(filepath.Join(path, ConfigName), env)
	if err != nil {
		return nil, err
	}

	override := protocOverride
	if override == "" {
		override = cfg.Protoc.Path
	}
	if override != "" {
		override = absPath(path, override)
	}

	toolsDir := filepath.Join(path, "tools", "protoc")
	protoc, err := toolchain.Find(override, runtime.GOOS, runtime.GOARCH, toolsDir)
	if err != nil {
		return nil, err
	}

	return NewRunner(path, cfg, env, ProtocInvoker{Path: protoc}), nil
}

// Run processes every configured group, strictly in order, one at a time.
// Invalid groups are skipped; a generation or distribution failure aborts
// the run so the operator sees the first failure before any further
// incremental decisions are trusted.
func (r *Runner) Run() error {
	// remotes must be on disk before the prepare script runs, so it can
	// patch fetched imports
	include, err := r.resolveIncludeDirs()
	if err != nil {
		return err
	}
	r.include = include

	if err := r.cfg.RunPrepareScript(r.env); err != nil {
		return err
	}

	for i, group := range r.cfg.Groups {
		status, err := r.runGroup(i, group)
		if status == StatusFailed {
			return fmt.Errorf("%s %s: %w", groupLabel(i, group), status, err)
		}
	}

	return nil
}

// runGroup is the per-group state machine: Validate -> Fingerprint ->
// Compare -> Generate -> Distribute -> Commit. The cache is written only
// after generation and distribution both succeeded.
func (r *Runner) runGroup(idx int, g GroupSection) (GroupStatus, error) {
	label := groupLabel(idx, g)

	enabled, err := evalWhen(g.When, r.env)
	if err != nil {
		msg.Warn("skipping %s: %v", label, err)
		return StatusSkipped, nil
	}
	if !enabled {
		msg.Info("%s: disabled by condition", label)
		return StatusSkipped, nil
	}

	if len(g.Input) == 0 || len(g.Output) == 0 || g.Cache == "" {
		msg.Warn("skipping %s: missing input/output/cache", label)
		return StatusSkipped, nil
	}

	inputs, err := r.expandInputs(g.Input)
	if err != nil {
		msg.Warn("skipping %s: %v", label, err)
		return StatusSkipped, nil
	}
	if len(inputs) == 0 {
		msg.Warn("skipping %s: input patterns matched no files", label)
		return StatusSkipped, nil
	}

	outputs := make([]string, len(g.Output))
	for i, out := range g.Output {
		outputs[i] = absPath(r.basedir, out)
	}
	cachePath := absPath(r.basedir, g.Cache)

	current, err := r.fp.Fingerprint(inputs)
	if err != nil {
		return StatusFailed, err
	}

	rec, err := loadCache(cachePath)
	if err != nil {
		if errors.Is(err, ErrCacheCorrupt) && r.CorruptCache == CorruptRegen {
			msg.Warn("%v, forcing regeneration", err)
			rec = cacheRecord{}
		} else {
			return StatusFailed, err
		}
	}

	if !r.Force && rec.Hash == current {
		msg.Info("%s: no change", label)
		return StatusUpToDate, nil
	}

	msg.Status("Generating", "%s", label)
	if err := r.invoker.Invoke(inputs, outputs, r.include); err != nil {
		return StatusFailed, err
	}

	if _, err := distribute(outputs[0], outputs[1:]); err != nil {
		return StatusFailed, err
	}

	rec.Hash = current
	if err := saveCache(cachePath, rec); err != nil {
		return StatusFailed, err
	}

	return StatusRegenerated, nil
}

// expandInputs resolves configured input entries to absolute paths. Glob
// entries expand in place to their sorted matches; literal entries keep
// their configured position, since input order is significant for both the
// fingerprint and the schema root.
func (r *Runner) expandInputs(entries []string) ([]string, error) {
	var inputs []string
	fsys := os.DirFS(r.basedir)

	for _, entry := range entries {
		if !strings.ContainsAny(entry, "*?[{") {
			inputs = append(inputs, absPath(r.basedir, entry))
			continue
		}

		if filepath.IsAbs(entry) {
			matches, err := doublestar.FilepathGlob(entry, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("bad input pattern %q: %w", entry, err)
			}
			slices.Sort(matches)
			inputs = append(inputs, matches...)
			continue
		}

		matches, err := doublestar.Glob(fsys, filepath.ToSlash(entry), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", entry, err)
		}
		slices.Sort(matches)
		for _, match := range matches {
			inputs = append(inputs, filepath.Join(r.basedir, match))
		}
	}

	return inputs, nil
}

// resolveIncludeDirs builds the auxiliary search path: configured include
// directories first, then fetched remotes in name order.
func (r *Runner) resolveIncludeDirs() ([]string, error) {
	var dirs []string
	for _, inc := range r.cfg.Include {
		dirs = append(dirs, absPath(r.basedir, inc))
	}

	names := make([]string, 0, len(r.cfg.Remotes))
	for name := range r.cfg.Remotes {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		dir := filepath.Join(r.basedir, ".protogen", "remotes", name)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			msg.Status("Fetching", "remote %s", name)
			if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
				return nil, err
			}
			if err := fetchRemote(r.cfg.Remotes[name], dir); err != nil {
				return nil, fmt.Errorf("failed to fetch remote %q: %w", name, err)
			}
		} else if err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}

	return dirs, nil
}

func groupLabel(idx int, g GroupSection) string {
	if g.Name != "" {
		return fmt.Sprintf("group %q", g.Name)
	}
	return fmt.Sprintf("group %d", idx)
}

func absPath(basedir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(basedir, path)
}
