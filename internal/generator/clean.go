package generator

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/protogen-build/protogen/internal/msg"
)

// Clean removes every group's cache file so the next run regenerates from
// scratch. With artifacts set, generated files are also removed from every
// configured output directory. Ignore markers are left in place.
func Clean(basedir string, artifacts bool) error {
	basedir, err := filepath.Abs(basedir)
	if err != nil {
		return err
	}

	env := NewConfigEnv(basedir)
	cfg, err := ParseConfigFromFile(filepath.Join(basedir, ConfigName), env)
	if err != nil {
		return err
	}

	for _, g := range cfg.Groups {
		if g.Cache == "" {
			continue
		}
		cachePath := absPath(basedir, g.Cache)
		if err := os.Remove(cachePath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		msg.Status("Removed", "%s", filepath.ToSlash(cachePath))
	}

	if !artifacts {
		return nil
	}

	for _, g := range cfg.Groups {
		for _, out := range g.Output {
			dir := absPath(basedir, out)
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				continue
			}
			names, err := doublestar.Glob(os.DirFS(dir), artifactPattern, doublestar.WithFilesOnly())
			if err != nil {
				return err
			}
			slices.Sort(names)
			for _, name := range names {
				path := filepath.Join(dir, name)
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return err
				}
				msg.Status("Removed", "%s", filepath.ToSlash(path))
			}
		}
	}

	return nil
}
