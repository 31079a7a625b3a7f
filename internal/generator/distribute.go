package generator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/protogen-build/protogen/internal/msg"
)

// artifactPattern matches the files protoc emits for each schema
// (name.pb.cc / name.pb.h pairs).
const artifactPattern = "*.pb.*"

// distribute replicates every generated artifact in the primary output
// directory to each secondary directory, writing only when the destination
// is absent or differs byte-for-byte. Skipped copies leave timestamps
// untouched so downstream incremental builds see no spurious changes. Stale
// artifacts in secondary directories are never deleted.
func distribute(primary string, secondaries []string) (int, error) {
	names, err := doublestar.Glob(os.DirFS(primary), artifactPattern, doublestar.WithFilesOnly())
	if err != nil {
		return 0, err
	}
	slices.Sort(names)

	copied := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(primary, name))
		if err != nil {
			return copied, err
		}

		for _, dir := range secondaries {
			dest := filepath.Join(dir, name)
			existing, err := os.ReadFile(dest)
			if err == nil && bytes.Equal(existing, data) {
				continue
			}
			if err != nil && !os.IsNotExist(err) {
				return copied, err
			}

			if err := os.WriteFile(dest, data, 0644); err != nil {
				return copied, fmt.Errorf("copy %s to %s: %w", name, dir, err)
			}
			msg.Status("Copied", "%s -> %s", name, filepath.ToSlash(dest))
			copied++
		}
	}

	return copied, nil
}
