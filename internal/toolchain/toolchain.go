// Package toolchain locates the protoc executable for the host platform.
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type platform struct {
	goos, goarch string
}

// binDirs maps a platform to the directory name used by upstream protoc
// release archives under <toolsDir>/bin.
var binDirs = map[platform]string{
	{"windows", "amd64"}: "win64",
	{"windows", "386"}:   "win32",
	{"linux", "amd64"}:   "linux-x86_64",
	{"linux", "386"}:     "linux-x86_32",
	{"linux", "arm64"}:   "linux-aarch_64",
	{"linux", "ppc64le"}: "linux-ppcle_64",
	{"linux", "s390x"}:   "linux-s390_64",
	{"darwin", "amd64"}:  "osx-x86_64",
	{"darwin", "arm64"}:  "osx-aarch_64",
}

// Resolve returns the path of the bundled protoc binary for the given
// platform. It is a pure lookup: no platform detection, no disk access.
func Resolve(goos, goarch, toolsDir string) (string, error) {
	dir, ok := binDirs[platform{goos, goarch}]
	if !ok {
		// upstream ships a universal binary for macOS
		if goos == "darwin" {
			dir = "osx-universal_binary"
		} else {
			return "", fmt.Errorf("no bundled protoc for %s/%s", goos, goarch)
		}
	}

	name := "protoc"
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(toolsDir, "bin", dir, name), nil
}

// Find picks the protoc executable to use: an explicit override first, then
// the PROTOC environment variable, then the bundled binary for the given
// platform, then a $PATH lookup.
func Find(override, goos, goarch, toolsDir string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("protoc not found at %s: %w", override, err)
		}
		return override, nil
	}

	if env := os.Getenv("PROTOC"); env != "" {
		return env, nil
	}

	bundled, err := Resolve(goos, goarch, toolsDir)
	if err == nil {
		if _, serr := os.Stat(bundled); serr == nil {
			return bundled, nil
		}
	}

	if path, err := exec.LookPath("protoc"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("protoc not found: no bundled binary under %s and none on PATH", toolsDir)
}
