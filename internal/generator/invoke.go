package generator

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/protogen-build/protogen/internal/msg"
)

// Invoker runs the external schema compiler for one group. Implementations
// must not write outside the configured output directories.
type Invoker interface {
	// Invoke generates code for the given inputs into outputs[0], the
	// primary output directory. Every output directory is created (and
	// given an ignore marker) before the compiler runs, so distribution
	// never has to. A non-nil error means generation must not be treated
	// as successful; the primary directory may hold partial output.
	Invoke(inputs, outputs, includeDirs []string) error
}

// ProtocInvoker shells out to protoc.
type ProtocInvoker struct {
	Path string
}

func (p ProtocInvoker) Invoke(inputs, outputs, includeDirs []string) error {
	abs := make([]string, len(inputs))
	var missing []string
	for i, in := range inputs {
		a, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		if _, err := os.Stat(a); os.IsNotExist(err) {
			missing = append(missing, in)
		}
		abs[i] = a
	}
	// never run the compiler against a partial input set
	if len(missing) > 0 {
		return fmt.Errorf("missing input files: %s", strings.Join(missing, ", "))
	}

	absOut := make([]string, len(outputs))
	for i, out := range outputs {
		a, err := filepath.Abs(out)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(a, 0755); err != nil {
			return err
		}
		if err := writeIgnoreMarker(a); err != nil {
			return err
		}
		absOut[i] = a
	}

	// the parent of the first input is the schema root; it leads the
	// module-resolution search path, followed by include dirs in order
	primary := absOut[0]
	schemaRoot := filepath.Dir(abs[0])

	args := make([]string, 0, len(includeDirs)+len(abs)+2)
	args = append(args, "--cpp_out="+primary)
	args = append(args, "--proto_path="+schemaRoot)
	for _, inc := range includeDirs {
		args = append(args, "--proto_path="+inc)
	}
	args = append(args, abs...)

	cmd := exec.Command(p.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg.Error("%s failed: %v", filepath.Base(p.Path), err)
		dumpStream(stderr.Bytes())
		dumpStream(stdout.Bytes())
		return fmt.Errorf("run %s: %w", p.Path, err)
	}

	return nil
}

func dumpStream(out []byte) {
	if len(bytes.TrimSpace(out)) == 0 {
		return
	}
	w := &msg.IndentWriter{Indent: "    ", W: os.Stderr}
	w.Write(out)
	if !bytes.HasSuffix(out, []byte("\n")) {
		w.Write([]byte("\n"))
	}
}

const ignoreMarker = `# Generated Protobuf files
*.pb.cc
*.pb.h
# .gitignore itself
.gitignore
`

// writeIgnoreMarker drops a .gitignore into an output directory so version
// control excludes generated files. An existing marker is never overwritten.
func writeIgnoreMarker(dir string) error {
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(ignoreMarker), 0644)
}
