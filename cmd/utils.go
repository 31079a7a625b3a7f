package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// EnumValue is a pflag.Value restricted to a fixed set of choices. The
// allowed map carries per-choice help text for shell completion.
type EnumValue struct {
	value   string
	allowed map[string]string
}

func NewEnumValue(defaultVal string, allowed map[string]string) EnumValue {
	if _, ok := allowed[defaultVal]; !ok {
		panic(fmt.Sprintf("default value %q not in allowed set", defaultVal))
	}
	return EnumValue{value: defaultVal, allowed: allowed}
}

func (e *EnumValue) String() string     { return e.value }
func (e *EnumValue) Type() string       { return "enum" }
func (e *EnumValue) Value() string      { return e.value }
func (e *EnumValue) HelpString() string { return "[" + strings.Join(e.choices(), ", ") + "]" }

func (e *EnumValue) Set(v string) error {
	if _, ok := e.allowed[v]; !ok {
		return fmt.Errorf("must be one of: %s", strings.Join(e.choices(), ", "))
	}
	e.value = v
	return nil
}

// choices returns the allowed values in a stable order.
func (e *EnumValue) choices() []string {
	keys := make([]string, 0, len(e.allowed))
	for k := range e.allowed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (e *EnumValue) CompletionFunc() func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		items := make([]string, 0, len(e.allowed))
		for _, k := range e.choices() {
			if help := e.allowed[k]; help != "" {
				k += "\t" + help
			}
			items = append(items, k)
		}
		return items, cobra.ShellCompDirectiveDefault
	}
}
