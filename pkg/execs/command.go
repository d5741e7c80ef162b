package execs

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

var (
	// ErrCommandExecution is returned when command execution fails.
	ErrCommandExecution = errors.New("run")

	// ErrEmptyCommand is returned when a command is empty.
	ErrEmptyCommand = errors.New("empty command")
)

// Variables that are always passed through from the caller.
var essentialVars = []string{"PATH", "HOME", "USER", "TERM", "COLORTERM", "TMPDIR"}

// Result represents the result of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// EnvFromSource represents a source for inheriting environment variables.
type EnvFromSource struct {
	// CallerRef specifies how to inherit environment variables from the caller process.
	CallerRef *CallerRef `json:"callerRef,omitempty"`
}

// CallerRef references environment variables of the caller process, either
// by exact name or by a regular expression over names.
// The pattern is compiled on first use.
type CallerRef struct {
	compiled *regexp.Regexp
	err      error
	once     sync.Once

	// Pattern is a regex pattern for matching environment variable names.
	Pattern string `json:"pattern,omitempty"`
	// Name is the specific environment variable name to inherit.
	Name string `json:"name,omitempty"`
}

// Compile compiles the pattern, if there is one. It is safe to call concurrently.
func (c *CallerRef) Compile() (*regexp.Regexp, error) {
	c.once.Do(func() {
		if c.Pattern == "" {
			return
		}

		c.compiled, c.err = regexp.Compile(c.Pattern)
		if c.err != nil {
			c.err = fmt.Errorf("compile pattern %q: %w", c.Pattern, c.err)
		}
	})

	return c.compiled, c.err
}

// Command describes an external command and the environment it runs with.
type Command struct {
	baseEnv map[string]string
	// Command is the command to execute.
	Command string `json:"command"`
	// Args contains the command line arguments.
	Args []string `json:"args,omitempty"`
	// EnvFrom contains sources for inheriting environment variables.
	EnvFrom []EnvFromSource `json:"envFrom,omitempty"`
}

// NewCommand creates a new [Command] from a name and arguments.
// It accepts a base environment, which usually will be from [os.Environ].
func NewCommand(baseEnv []string, name string, args ...string) Command {
	c := Command{
		Command: name,
		Args:    args,
	}
	c.SetBaseEnv(baseEnv)

	return c
}

// ParseCommand splits a shell-style command line (e.g. `sops --verbose`)
// into a [Command].
func ParseCommand(baseEnv []string, line string) (Command, error) {
	words, err := shellwords.Parse(line)
	if err != nil {
		return Command{}, fmt.Errorf("parse command %q: %w", line, err)
	}

	if len(words) == 0 {
		return Command{}, ErrEmptyCommand
	}

	return NewCommand(baseEnv, words[0], words[1:]...), nil
}

func (c *Command) SetBaseEnv(baseEnv []string) {
	c.baseEnv = make(map[string]string, len(baseEnv))

	for _, envVar := range baseEnv {
		key, value, ok := strings.Cut(envVar, "=")
		if ok {
			c.baseEnv[key] = value
		}
	}
}

// AddEnvFrom adds environment variable sources.
func (c *Command) AddEnvFrom(envFrom ...EnvFromSource) {
	c.EnvFrom = append(c.EnvFrom, envFrom...)
}

// CompilePatterns compiles all regex patterns.
func (c *Command) CompilePatterns() error {
	for i, src := range c.EnvFrom {
		if src.CallerRef == nil {
			continue
		}

		_, err := src.CallerRef.Compile()
		if err != nil {
			return fmt.Errorf("envFrom[%d]: %w", i, err)
		}
	}

	return nil
}

// GetEnv constructs environment variables for command execution, sorted by name.
func (c *Command) GetEnv() []string {
	envMap := make(map[string]string)

	for key, value := range c.baseEnv {
		if slices.Contains(essentialVars, key) {
			envMap[key] = value
		}
	}

	for _, src := range c.EnvFrom {
		if src.CallerRef == nil {
			continue
		}

		// Invalid patterns are reported by CompilePatterns.
		pattern, err := src.CallerRef.Compile()
		if err == nil && pattern != nil {
			for key, value := range c.baseEnv {
				if pattern.MatchString(key) {
					envMap[key] = value
				}
			}
		}

		if name := src.CallerRef.Name; name != "" {
			if value, ok := c.baseEnv[name]; ok {
				envMap[name] = value
			}
		}
	}

	env := make([]string, 0, len(envMap))
	for key, value := range envMap {
		env = append(env, key+"="+value)
	}

	slices.Sort(env)

	return env
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Command}, c.Args...), " ")
}
