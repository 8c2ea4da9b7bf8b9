// Package sandbox runs submitted programs: it materializes the source in a
// per-request workspace, compiles it when the language requires it, runs it
// under a deadline and captures what it printed.
package sandbox

import (
	"code-lab/domain/execution"
	"code-lab/errors"
	"fmt"
	"path/filepath"
	"regexp"
	goruntime "runtime"
	"strings"
)

type Kind string

const (
	// Interpreted programs are handed to an interpreter as a source file.
	Interpreted Kind = "interpreted"
	// Compiled programs go through a compile step producing an artifact first.
	Compiled Kind = "compiled"
	// Passthrough sources are returned as output, nothing is spawned.
	Passthrough Kind = "passthrough"
)

// Placeholders expanded in compile and run commands.
const (
	SourcePlaceholder   = "{source}"
	ArtifactPlaceholder = "{artifact}"
	EntryPlaceholder    = "{entry}"
	DirPlaceholder      = "{dir}"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Adapter describes how one language is materialized, compiled and run.
type Adapter struct {
	Language execution.Language `yaml:"language"`
	Kind     Kind               `yaml:"kind"`
	// Extension of the materialized source file, dot included.
	Extension string `yaml:"extension"`
	// DefaultEntry names the source (and artifact) when nothing better is known.
	DefaultEntry string `yaml:"defaultEntry"`
	// EntryPattern infers the entry point from the source text.
	// Its first capture group is the name.
	EntryPattern string   `yaml:"entryPattern"`
	Compile      []string `yaml:"compile"`
	Run          []string `yaml:"run"`

	entryPattern *regexp.Regexp
}

// Plan is what an adapter decided for one request.
type Plan struct {
	Entry    string
	Source   string
	Artifact string
	Compile  []string
	Run      []string
}

func (a Adapter) Validate() error {
	if strings.TrimSpace(string(a.Language)) == "" {
		return fmt.Errorf("%w: language is required", errors.ErrInvalidAdapter)
	}
	switch a.Kind {
	case Passthrough:
		return nil
	case Interpreted:
		if len(a.Compile) > 0 {
			return fmt.Errorf("%w: %s is interpreted but declares a compile step", errors.ErrInvalidAdapter, a.Language)
		}
	case Compiled:
		if len(a.Compile) == 0 {
			return fmt.Errorf("%w: %s is compiled but declares no compile step", errors.ErrInvalidAdapter, a.Language)
		}
	default:
		return fmt.Errorf("%w: %s has unknown kind %q", errors.ErrInvalidAdapter, a.Language, a.Kind)
	}
	if len(a.Run) == 0 {
		return fmt.Errorf("%w: %s declares no run step", errors.ErrInvalidAdapter, a.Language)
	}
	if a.Extension == "" || a.DefaultEntry == "" {
		return fmt.Errorf("%w: %s needs an extension and a default entry", errors.ErrInvalidAdapter, a.Language)
	}
	if a.EntryPattern != "" {
		if _, err := regexp.Compile(a.EntryPattern); err != nil {
			return fmt.Errorf("%w: %s entry pattern: %v", errors.ErrInvalidAdapter, a.Language, err)
		}
	}
	return nil
}

// compiled returns a copy of the adapter holding its compiled pattern.
// Validate must have succeeded.
func (a Adapter) compiled() Adapter {
	if a.EntryPattern != "" {
		a.entryPattern = regexp.MustCompile(a.EntryPattern)
	}
	return a
}

// Plan names the source and artifact of a request run in dir.
// The entry point comes from the source text when the adapter can infer it,
// then from the submitted filename, then from the adapter default.
func (a Adapter) Plan(filename, source, dir string) Plan {
	entry := a.inferEntry(filename, source)
	sourceName := entry + a.Extension
	artifact := filepath.Join(dir, entry+executableSuffix())

	replacer := strings.NewReplacer(
		SourcePlaceholder, sourceName,
		ArtifactPlaceholder, artifact,
		EntryPlaceholder, entry,
		DirPlaceholder, dir,
	)
	return Plan{
		Entry:    entry,
		Source:   sourceName,
		Artifact: artifact,
		Compile:  expand(replacer, a.Compile),
		Run:      expand(replacer, a.Run),
	}
}

func (a Adapter) inferEntry(filename, source string) string {
	if a.entryPattern != nil {
		if match := a.entryPattern.FindStringSubmatch(source); len(match) > 1 && safeName.MatchString(match[1]) {
			return match[1]
		}
	}
	base := filepath.Base(filepath.Clean(filename))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if filename != "" && safeName.MatchString(stem) {
		return stem
	}
	return a.DefaultEntry
}

func expand(replacer *strings.Replacer, args []string) []string {
	if len(args) == 0 {
		return nil
	}
	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = replacer.Replace(arg)
	}
	return expanded
}

func executableSuffix() string {
	if goruntime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
