package sandbox

import (
	"code-lab/domain/execution"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

func builtinAdapters() []Adapter {
	return []Adapter{
		{Language: "python", Kind: Interpreted, Extension: ".py", DefaultEntry: "main",
			Run: []string{"python3", SourcePlaceholder}},
		{Language: "javascript", Kind: Interpreted, Extension: ".js", DefaultEntry: "main",
			Run: []string{"node", SourcePlaceholder}},
		{Language: "c", Kind: Compiled, Extension: ".c", DefaultEntry: "main",
			Compile: []string{"gcc", SourcePlaceholder, "-o", ArtifactPlaceholder},
			Run:     []string{ArtifactPlaceholder}},
		{Language: "cpp", Kind: Compiled, Extension: ".cpp", DefaultEntry: "main",
			Compile: []string{"g++", SourcePlaceholder, "-o", ArtifactPlaceholder},
			Run:     []string{ArtifactPlaceholder}},
		{Language: "java", Kind: Compiled, Extension: ".java", DefaultEntry: "Main",
			EntryPattern: `public\s+class\s+(\w+)`,
			Compile:      []string{"javac", SourcePlaceholder},
			Run:          []string{"java", "-cp", DirPlaceholder, EntryPlaceholder}},
		{Language: "html", Kind: Passthrough},
	}
}

// Languages resolves a requested language to its adapter.
// It is read-only once built and safe for concurrent use.
type Languages struct {
	adapters map[execution.Language]Adapter
}

// NewLanguages builds the built-in table, extended or overridden by extra.
func NewLanguages(extra ...Adapter) (*Languages, error) {
	l := &Languages{adapters: make(map[execution.Language]Adapter)}
	for _, adapter := range append(builtinAdapters(), extra...) {
		if err := adapter.Validate(); err != nil {
			return nil, err
		}
		l.adapters[normalize(adapter.Language)] = adapter.compiled()
	}
	return l, nil
}

func (l *Languages) Resolve(language execution.Language) (Adapter, bool) {
	adapter, ok := l.adapters[normalize(language)]
	return adapter, ok
}

// Names lists the supported languages, sorted.
func (l *Languages) Names() []execution.Language {
	names := lo.Keys(l.adapters)
	slices.Sort(names)
	return names
}

type languagesFile struct {
	Languages []Adapter `yaml:"languages"`
}

// LoadLanguages reads extra adapters from a YAML file:
//
//	languages:
//	  - language: go
//	    kind: compiled
//	    extension: .go
//	    defaultEntry: main
//	    compile: [go, build, -o, "{artifact}", "{source}"]
//	    run: ["{artifact}"]
func LoadLanguages(path string) ([]Adapter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read languages file: %w", err)
	}
	var file languagesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse languages file: %w", err)
	}
	return file.Languages, nil
}

func normalize(language execution.Language) execution.Language {
	return execution.Language(strings.ToLower(strings.TrimSpace(string(language))))
}
