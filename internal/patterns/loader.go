package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// fileSpec is the on-disk layout of a custom pattern library
type fileSpec struct {
	Version        string        `yaml:"version"`
	ExtendsBuiltin bool          `yaml:"extends_builtin"`
	Patterns       []patternSpec `yaml:"patterns"`
	Keywords       struct {
		Educational   []string `yaml:"educational"`
		AdviceSeeking []string `yaml:"advice_seeking"`
	} `yaml:"keywords"`
}

type patternSpec struct {
	Name            string `yaml:"name"`
	Category        string `yaml:"category"`
	Severity        string `yaml:"severity"`
	Expr            string `yaml:"expr"`
	Replacement     string `yaml:"replacement"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// LoadFile reads a YAML pattern library from disk
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern library: %w", err)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("pattern library %s: %w", path, err)
	}
	return lib, nil
}

// Parse decodes a YAML pattern library. With extends_builtin set, the file's
// patterns are appended to the builtin set and a pattern with the same
// category and name replaces the builtin one.
func Parse(data []byte) (*Library, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	custom := make([]Pattern, 0, len(spec.Patterns))
	for _, ps := range spec.Patterns {
		p, err := ps.compile()
		if err != nil {
			return nil, err
		}
		custom = append(custom, p)
	}

	educational := spec.Keywords.Educational
	adviceSeeking := spec.Keywords.AdviceSeeking
	patterns := custom

	if spec.ExtendsBuiltin {
		base := Builtin()
		overrides := make(map[string]Pattern, len(custom))
		for _, p := range custom {
			overrides[p.Flag()] = p
		}
		patterns = make([]Pattern, 0, len(base.patterns)+len(custom))
		for _, p := range base.patterns {
			if o, ok := overrides[p.Flag()]; ok {
				patterns = append(patterns, o)
				delete(overrides, p.Flag())
				continue
			}
			patterns = append(patterns, p)
		}
		for _, p := range custom {
			if _, pending := overrides[p.Flag()]; pending {
				patterns = append(patterns, p)
			}
		}
		educational = append(append([]string(nil), base.educational...), educational...)
		adviceSeeking = append(append([]string(nil), base.adviceSeeking...), adviceSeeking...)
	}

	return NewLibrary(spec.Version, patterns, educational, adviceSeeking)
}

func (ps patternSpec) compile() (Pattern, error) {
	category, err := ParseCategory(ps.Category)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", ps.Name, err)
	}
	severity, err := ParseSeverity(ps.Severity)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", ps.Name, err)
	}
	source := ps.Expr
	if ps.CaseInsensitive {
		source = "(?i)" + source
	}
	expr, err := regexp.Compile(source)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: invalid expression: %w", ps.Name, err)
	}
	return Pattern{
		Name:        ps.Name,
		Category:    category,
		Severity:    severity,
		Expr:        expr,
		Replacement: ps.Replacement,
	}, nil
}
