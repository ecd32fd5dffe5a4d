// Package descriptor loads rule, mapping and filter descriptors from YAML or
// JSONC files and builds registry snapshots from them.
//
// A descriptor path is a single file or a directory; in a directory every
// .yaml, .yml, .json and .jsonc file is read in lexical order and the lists
// are concatenated. Loading fails on the first invalid descriptor.
package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/solatis/metasync/internal/filter"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/types"
)

// File is the on-disk descriptor document.
//
//	filters:
//	  - id: isPicture
//	    expression: {any: [{all: [{field: type, op: eq, value: Picture}]}]}
//	  - id: jpeg
//	    cue: 'properties: "file:content": mimeType: "image/jpeg"'
//	rules:
//	  - {id: R1, filters: [isPicture], mappings: [M1]}
//	mappings:
//	  - id: M1
//	    blob: file:content
//	    metadata: [{name: "EXIF:Model", property: "imd:model"}]
type File struct {
	Filters  []FilterSpec              `yaml:"filters"`
	Rules    []RuleSpec                `yaml:"rules"`
	Mappings []types.MappingDescriptor `yaml:"mappings"`
}

// FilterSpec declares one filter; exactly one of Expression and CUE is set.
type FilterSpec struct {
	ID         string             `yaml:"id"`
	Expression *filter.Expression `yaml:"expression"`
	CUE        string             `yaml:"cue"`
}

// RuleSpec declares one rule. Enabled defaults to true.
type RuleSpec struct {
	ID       string   `yaml:"id"`
	Enabled  *bool    `yaml:"enabled"`
	Filters  []string `yaml:"filters"`
	Async    bool     `yaml:"async"`
	Mappings []string `yaml:"mappings"`
}

// Descriptor returns the rule descriptor for s.
func (s RuleSpec) Descriptor() types.RuleDescriptor {
	enabled := s.Enabled == nil || *s.Enabled
	return types.RuleDescriptor{
		ID:         s.ID,
		Enabled:    enabled,
		FilterIDs:  append([]string(nil), s.Filters...),
		Async:      s.Async,
		MappingIDs: append([]string(nil), s.Mappings...),
	}
}

// Validate implements validation.Validatable.
func (f FilterSpec) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.CUE,
			validation.When(f.Expression == nil, validation.Required.Error("either expression or cue is required")),
			validation.When(f.Expression != nil, validation.Empty.Error("expression and cue are mutually exclusive"))),
	)
}

// Validate implements validation.Validatable.
func (s RuleSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Filters, validation.Each(validation.Required)),
		validation.Field(&s.Mappings, validation.Each(validation.Required)),
	)
}

func validateMapping(m types.MappingDescriptor) error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.BlobPath, validation.Required),
		validation.Field(&m.Metadata,
			validation.Length(0, types.MaxMetadataDescriptors),
			validation.Each(validation.By(func(v interface{}) error {
				md := v.(types.MetadataDescriptor)
				return validation.ValidateStruct(&md,
					validation.Field(&md.Name, validation.Required),
					validation.Field(&md.PropertyPath, validation.Required),
				)
			}))),
	)
}

// Validate checks every descriptor of the file.
func (f *File) Validate() error {
	for i, spec := range f.Filters {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("filter %d (%s): %w", i, spec.ID, err)
		}
	}
	for i, spec := range f.Rules {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, spec.ID, err)
		}
	}
	for i, m := range f.Mappings {
		if err := validateMapping(m); err != nil {
			return fmt.Errorf("mapping %d (%s): %w", i, m.ID, err)
		}
	}
	return nil
}

// Parse decodes a descriptor document. JSON and JSONC (comments, trailing
// commas) are accepted for .json/.jsonc names, YAML otherwise.
func Parse(name string, data []byte) (*File, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &f, nil
}

// Sources lists the descriptor files under path.
func Sources(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsDescriptorFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// IsDescriptorFile reports whether name has a descriptor extension.
func IsDescriptorFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json", ".jsonc":
		return true
	}
	return false
}

// LoadFile reads and merges every descriptor file under path.
func LoadFile(path string) (*File, error) {
	sources, err := Sources(path)
	if err != nil {
		return nil, err
	}

	merged := &File{}
	for _, src := range sources {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src, err)
		}
		f, err := Parse(src, data)
		if err != nil {
			return nil, err
		}
		merged.Filters = append(merged.Filters, f.Filters...)
		merged.Rules = append(merged.Rules, f.Rules...)
		merged.Mappings = append(merged.Mappings, f.Mappings...)
	}
	return merged, nil
}

// Load reads the descriptors under path and builds an unpublished registry.
func Load(path string) (*rules.Registry, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(f)
}

// Build compiles the filters of f and builds a registry carrying them.
// A rule referencing an undeclared filter fails with types.ErrUnknownFilter.
func Build(f *File) (*rules.Registry, error) {
	set := filter.NewSet()
	for _, spec := range f.Filters {
		var flt filter.Filter
		var err error
		if spec.Expression != nil {
			flt, err = filter.Compile(*spec.Expression)
		} else {
			flt, err = filter.CompileCUE(spec.CUE)
		}
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", spec.ID, err)
		}
		if err := set.Register(spec.ID, flt); err != nil {
			return nil, err
		}
	}

	descriptors := make([]types.RuleDescriptor, 0, len(f.Rules))
	for _, spec := range f.Rules {
		for _, id := range spec.Filters {
			if !set.Has(id) {
				return nil, fmt.Errorf("rule %q: %w: %q", spec.ID, types.ErrUnknownFilter, id)
			}
		}
		descriptors = append(descriptors, spec.Descriptor())
	}

	reg, err := rules.NewRegistry(descriptors, f.Mappings)
	if err != nil {
		return nil, err
	}
	return reg.WithFilters(set), nil
}
