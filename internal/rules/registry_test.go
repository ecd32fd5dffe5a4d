package rules

import (
	"errors"
	"sync"
	"testing"

	"github.com/solatis/metasync/internal/types"
)

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		rules    []types.RuleDescriptor
		mappings []types.MappingDescriptor
		wantErr  error
	}{
		{
			name:    "duplicate rule id",
			rules:   []types.RuleDescriptor{{ID: "R1"}, {ID: "R1"}},
			wantErr: types.ErrDuplicateRule,
		},
		{
			name:     "duplicate mapping id",
			mappings: []types.MappingDescriptor{{ID: "M1"}, {ID: "M1"}},
			wantErr:  types.ErrDuplicateMapping,
		},
		{
			name: "duplicate tag name",
			mappings: []types.MappingDescriptor{{ID: "M1", Metadata: []types.MetadataDescriptor{
				{Name: "Artist", PropertyPath: "dc:title"},
				{Name: "Artist", PropertyPath: "dc:creator"},
			}}},
			wantErr: types.ErrDuplicateTagName,
		},
		{
			name: "duplicate property path",
			mappings: []types.MappingDescriptor{{ID: "M1", Metadata: []types.MetadataDescriptor{
				{Name: "Artist", PropertyPath: "dc:title"},
				{Name: "Title", PropertyPath: "dc:title"},
			}}},
			wantErr: types.ErrDuplicatePropertyPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.rules, tt.mappings)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewRegistry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Lookups(t *testing.T) {
	reg := mustRegistry(t,
		[]types.RuleDescriptor{{ID: "R2"}, {ID: "R1"}},
		[]types.MappingDescriptor{{ID: "Mb"}, {ID: "Ma"}})

	if got := ruleIDs(reg.Rules()); got[0] != "R2" || got[1] != "R1" {
		t.Errorf("Rules() = %v, want declaration order [R2 R1]", got)
	}
	if got := mappingIDs(reg.Mappings()); got[0] != "Ma" || got[1] != "Mb" {
		t.Errorf("Mappings() = %v, want sorted [Ma Mb]", got)
	}
	if _, ok := reg.Rule("R1"); !ok {
		t.Error("Rule(R1) not found")
	}
	if _, ok := reg.Mapping("Mz"); ok {
		t.Error("Mapping(Mz) found, want absent")
	}
}

func TestRegistry_IsolatedFromInput(t *testing.T) {
	rules := []types.RuleDescriptor{{ID: "R1", MappingIDs: []string{"M1"}}}
	reg := mustRegistry(t, rules, nil)

	rules[0].MappingIDs[0] = "changed"
	got, _ := reg.Rule("R1")
	if got.MappingIDs[0] != "M1" {
		t.Errorf("snapshot mutated through input slice: %v", got.MappingIDs)
	}
}

func TestRegistry_Digest(t *testing.T) {
	rules := []types.RuleDescriptor{{ID: "R1", Enabled: true, MappingIDs: []string{"M1"}}}

	a := mustRegistry(t, rules, []types.MappingDescriptor{artistMapping, {ID: "M2"}})
	b := mustRegistry(t, rules, []types.MappingDescriptor{{ID: "M2"}, artistMapping})
	if a.Digest() != b.Digest() {
		t.Errorf("Digest differs for same descriptors in different mapping order")
	}
	if len(a.Digest()) != 64 {
		t.Errorf("len(Digest) = %d, want 64 hex chars", len(a.Digest()))
	}

	disabled := []types.RuleDescriptor{{ID: "R1", Enabled: false, MappingIDs: []string{"M1"}}}
	c := mustRegistry(t, disabled, []types.MappingDescriptor{artistMapping, {ID: "M2"}})
	if a.Digest() == c.Digest() {
		t.Errorf("Digest equal after a rule changed")
	}
}

func TestHolder_GenerationsAreMonotonic(t *testing.T) {
	reg := mustRegistry(t, nil, nil)
	h := NewHolder(reg)
	if reg.Generation() != 0 {
		t.Errorf("unpublished Generation = %d, want 0", reg.Generation())
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish(reg)
			_ = h.Load().Rules()
		}()
	}
	wg.Wait()

	if got := h.Load().Generation(); got != 9 {
		t.Errorf("Generation after 9 publishes = %d, want 9", got)
	}
}
