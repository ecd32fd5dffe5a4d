// internal/filter/fieldpath_test.go
package filter

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/metasync/internal/types"
)

func decodeView(t *testing.T, data string) map[string]any {
	t.Helper()
	var view map[string]any
	if err := json.Unmarshal([]byte(data), &view); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return view
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []PathSegment
		wantErr error
	}{
		{
			name:  "single key",
			input: "type",
			want:  []PathSegment{{Key: "type"}},
		},
		{
			name:  "namespaced property",
			input: "properties.dc:title",
			want:  []PathSegment{{Key: "properties"}, {Key: "dc:title"}},
		},
		{
			name:  "array index",
			input: "facets[1]",
			want:  []PathSegment{{Key: "facets"}, {Index: 1, IsIndex: true}},
		},
		{
			name:  "bracket wildcard",
			input: "facets[*]",
			want:  []PathSegment{{Key: "facets"}, {Wildcard: true}},
		},
		{
			name:  "dot wildcard",
			input: "properties.*.mimeType",
			want:  []PathSegment{{Key: "properties"}, {Wildcard: true}, {Key: "mimeType"}},
		},
		{
			name:  "chained indices",
			input: "matrix[0][2]",
			want:  []PathSegment{{Key: "matrix"}, {Index: 0, IsIndex: true}, {Index: 2, IsIndex: true}},
		},
		{
			name:    "empty path",
			input:   "",
			wantErr: types.ErrInvalidPath,
		},
		{
			name:    "empty segment",
			input:   "a..b",
			wantErr: types.ErrInvalidPath,
		},
		{
			name:    "unterminated bracket",
			input:   "facets[0",
			wantErr: types.ErrInvalidPath,
		},
		{
			name:    "negative index",
			input:   "facets[-1]",
			wantErr: types.ErrInvalidPath,
		},
		{
			name:    "too many wildcards",
			input:   "a[*].b[*].c[*]",
			wantErr: types.ErrTooManyWildcards,
		},
		{
			name:    "too deep",
			input:   "a.b.c.d.e.f.g.h.i.j.k.l.m.n.o.p.q",
			wantErr: types.ErrPathTooDeep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePath(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) error = %v, want nil", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePath(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPath_RoundTrip(t *testing.T) {
	for _, input := range []string{"type", "properties.dc:title", "facets[1]", "facets[*]", "matrix[0][2].x"} {
		path, err := ParsePath(input)
		if err != nil {
			t.Fatalf("ParsePath(%q) error = %v", input, err)
		}
		if got := FormatPath(path); got != input {
			t.Errorf("FormatPath(ParsePath(%q)) = %q", input, got)
		}
	}
}

func TestResolve_Normal(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		data     string
		expected any
		wantErr  error
	}{
		{
			name:     "nested object traversal",
			path:     "properties.dc:title",
			data:     `{"properties": {"dc:title": "Sunset"}}`,
			expected: "Sunset",
		},
		{
			name:     "array index access",
			path:     "facets[0]",
			data:     `{"facets": ["Picture", "Versionable"]}`,
			expected: "Picture",
		},
		{
			name:     "wildcard first match",
			path:     "items[*].price",
			data:     `{"items": [{"name": "a"}, {"price": 20}, {"price": 30}]}`,
			expected: float64(20),
		},
		{
			name:     "wildcard on object sorted keys",
			path:     "*.value",
			data:     `{"z": {"value": 1}, "a": {"value": 2}, "m": {"value": 3}}`,
			expected: float64(2),
		},
		{
			name:    "missing key",
			path:    "properties.dc:source",
			data:    `{"properties": {"dc:title": "x"}}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "index out of range",
			path:    "facets[5]",
			data:    `{"facets": ["Picture"]}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "key on array",
			path:    "facets.name",
			data:    `{"facets": ["Picture"]}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "path through scalar",
			path:    "type.name",
			data:    `{"type": "File"}`,
			wantErr: types.ErrFieldNotFound,
		},
		{
			name:    "wildcard over empty array",
			path:    "facets[*]",
			data:    `{"facets": []}`,
			wantErr: types.ErrFieldNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			result, err := Resolve(path, decodeView(t, tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v, want nil", err)
			}
			if !result.Found {
				t.Fatalf("Found = false, want true")
			}
			if result.Value != tt.expected {
				t.Errorf("Value = %v, want %v", result.Value, tt.expected)
			}
		})
	}
}

func TestResolve_ResolvedPathReplacesWildcards(t *testing.T) {
	path, _ := ParsePath("items[*].price")
	result, err := Resolve(path, decodeView(t, `{"items": [{"name": "a"}, {"price": 20}]}`))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := FormatPath(result.ResolvedPath); got != "items[1].price" {
		t.Errorf("ResolvedPath = %q, want items[1].price", got)
	}
}

// Property-based test: resolution never panics on arbitrary paths
func TestResolve_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	view := map[string]any{
		"key": []any{map[string]any{"key": "value"}, nil, float64(3)},
	}

	properties.Property("resolution never crashes regardless of path", prop.ForAll(
		func(depth int, wildcards int, useArray bool) bool {
			path := make([]PathSegment, depth)
			wildcardCount := 0
			for i := 0; i < depth; i++ {
				switch {
				case wildcardCount < wildcards && i%2 == 0:
					path[i] = PathSegment{Wildcard: true}
					wildcardCount++
				case useArray && i%3 == 0:
					path[i] = PathSegment{Index: i, IsIndex: true}
				default:
					path[i] = PathSegment{Key: "key"}
				}
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve() panicked: %v", r)
				}
			}()

			_, _ = Resolve(path, view)
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: wildcard resolution is deterministic
func TestResolve_PropertyWildcardDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	path := []PathSegment{{Wildcard: true}, {Key: "value"}}

	properties.Property("object wildcard picks the smallest key", prop.ForAll(
		func(keys []string) bool {
			view := make(map[string]any, len(keys))
			smallest := ""
			for i, k := range keys {
				view[k] = map[string]any{"value": k}
				if i == 0 || k < smallest {
					smallest = k
				}
			}
			result, err := Resolve(path, view)
			if len(keys) == 0 {
				return errors.Is(err, types.ErrFieldNotFound)
			}
			return err == nil && result.Value == smallest
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
