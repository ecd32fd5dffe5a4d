package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/metasync/internal/types"
)

func jpeg() *types.Blob {
	return &types.Blob{Filename: "china.jpg", MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}

func TestReconcile_DecisionTable(t *testing.T) {
	tests := []struct {
		name         string
		blobDirty    bool
		mappingDirty bool
		want         types.Direction
	}{
		{"both dirty: record wins", true, true, types.PropagateToBinary},
		{"blob dirty only", true, false, types.PropagateToRecord},
		{"mapping dirty only", false, true, types.PropagateToBinary},
		{"nothing dirty", false, false, types.NoOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFakeRecord()
			rec.blobs["file:content"] = jpeg()
			rec.props["title"] = "Jane"
			rec.dirty["file:content"] = tt.blobDirty
			rec.dirty["title"] = tt.mappingDirty

			got, err := Reconcile(artistMapping, rec)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if got.Direction != tt.want {
				t.Errorf("Direction = %v, want %v", got.Direction, tt.want)
			}
			if got.BlobDirty != tt.blobDirty || got.MappingDirty != tt.mappingDirty {
				t.Errorf("dirty = (%v, %v), want (%v, %v)", got.BlobDirty, got.MappingDirty, tt.blobDirty, tt.mappingDirty)
			}
		})
	}
}

func TestReconcile_AbsentBlobIsNoOp(t *testing.T) {
	rec := newFakeRecord()
	rec.set("title", "Jane")

	got, err := Reconcile(artistMapping, rec)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Direction != types.NoOp {
		t.Errorf("Direction = %v, want NoOp", got.Direction)
	}
}

func TestReconcile_RecordEditPropagatesToBinary(t *testing.T) {
	rec := newFakeRecord()
	rec.blobs["file:content"] = jpeg()
	rec.set("title", "Jane")

	got, err := Reconcile(artistMapping, rec)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Direction != types.PropagateToBinary {
		t.Fatalf("Direction = %v, want PropagateToBinary", got.Direction)
	}
	if !reflect.DeepEqual(got.Values, map[string]any{"Artist": "Jane"}) {
		t.Errorf("Values = %v, want {Artist: Jane}", got.Values)
	}
	if got.TagKeys != nil {
		t.Errorf("TagKeys = %v, want nil", got.TagKeys)
	}
}

func TestReconcile_FreshBlobPropagatesToRecord(t *testing.T) {
	rec := newFakeRecord()
	rec.attach("file:content", jpeg())
	rec.props["title"] = "old"

	got, err := Reconcile(artistMapping, rec)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Direction != types.PropagateToRecord {
		t.Fatalf("Direction = %v, want PropagateToRecord", got.Direction)
	}
	if !reflect.DeepEqual(got.TagKeys, []string{"Artist"}) {
		t.Errorf("TagKeys = %v, want [Artist]", got.TagKeys)
	}
	if got.Persist {
		t.Error("Persist = true for a record not yet created")
	}

	assignments := got.Assignments(map[string]any{"Artist": "Jane", "Model": "Nexus"})
	if !reflect.DeepEqual(assignments, map[string]string{"title": "Jane"}) {
		t.Errorf("Assignments() = %v, want {title: Jane}", assignments)
	}
}

func TestReconcile_PersistOnlyExistingRecords(t *testing.T) {
	rec := newFakeRecord()
	rec.exists = true
	rec.attach("file:content", jpeg())

	got, err := Reconcile(artistMapping, rec)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !got.Persist {
		t.Error("Persist = false for an existing record")
	}
}

func TestReconcile_UnsetPropertyCarriesNil(t *testing.T) {
	mapping := types.MappingDescriptor{
		ID:       "M2",
		BlobPath: "file:content",
		Metadata: []types.MetadataDescriptor{
			{Name: "Artist", PropertyPath: "title"},
			{Name: "Album", PropertyPath: "album"},
		},
	}
	rec := newFakeRecord()
	rec.blobs["file:content"] = jpeg()
	rec.set("title", "Jane")

	got, err := Reconcile(mapping, rec)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	want := map[string]any{"Artist": "Jane", "Album": nil}
	if !reflect.DeepEqual(got.Values, want) {
		t.Errorf("Values = %v, want %v", got.Values, want)
	}
}

func TestReconcile_MappingWithoutBindingsIsNoOp(t *testing.T) {
	rec := newFakeRecord()
	rec.attach("file:content", jpeg())

	got, err := Reconcile(types.MappingDescriptor{ID: "empty", BlobPath: "file:content"}, rec)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Direction != types.NoOp {
		t.Errorf("Direction = %v, want NoOp", got.Direction)
	}
}

type notABlobRecord struct{ *fakeRecord }

func (notABlobRecord) Binary(path string) (*types.Blob, error) {
	return nil, fmt.Errorf("%w: %s", types.ErrNotABlob, path)
}

func TestReconcile_BlobPathErrorPropagates(t *testing.T) {
	_, err := Reconcile(artistMapping, notABlobRecord{newFakeRecord()})
	if !errors.Is(err, types.ErrNotABlob) {
		t.Errorf("Reconcile() error = %v, want ErrNotABlob", err)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	for _, start := range []struct {
		name      string
		blobDirty bool
		propDirty bool
	}{
		{"after record edit", false, true},
		{"after blob attach", true, false},
		{"after both", true, true},
	} {
		t.Run(start.name, func(t *testing.T) {
			rec := newFakeRecord()
			rec.blobs["file:content"] = jpeg()
			rec.props["title"] = "Jane"
			rec.dirty["file:content"] = start.blobDirty
			rec.dirty["title"] = start.propDirty

			first, err := Reconcile(artistMapping, rec)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if first.Direction == types.NoOp {
				t.Fatalf("first Direction = NoOp")
			}
			for path, value := range first.Assignments(map[string]any{"Artist": "Jane"}) {
				rec.props[path] = value
			}
			rec.save()

			second, err := Reconcile(artistMapping, rec)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if second.Direction != types.NoOp {
				t.Errorf("second Direction = %v, want NoOp", second.Direction)
			}
		})
	}
}

// Property-based test: a dirty mapped property always beats a dirty blob
func TestReconcile_PropertyRecordWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("never PropagateToRecord while a mapped property is dirty", prop.ForAll(
		func(blobDirty bool, propDirty []bool) bool {
			mapping := types.MappingDescriptor{ID: "M", BlobPath: "blob"}
			rec := newFakeRecord()
			rec.blobs["blob"] = jpeg()
			rec.dirty["blob"] = blobDirty

			anyDirty := false
			for i, dirty := range propDirty {
				path := fmt.Sprintf("p%d", i)
				mapping.Metadata = append(mapping.Metadata, types.MetadataDescriptor{Name: fmt.Sprintf("T%d", i), PropertyPath: path})
				rec.props[path] = i
				rec.dirty[path] = dirty
				anyDirty = anyDirty || dirty
			}

			got, err := Reconcile(mapping, rec)
			if err != nil {
				return false
			}
			switch {
			case len(propDirty) == 0:
				return got.Direction == types.NoOp
			case anyDirty:
				return got.Direction == types.PropagateToBinary && len(got.Values) == len(propDirty)
			case blobDirty:
				return got.Direction == types.PropagateToRecord && len(got.TagKeys) == len(propDirty)
			default:
				return got.Direction == types.NoOp
			}
		},
		gen.Bool(),
		gen.SliceOfN(8, gen.Bool()),
	))

	properties.Property("Conflict is never produced", prop.ForAll(
		func(blobDirty, propDirty bool) bool {
			rec := newFakeRecord()
			rec.blobs["file:content"] = jpeg()
			rec.props["title"] = "x"
			rec.dirty["file:content"] = blobDirty
			rec.dirty["title"] = propDirty
			got, err := Reconcile(artistMapping, rec)
			return err == nil && got.Direction != types.Conflict
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestStringForm(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{"Nexus", "Nexus"},
		{float64(2), "2"},
		{2.4, "2.4"},
		{json.Number("12345678901234567890"), "12345678901234567890"},
		{[]any{json.Number("1.50"), "x"}, "1.50, x"},
		{true, "true"},
		{[]any{"a", float64(1)}, "a, 1"},
		{map[string]any{"b": "2", "a": "1"}, "a=1, b=2"},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		if got := StringForm(tt.value); got != tt.want {
			t.Errorf("StringForm(%#v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
