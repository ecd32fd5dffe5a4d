package filter

import (
	"errors"
	"testing"

	"github.com/solatis/metasync/internal/types"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		fieldType FieldType
		wantValue any
		wantNull  bool
		wantErr   error
	}{
		{name: "numeric: string to float64", value: "25", fieldType: FieldTypeNumeric, wantValue: 25.0},
		{name: "numeric: float64 passthrough", value: 42.5, fieldType: FieldTypeNumeric, wantValue: 42.5},
		{name: "numeric: int to float64", value: 100, fieldType: FieldTypeNumeric, wantValue: 100.0},
		{name: "numeric: int64 to float64", value: int64(999), fieldType: FieldTypeNumeric, wantValue: 999.0},
		{name: "numeric: string with whitespace", value: "  42  ", fieldType: FieldTypeNumeric, wantValue: 42.0},
		{name: "numeric: whitespace only", value: "   ", fieldType: FieldTypeNumeric, wantErr: types.ErrCoercionFailed},
		{name: "numeric: non-numeric string", value: "f/2.4", fieldType: FieldTypeNumeric, wantErr: types.ErrCoercionFailed},
		{name: "numeric: boolean rejected", value: true, fieldType: FieldTypeNumeric, wantErr: types.ErrCoercionFailed},
		{name: "text: string passthrough", value: "Nikon", fieldType: FieldTypeText, wantValue: "Nikon"},
		{name: "text: float renders shortest", value: 2.4, fieldType: FieldTypeText, wantValue: "2.4"},
		{name: "text: int renders", value: 7, fieldType: FieldTypeText, wantValue: "7"},
		{name: "text: bool renders", value: false, fieldType: FieldTypeText, wantValue: "false"},
		{name: "text: map rejected", value: map[string]any{"a": 1}, fieldType: FieldTypeText, wantErr: types.ErrCoercionFailed},
		{name: "boolean: bool passthrough", value: true, fieldType: FieldTypeBoolean, wantValue: true},
		{name: "boolean: string rejected", value: "true", fieldType: FieldTypeBoolean, wantErr: types.ErrCoercionFailed},
		{name: "any: preserves type", value: 3, fieldType: FieldTypeAny, wantValue: 3},
		{name: "null input", value: nil, fieldType: FieldTypeText, wantNull: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.fieldType)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Coerce() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() error = %v, want nil", err)
			}
			if got.IsNull != tt.wantNull {
				t.Errorf("IsNull = %v, want %v", got.IsNull, tt.wantNull)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Value = %v (%T), want %v (%T)", got.Value, got.Value, tt.wantValue, tt.wantValue)
			}
		})
	}
}

func TestParseFieldType(t *testing.T) {
	tests := map[string]FieldType{
		"":        FieldTypeAny,
		"any":     FieldTypeAny,
		"numeric": FieldTypeNumeric,
		"Number":  FieldTypeNumeric,
		"text":    FieldTypeText,
		"string":  FieldTypeText,
		"bool":    FieldTypeBoolean,
	}
	for name, want := range tests {
		got, err := ParseFieldType(name)
		if err != nil {
			t.Fatalf("ParseFieldType(%q) error = %v", name, err)
		}
		if got != want {
			t.Errorf("ParseFieldType(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseFieldType("blob"); err == nil {
		t.Error("ParseFieldType(blob) error = nil, want error")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		op     Operator
		value  any
		target any
		want   bool
	}{
		{"eq numbers across kinds", OpEq, float64(3), 3, true},
		{"eq strings", OpEq, "a", "a", true},
		{"eq string vs number", OpEq, "3", float64(3), false},
		{"neq", OpNeq, "a", "b", true},
		{"lt", OpLt, 2.0, 3.0, true},
		{"gte equal", OpGte, 3.0, 3.0, true},
		{"gt incomparable never matches", OpGt, "x", 1.0, false},
		{"lt incomparable never matches", OpLt, "x", 1.0, false},
		{"prefix", OpPrefix, "image/jpeg", "image/", true},
		{"suffix", OpSuffix, "report.pdf", ".pdf", true},
		{"contains", OpContains, "Mirko Nasato", "Nasato", true},
		{"prefix non-string", OpPrefix, 12.0, "1", false},
		{"in hit", OpIn, "Picture", []any{"File", "Picture"}, true},
		{"in miss", OpIn, "Note", []any{"File", "Picture"}, false},
		{"exists", OpExists, "x", nil, true},
		{"is_null", OpIsNull, nil, nil, true},
		{"unspecified", OpUnspecified, "x", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.op, tt.value, tt.target); got != tt.want {
				t.Errorf("Compare(%v, %v, %v) = %v, want %v", tt.op, tt.value, tt.target, got, tt.want)
			}
		})
	}
}

func TestParseOperator_Unknown(t *testing.T) {
	if _, err := ParseOperator("matches"); !errors.Is(err, types.ErrInvalidOperator) {
		t.Errorf("ParseOperator(matches) error = %v, want ErrInvalidOperator", err)
	}
}
