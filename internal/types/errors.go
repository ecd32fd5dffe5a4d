package types

import "errors"

// Sentinel errors for metasync operations.
var (
	// ErrUnknownFilter indicates a rule references a filter id nobody registered.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrProcessorNotFound indicates an explicitly requested processor is not registered.
	ErrProcessorNotFound = errors.New("metadata processor not found")

	// ErrExtractionFailed indicates the extraction/writing tool failed.
	ErrExtractionFailed = errors.New("metadata extraction failed")

	// ErrDuplicateRule indicates two rule descriptors share an id.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrDuplicateMapping indicates two mapping descriptors share an id.
	ErrDuplicateMapping = errors.New("duplicate mapping id")

	// ErrDuplicateTagName indicates a mapping binds the same tag key twice.
	ErrDuplicateTagName = errors.New("duplicate tag name in mapping")

	// ErrDuplicatePropertyPath indicates a mapping binds the same property twice.
	ErrDuplicatePropertyPath = errors.New("duplicate property path in mapping")

	// ErrMappingNotFound indicates a mapping id is absent from the registry.
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrDocumentNotFound indicates a document id is absent from the store.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrPropertyNotFound indicates a property path is not set on a document.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrNotABlob indicates a blob was requested from a non-blob property.
	ErrNotABlob = errors.New("property does not hold a blob")

	// ErrPathTooDeep indicates a filter field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyWildcards indicates a filter field path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("field path has too many wildcards")

	// ErrInvalidPath indicates a filter field path could not be parsed.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrTooManyInValues indicates an IN operator exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("IN operator has too many values")

	// ErrEmptyExpression indicates a condition filter has no conditions.
	ErrEmptyExpression = errors.New("filter expression is empty")

	// ErrInvalidOperator indicates an unknown operator name.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrCoercionFailed indicates type coercion failed.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")
)
