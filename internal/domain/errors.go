package domain

import "errors"

// Errors are grouped by the pipeline stage that raises them. Callers
// classify with errors.Is; implementations wrap with fmt.Errorf("%w").
var (
	// ErrExtraction indicates a source file could not be read or parsed.
	// The document is skipped and the corpus run continues.
	ErrExtraction = errors.New("extraction failed")

	// ErrUnsupportedFormat indicates an unknown source file extension.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyDocument indicates a document with no extractable text.
	ErrEmptyDocument = errors.New("empty document")

	// ErrDuplicateTitle indicates two source files map to the same
	// document title.
	ErrDuplicateTitle = errors.New("duplicate title")

	// ErrEmbedding indicates the embedder failed for a chunk or query.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch indicates vectors of different length were mixed
	// in one index. Vectors are never coerced.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidQuery indicates a retrieval request that cannot be executed.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrIndexUnavailable indicates the vector index or a model it depends
	// on could not serve the request.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrGeneration indicates the generator failed to produce an answer.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidInput indicates malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSchema indicates a persisted artifact failed schema validation.
	ErrSchema = errors.New("schema violation")
)
