package domain

import "time"

const (
	// EmbeddingDimensions is the fixed dimensionality of the vector space.
	// Vectors of any other length are an integrity violation.
	EmbeddingDimensions = 1536

	// MaxContentChars bounds user-submitted content.
	MaxContentChars = 10000
	// MaxSourceChars bounds the provenance label.
	MaxSourceChars = 255
)

// Chunk is one stored unit of retrievable text: the content, its embedding
// in the model's vector space, and a label identifying where it came from.
// Chunks are immutable after creation and the store only grows.
type Chunk struct {
	ID        int64
	Content   string
	Embedding []float32
	Source    string
	AddedAt   time.Time
}

// ValidateChunkInput checks user-submitted content and source against the
// system bounds, reporting every violated field so a caller can correct
// each one independently.
func ValidateChunkInput(content, source string) error {
	var fields []FieldError

	if content == "" {
		fields = append(fields, FieldError{Field: "content", Message: "content is required"})
	} else if len([]rune(content)) > MaxContentChars {
		fields = append(fields, FieldError{Field: "content", Message: "content exceeds 10000 characters"})
	}

	if source == "" {
		fields = append(fields, FieldError{Field: "source", Message: "source is required"})
	} else if len([]rune(source)) > MaxSourceChars {
		fields = append(fields, FieldError{Field: "source", Message: "source exceeds 255 characters"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
