package canonical

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// EncodingError indicates a value that cannot be represented
// deterministically. Fields are never silently dropped.
type EncodingError struct {
	Message string
	Cause   error
}

func (e *EncodingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("canonical encoding failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("canonical encoding failed: %s", e.Message)
}

func (e *EncodingError) Unwrap() error {
	return e.Cause
}

// Encode serializes a record into canonical bytes (RFC 8785): object keys
// sorted lexicographically at every nesting level, fixed number formatting,
// UTF-8. Logically identical content always yields identical bytes.
func Encode(record interface{}) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, &EncodingError{Message: "unsupported value", Cause: err}
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &EncodingError{Message: "canonicalization rejected value", Cause: err}
	}

	return out, nil
}
