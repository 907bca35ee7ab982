package embeddings

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a vector to the JSON text stored with a task. An empty
// or nil vector encodes as "[]".
func Encode(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vec)
	if err != nil {
		// NaN and Inf are the only values json rejects
		return "[]"
	}
	return string(b)
}

// Decode parses a stored embedding. "" and "[]" decode to an empty vector.
func Decode(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return vec, nil
}
