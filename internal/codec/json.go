package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"orgchart/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports graph data from JSON
func (c *JSONCodec) Parse(r io.Reader) (*domain.GraphFragment, error) {
	var ff fileFragment
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&ff); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return ff.fragment(), nil
}

// Export exports graph data to JSON
func (c *JSONCodec) Export(fragment *domain.GraphFragment, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(newFileFragment(fragment)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
