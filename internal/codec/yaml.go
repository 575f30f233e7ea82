package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"orgchart/internal/domain"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports graph data from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.GraphFragment, error) {
	var ff fileFragment
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&ff); err != nil {
		if err == io.EOF {
			return domain.NewGraphFragment(), nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return ff.fragment(), nil
}

// Export exports graph data to YAML
func (c *YAMLCodec) Export(fragment *domain.GraphFragment, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(newFileFragment(fragment)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
