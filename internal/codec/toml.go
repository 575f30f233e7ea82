package codec

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"orgchart/internal/domain"
)

// TOMLCodec handles TOML import/export
type TOMLCodec struct{}

// NewTOMLCodec creates a new TOML codec
func NewTOMLCodec() *TOMLCodec {
	return &TOMLCodec{}
}

// Format returns the codec format identifier
func (c *TOMLCodec) Format() string {
	return "toml"
}

// Parse imports graph data from TOML
func (c *TOMLCodec) Parse(r io.Reader) (*domain.GraphFragment, error) {
	var ff fileFragment
	md, err := toml.NewDecoder(r).Decode(&ff)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to parse TOML: unknown key %s", undecoded[0])
	}

	return ff.fragment(), nil
}

// Export exports graph data to TOML
func (c *TOMLCodec) Export(fragment *domain.GraphFragment, w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(newFileFragment(fragment)); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	return nil
}
