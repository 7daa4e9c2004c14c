package definition

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Format is the encoding of a definition.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// ParseFormat accepts yaml, yml, json and cue, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// Load reads and validates the definition at path.
func Load(path string) (*Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition: %w", err)
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a definition. Every format is unified with
// the #Form schema before it is decoded.
func Parse(data []byte, format Format) (*Definition, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	formSchema := schema.LookupPath(cue.ParsePath("#Form"))

	var val cue.Value
	switch format {
	case FormatYAML, FormatJSON:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", format, err)
		}
		if raw == nil {
			return nil, fmt.Errorf("decoding %s: empty definition", format)
		}
		val = ctx.Encode(raw)
	case FormatCUE:
		val = ctx.CompileBytes(data, cue.Filename("definition.cue"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", format, err)
	}

	unified := formSchema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating definition: %w", err)
	}

	b, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("exporting definition: %w", err)
	}
	var def Definition
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, fmt.Errorf("validating definition: %w", err)
	}
	return &def, nil
}

// Marshal encodes d as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
