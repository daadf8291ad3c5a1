package signatures

import _ "embed"

//go:embed default_patterns.yaml
var defaultPatternsYAML []byte

// LoadDefault compiles the built-in signature catalog shipped with the
// binary, used when no external catalog path is configured.
func LoadDefault() (*Catalog, error) {
	return Load(defaultPatternsYAML)
}
