package normalize

import (
	"encoding/json"
	"fmt"
	"os"
)

// AliasMap maps a raw variant key to its canonical key. Both sides are
// expected to already be in cleaned-key form; Load rejects anything else so
// a bad map is caught at startup rather than at query time.
type AliasMap map[string]string

// LoadAliasMap reads a flat JSON object of raw_variant_key -> canonical_key.
func LoadAliasMap(path string) (AliasMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias map %s: %w", path, err)
	}

	var m AliasMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse alias map %s: %w", path, err)
	}

	for variant, canonical := range m {
		if variant == "" || canonical == "" {
			return nil, fmt.Errorf("alias map %s: empty key or value", path)
		}
		if variant != CleanKey(variant) {
			return nil, fmt.Errorf("alias map %s: variant %q is not in normalized key form", path, variant)
		}
		if canonical != CleanKey(canonical) {
			return nil, fmt.Errorf("alias map %s: canonical %q is not in normalized key form", path, canonical)
		}
	}
	return m, nil
}
