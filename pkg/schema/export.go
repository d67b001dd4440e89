package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// exportDoc is the on-disk shape of the contract export: the only coupling
// point between planner/executor and the index schema, written for audit.
type exportDoc struct {
	SchemaVersion string      `yaml:"schema_version"`
	Fields        []FieldSpec `yaml:"fields"`
}

// Export writes the filter-field contract to a YAML file, fields sorted by
// name for stable diffs.
func Export(path string) error {
	doc := exportDoc{SchemaVersion: Version}
	for _, spec := range Contract {
		doc.Fields = append(doc.Fields, spec)
	}
	sort.Slice(doc.Fields, func(i, j int) bool {
		return doc.Fields[i].Field < doc.Fields[j].Field
	})

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal schema contract: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write schema contract: %w", err)
	}
	return nil
}
