package yamllog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// readRecords decodes every record of a log file in order. A document may be
// a single record or a sequence of records.
func readRecords[T any](path string, apply func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: document %d: %w", path, doc, err)
		}
		if len(node.Content) == 0 {
			continue
		}

		body := node.Content[0]
		switch body.Kind {
		case yaml.SequenceNode:
			for _, item := range body.Content {
				var rec T
				if err := item.Decode(&rec); err != nil {
					return fmt.Errorf("%s: document %d line %d: %w", path, doc, item.Line, err)
				}
				if err := apply(rec); err != nil {
					return fmt.Errorf("%s: document %d line %d: %w", path, doc, item.Line, err)
				}
			}
		case yaml.MappingNode:
			var rec T
			if err := body.Decode(&rec); err != nil {
				return fmt.Errorf("%s: document %d: %w", path, doc, err)
			}
			if err := apply(rec); err != nil {
				return fmt.Errorf("%s: document %d: %w", path, doc, err)
			}
		case yaml.ScalarNode:
			if body.Tag == "!!null" {
				continue
			}
			return fmt.Errorf("%s: document %d: unexpected scalar", path, doc)
		default:
			return fmt.Errorf("%s: document %d: unexpected node kind %d", path, doc, body.Kind)
		}
	}
}
