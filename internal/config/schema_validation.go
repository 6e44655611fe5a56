package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	runlabschema "github.com/runlab/runlab/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce       sync.Once
	experimentSchema *jsonschema.Schema
	schemaErr        error
)

func loadExperimentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("experiment.v1.json", bytes.NewReader(runlabschema.ExperimentV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add experiment schema resource: %w", err)
			return
		}
		experimentSchema, schemaErr = compiler.Compile("experiment.v1.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile experiment schema: %w", schemaErr)
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return experimentSchema, nil
}

func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadExperimentSchema()
	if err != nil {
		return fmt.Errorf("load experiment schema: %w", err)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("prepare manifest for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation failed:\n%s", formatValidationError(vErr))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// normalizeForSchema round-trips the decoded YAML through JSON so the
// validator sees json.Number values instead of Go ints and floats.
func normalizeForSchema(doc map[string]any) (any, error) {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// formatValidationError flattens the validator's cause tree into one line
// per concrete violation. The intermediate "doesn't validate with ..."
// wrapper nodes carry no information a manifest author can act on, so only
// leaves are reported, each located by a dotted path into the manifest.
func formatValidationError(err *jsonschema.ValidationError) string {
	seen := make(map[string]bool)
	var lines []string
	var collect func(e *jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			line := fmt.Sprintf("  %s: %s", manifestPath(e.InstanceLocation), e.Message)
			if !seen[line] {
				seen[line] = true
				lines = append(lines, line)
			}
			return
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)
	return strings.Join(lines, "\n")
}

// manifestPath renders a JSON pointer as the dotted notation manifests are
// written in: /runs/1/cpus becomes runs[1].cpus. The pointer root is the
// manifest itself.
func manifestPath(ptr string) string {
	var b strings.Builder
	for _, token := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		if token == "" {
			continue
		}
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		if _, err := strconv.Atoi(token); err == nil {
			fmt.Fprintf(&b, "[%s]", token)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(token)
	}
	if b.Len() == 0 {
		return "manifest"
	}
	return b.String()
}
