package schema

import _ "embed"

// ExperimentV1Schema contains the JSON schema for experiment manifests.
//
//go:embed experiment.v1.json
var ExperimentV1Schema []byte
