// Package monitor validates inbound API bodies against JSON schema contracts.
package monitor

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Contract names of the embedded schemas.
const (
	ContractCreatePayment    = "create_payment"
	ContractOperationRequest = "operation_request"
)

// ContractMonitor validates request bodies against one compiled JSON schema.
type ContractMonitor struct {
	name   string
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the schema file at schemaPath.
// The schemaPath should be an absolute path or relative to the execution directory.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + schemaPath))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{name: schemaPath, schema: schema}, nil
}

// NewEmbeddedContractMonitor compiles one of the schemas shipped with the service.
func NewEmbeddedContractMonitor(contract string) (*ContractMonitor, error) {
	data, err := schemaFS.ReadFile("schemas/" + contract + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown contract %q: %w", contract, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("error compiling schema %s: %w", contract, err)
	}
	return &ContractMonitor{name: contract, schema: schema}, nil
}

// Name returns the contract name or schema path.
func (cm *ContractMonitor) Name() string { return cm.name }

// Validate validates the given request body against the compiled schema.
// It returns true if valid, or false and a list of validation errors if invalid.
// A body that is not JSON is reported through the error.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, errs, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
