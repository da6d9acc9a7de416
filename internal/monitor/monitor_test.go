package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContractMonitor(t *testing.T) {
	testSchemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "TestSchema",
		"type": "object",
		"properties": { "name": { "type": "string" } },
		"required": ["name"]
	}`
	schemaDir := t.TempDir()
	schemaFile := filepath.Join(schemaDir, "test_schema.json")
	require.NoError(t, os.WriteFile(schemaFile, []byte(testSchemaContent), 0o644))

	t.Run("SuccessfulLoad", func(t *testing.T) {
		cm, err := NewContractMonitor(schemaFile)
		require.NoError(t, err)
		require.NotNil(t, cm.schema)

		valid, errs, err := cm.Validate([]byte(`{}`))
		require.NoError(t, err)
		assert.False(t, valid)
		assert.NotEmpty(t, errs)
	})

	t.Run("SchemaFileNotFound", func(t *testing.T) {
		_, err := NewContractMonitor(filepath.Join(schemaDir, "missing.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error loading or compiling schema")
	})

	t.Run("InvalidSchemaSyntax", func(t *testing.T) {
		invalidSchemaFile := filepath.Join(schemaDir, "invalid_schema.json")
		require.NoError(t, os.WriteFile(invalidSchemaFile, []byte("{invalid_json"), 0o644))
		_, err := NewContractMonitor(invalidSchemaFile)
		assert.Error(t, err)
	})
}

func TestNewEmbeddedContractMonitor(t *testing.T) {
	for _, name := range []string{ContractCreatePayment, ContractOperationRequest} {
		cm, err := NewEmbeddedContractMonitor(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, cm.Name())
	}

	_, err := NewEmbeddedContractMonitor("authorize")
	assert.Error(t, err)
}

func TestContractMonitor_CreatePayment(t *testing.T) {
	cm, err := NewEmbeddedContractMonitor(ContractCreatePayment)
	require.NoError(t, err)

	tests := []struct {
		name          string
		payload       string
		expectValid   bool
		expectFuncErr bool
		errorContains []string
	}{
		{
			name:        "ValidPayload",
			payload:     `{"ownerId": "owner-1", "gateway": "Dummy", "amount": 1099, "currency": "USD", "status": "Authorized"}`,
			expectValid: true,
		},
		{
			name:        "StatusOptional",
			payload:     `{"ownerId": "owner-1", "gateway": "Manual", "amount": 1, "currency": "EUR"}`,
			expectValid: true,
		},
		{
			name:          "MissingRequiredField",
			payload:       `{"ownerId": "owner-1", "amount": 1099, "currency": "USD"}`,
			errorContains: []string{"gateway is required"},
		},
		{
			name:          "WrongType",
			payload:       `{"ownerId": "owner-1", "gateway": "Dummy", "amount": "ten", "currency": "USD"}`,
			errorContains: []string{"amount", "Expected: integer"},
		},
		{
			name:          "FractionalAmount",
			payload:       `{"ownerId": "owner-1", "gateway": "Dummy", "amount": 10.5, "currency": "USD"}`,
			errorContains: []string{"amount"},
		},
		{
			name:          "NonPositiveAmount",
			payload:       `{"ownerId": "owner-1", "gateway": "Dummy", "amount": 0, "currency": "USD"}`,
			errorContains: []string{"amount"},
		},
		{
			name:          "LowercaseCurrency",
			payload:       `{"ownerId": "owner-1", "gateway": "Dummy", "amount": 1, "currency": "usd"}`,
			errorContains: []string{"currency"},
		},
		{
			name:          "PendingStatusRejected",
			payload:       `{"ownerId": "owner-1", "gateway": "Dummy", "amount": 1, "currency": "USD", "status": "PendingVoid"}`,
			errorContains: []string{"status"},
		},
		{
			name:          "AdditionalProperty",
			payload:       `{"ownerId": "owner-1", "gateway": "Dummy", "amount": 1, "currency": "USD", "version": 4}`,
			errorContains: []string{"version"},
		},
		{
			name:          "MalformedJSON",
			payload:       `{"ownerId": "owner-1",`,
			expectFuncErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, validationErrs, funcErr := cm.Validate([]byte(tt.payload))
			assert.Equal(t, tt.expectValid, valid, "validation errors: %v", validationErrs)

			if tt.expectFuncErr {
				assert.Error(t, funcErr)
				return
			}
			require.NoError(t, funcErr)
			if tt.expectValid {
				assert.Empty(t, validationErrs)
				return
			}
			combined := strings.Join(validationErrs, "; ")
			for _, ec := range tt.errorContains {
				assert.Contains(t, combined, ec)
			}
		})
	}
}

func TestContractMonitor_OperationRequest(t *testing.T) {
	cm, err := NewEmbeddedContractMonitor(ContractOperationRequest)
	require.NoError(t, err)

	valid, _, err := cm.Validate([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, valid)

	valid, _, err = cm.Validate([]byte(`{"params": {"transactionReference": "R1"}}`))
	require.NoError(t, err)
	assert.True(t, valid)

	valid, errs, err := cm.Validate([]byte(`{"params": {"amount": 5}}`))
	require.NoError(t, err)
	assert.False(t, valid)
	assert.NotEmpty(t, errs)
}

func TestFormatErrors(t *testing.T) {
	tests := []struct {
		name           string
		errors         []string
		expectedOutput string
	}{
		{"NoErrors", []string{}, ""},
		{"SingleError", []string{"Error: Field 'X' is required."}, "Validation errors: Error: Field 'X' is required."},
		{"MultipleErrors", []string{"Error 1", "Error 2"}, "Validation errors: Error 1; Error 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedOutput, FormatErrors(tt.errors))
		})
	}
}
