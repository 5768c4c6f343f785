package services

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stackhut-runner/models"
)

//go:embed schema/hutfile.schema.json
var hutfileSchemaBytes []byte

var (
	hutfileSchema     *jsonschema.Schema
	hutfileSchemaOnce sync.Once
	hutfileSchemaErr  error
	printer           = message.NewPrinter(language.English)
)

// getHutfileSchema compiles the embedded JSON schema once and returns it.
func getHutfileSchema() (*jsonschema.Schema, error) {
	hutfileSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(hutfileSchemaBytes))
		if err != nil {
			hutfileSchemaErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("hutfile.schema.json", doc); err != nil {
			hutfileSchemaErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		hutfileSchema, hutfileSchemaErr = c.Compile("hutfile.schema.json")
		if hutfileSchemaErr != nil {
			hutfileSchemaErr = fmt.Errorf("compiling schema: %w", hutfileSchemaErr)
		}
	})
	return hutfileSchema, hutfileSchemaErr
}

// LoadServiceDescriptor reads and validates a Hutfile
func LoadServiceDescriptor(path string) (*models.ServiceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading Hutfile %s: %w", path, err)
	}
	desc, err := ParseServiceDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("loading Hutfile %s: %w", path, err)
	}
	return desc, nil
}

// ParseServiceDescriptor validates raw YAML against the Hutfile schema and
// decodes it. An unsupported stack is rejected here, before any call runs.
func ParseServiceDescriptor(data []byte) (*models.ServiceDescriptor, error) {
	if err := validateHutfile(data); err != nil {
		return nil, err
	}

	var desc models.ServiceDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	stack, err := models.ParseRuntime(string(desc.Stack))
	if err != nil {
		return nil, err
	}
	desc.Stack = stack
	return &desc, nil
}

func validateHutfile(data []byte) error {
	schema, err := getHutfileSchema()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("converting to JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("preparing JSON for validation: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("unexpected validation error type: %w", err)
	}
	var issues []string
	collectIssues(validationErr, &issues)
	if len(issues) == 0 {
		issues = append(issues, validationErr.Error())
	}
	return fmt.Errorf("invalid Hutfile: %s", strings.Join(issues, "; "))
}

// collectIssues walks the error tree and keeps leaf messages with their location.
func collectIssues(ve *jsonschema.ValidationError, issues *[]string) {
	if len(ve.Causes) == 0 {
		if ve.ErrorKind == nil {
			return
		}
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		*issues = append(*issues, fmt.Sprintf("%s: %s", path, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, cause := range ve.Causes {
		collectIssues(cause, issues)
	}
}
