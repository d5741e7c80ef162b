package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/macropower/sopsgate/pkg/yaml"
)

// SchemaURL identifies the configuration schema.
const SchemaURL = "https://raw.githubusercontent.com/macropower/sopsgate/refs/heads/main/sops.schema.json"

var getValidator = sync.OnceValues(func() (*yaml.Validator, error) {
	data, err := Schema()
	if err != nil {
		return nil, err
	}

	v, err := yaml.NewValidator(SchemaURL, data)
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	return v, nil
})

// Schema returns the JSON schema of [Config], reflected from its fields.
// Unknown properties are allowed, since the same file configures sops.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}

	jss := r.Reflect(&Config{})
	jss.ID = jsonschema.ID(SchemaURL)

	data, err := json.MarshalIndent(jss, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return data, nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	jss.Title = "sops configuration"
	jss.Description = "Creation rules read by sopsgate. Other sops settings are accepted as is."
}
