package providers

// ProviderSchema holds the JSON schemas validating one provider's parameters
type ProviderSchema struct {
	Parameters       string
	SecretParameters string
}

// PROVIDER_SCHEMAS maps provider names to their parameter schemas. "http" is
// the only provider type: a witnessed HTTPS exchange described by
// WitnessParams.
var PROVIDER_SCHEMAS = map[string]ProviderSchema{
	"http": {
		Parameters:       httpParamsSchema,
		SecretParameters: httpSecretParamsSchema,
	},
}

const httpParamsSchema = `{
	"type": "object",
	"required": ["url", "method"],
	"properties": {
		"url": { "type": "string", "format": "url" },
		"method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"] },
		"headers": {
			"type": "object",
			"additionalProperties": { "type": "string" }
		},
		"body": { "type": "string" },
		"responseMatches": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "value"],
				"properties": {
					"type": { "type": "string", "enum": ["regex", "contains"] },
					"value": { "type": "string" },
					"invert": { "type": "boolean" }
				},
				"additionalProperties": false
			}
		},
		"responseRedactions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"regex": { "type": "string" },
					"jsonPath": { "type": "string" }
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`

const httpSecretParamsSchema = `{
	"type": "object",
	"properties": {
		"cookieStr": { "type": "string" },
		"authorisationHeader": { "type": "string" },
		"headers": {
			"type": "object",
			"additionalProperties": { "type": "string" }
		}
	},
	"additionalProperties": false
}`
