package providers

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Cache of compiled schemas per provider name
var providerValidatorMap = make(map[string]*gojsonschema.Schema)
var validatorMutex sync.RWMutex

// Register custom formats on init
func init() {
	// url: require scheme and host
	gojsonschema.FormatCheckers.Add("url", urlFormatChecker{})
}

type urlFormatChecker struct{}

func (urlFormatChecker) IsFormat(input interface{}) bool {
	str, ok := input.(string)
	if !ok {
		return false
	}
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ValidateProviderParams validates witness parameters against the provider's schema
func ValidateProviderParams(providerName string, params interface{}) error {
	validatorMutex.RLock()
	compiled, exists := providerValidatorMap[providerName]
	validatorMutex.RUnlock()

	if !exists {
		sch, ok := PROVIDER_SCHEMAS[providerName]
		if !ok {
			return fmt.Errorf("invalid provider name \"%s\"", providerName)
		}

		schemaLoader := gojsonschema.NewStringLoader(sch.Parameters)
		schema, err := gojsonschema.NewSchema(schemaLoader)
		if err != nil {
			return fmt.Errorf("failed to compile schema for %s: %w", providerName, err)
		}

		validatorMutex.Lock()
		providerValidatorMap[providerName] = schema
		validatorMutex.Unlock()
		compiled = schema
	}

	docLoader := gojsonschema.NewGoLoader(params)
	result, err := compiled.Validate(docLoader)
	if err != nil {
		return fmt.Errorf("params validation failed: %w", err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, e := range result.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return fmt.Errorf("params validation failed: %s", b.String())
	}
	return nil
}

// ValidateProviderSecretParams validates witness secret parameters
func ValidateProviderSecretParams(providerName string, secretParams interface{}) error {
	sch, ok := PROVIDER_SCHEMAS[providerName]
	if !ok {
		return fmt.Errorf("invalid provider name \"%s\"", providerName)
	}

	schemaLoader := gojsonschema.NewStringLoader(sch.SecretParameters)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return fmt.Errorf("failed to compile secret schema for %s: %w", providerName, err)
	}

	docLoader := gojsonschema.NewGoLoader(secretParams)
	result, err := schema.Validate(docLoader)
	if err != nil {
		return fmt.Errorf("secret params validation failed: %w", err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, e := range result.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return fmt.Errorf("secret params validation failed: %s", b.String())
	}
	return nil
}
