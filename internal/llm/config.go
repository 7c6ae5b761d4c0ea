package llm

import (
	"strings"
	"time"

	"github.com/dusk-indust/dataflow/internal/config"
)

// DefaultAPIVersion is used when no api version is configured.
const DefaultAPIVersion = "2024-10-21"

// AzureADScope is the token scope for Azure Cognitive Services.
const AzureADScope = "https://cognitiveservices.azure.com/.default"

// AuthMethod identifies how requests are authenticated.
type AuthMethod string

const (
	AuthAPIKey  AuthMethod = "api-key"
	AuthAzureAD AuthMethod = "azure-ad"
	AuthNone    AuthMethod = "none"
)

// Config describes one Azure OpenAI deployment.
type Config struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

// FromConfig converts the application config section.
func FromConfig(c config.LLMConfig) Config {
	return Config{
		Endpoint:   c.Endpoint,
		APIKey:     c.APIKey,
		Deployment: c.Deployment,
		APIVersion: c.APIVersion,
		Timeout:    c.Timeout,
	}
}

// Configured reports whether an endpoint is set. Without one the LLM is
// treated as absent rather than misconfigured.
func (c Config) Configured() bool {
	return c.Endpoint != ""
}

// AuthMethod returns api-key when a key is present and azure-ad otherwise.
func (c Config) AuthMethod() AuthMethod {
	switch {
	case !c.Configured():
		return AuthNone
	case c.APIKey != "":
		return AuthAPIKey
	default:
		return AuthAzureAD
	}
}

// ValidationReport lists configuration problems.
type ValidationReport struct {
	IsValid     bool     `json:"is_valid"`
	MissingVars []string `json:"missing_vars"`
	Errors      []string `json:"errors"`
}

// Validate checks the endpoint format and required fields. An unconfigured
// client is valid.
func (c Config) Validate() ValidationReport {
	report := ValidationReport{MissingVars: []string{}, Errors: []string{}}
	if !c.Configured() {
		report.IsValid = true
		return report
	}
	if !strings.HasPrefix(c.Endpoint, "https://") || !strings.Contains(c.Endpoint, "openai.azure.com") {
		report.Errors = append(report.Errors, "AZURE_OPENAI_ENDPOINT must be a valid Azure OpenAI endpoint URL")
	}
	if c.Deployment == "" {
		report.MissingVars = append(report.MissingVars, "AZURE_OPENAI_DEPLOYMENT_NAME or AZURE_OPENAI_DEPLOYMENT")
	}
	report.IsValid = len(report.Errors) == 0 && len(report.MissingVars) == 0
	return report
}

// Status is the display form of the configuration.
type Status struct {
	Configured     bool       `json:"configured"`
	AuthMethod     AuthMethod `json:"auth_method"`
	Endpoint       string     `json:"endpoint,omitempty"`
	DeploymentName string     `json:"deployment_name,omitempty"`
}

// Status summarises the configuration without secrets.
func (c Config) Status() Status {
	if !c.Configured() {
		return Status{AuthMethod: AuthNone}
	}
	return Status{
		Configured:     true,
		AuthMethod:     c.AuthMethod(),
		Endpoint:       c.Endpoint,
		DeploymentName: c.Deployment,
	}
}

func (c Config) apiVersion() string {
	if c.APIVersion == "" {
		return DefaultAPIVersion
	}
	return c.APIVersion
}
