package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration for every dataflow binary.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Server      ServerConfig      `mapstructure:"server"`
	MCP         MCPConfig         `mapstructure:"mcp"`
	Tools       ToolsConfig       `mapstructure:"tools"`
	Denodo      DenodoConfig      `mapstructure:"denodo"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Log         LogConfig         `mapstructure:"log"`
}

// LLMConfig points at an Azure OpenAI deployment. An empty Endpoint means
// the LLM is not configured.
type LLMConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"apiKey"`
	Deployment string        `mapstructure:"deployment"`
	APIVersion string        `mapstructure:"apiVersion" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// DatabaseConfig selects and configures the session store.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=postgres memory"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port" validate:"min=1,max=65535"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslMode"`
	MaxOpenConns int    `mapstructure:"maxOpenConns" validate:"min=0"`
	MaxIdleConns int    `mapstructure:"maxIdleConns" validate:"min=0"`
}

// DSN renders the lib/pq key/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// ServerConfig is the REST agent server listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// MCPConfig is the MCP research server listener and its link to a remote
// agent server.
type MCPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port" validate:"min=1,max=65535"`
	Transport      string `mapstructure:"transport" validate:"oneof=http stdio"`
	AgentsEndpoint string `mapstructure:"agentsEndpoint" validate:"omitempty,url"`
	RemoteAgents   bool   `mapstructure:"remoteAgents"`
}

// Addr returns host:port.
func (m MCPConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// ToolsConfig tells the agents where the tool servers live. ConfigPath
// names an mcp_servers file; when it is empty or missing the Denodo and
// Demo endpoints are used.
type ToolsConfig struct {
	ConfigPath     string        `mapstructure:"configPath"`
	DenodoEndpoint string        `mapstructure:"denodoEndpoint" validate:"omitempty,url"`
	DemoEndpoint   string        `mapstructure:"demoEndpoint" validate:"omitempty,url"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// DenodoConfig is used by the Denodo tool server to reach the Denodo AI SDK.
type DenodoConfig struct {
	Endpoint  string        `mapstructure:"endpoint" validate:"required,url"`
	User      string        `mapstructure:"user" validate:"required"`
	Password  string        `mapstructure:"password" validate:"required"`
	VerifySSL bool          `mapstructure:"verifySSL"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// SupervisorConfig bounds the supervisor state machine.
type SupervisorConfig struct {
	MaxErrors int `mapstructure:"maxErrors" validate:"min=1"`
	MaxSteps  int `mapstructure:"maxSteps" validate:"min=1"`
}

// EntitlementConfig is the static access policy applied by the
// entitlement agent.
type EntitlementConfig struct {
	Sources          []string `mapstructure:"sources"`
	RestrictedTables []string `mapstructure:"restrictedTables"`
	DeniedUsers      []string `mapstructure:"deniedUsers"`
	ApprovalLevel    string   `mapstructure:"approvalLevel"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// envBindings maps config keys to the environment variables that feed them,
// in lookup order.
var envBindings = map[string][]string{
	"llm.endpoint":            {"AZURE_OPENAI_ENDPOINT"},
	"llm.apiKey":              {"AZURE_OPENAI_API_KEY"},
	"llm.deployment":          {"AZURE_OPENAI_DEPLOYMENT_NAME", "AZURE_OPENAI_DEPLOYMENT"},
	"llm.apiVersion":          {"AZURE_OPENAI_API_VERSION"},
	"database.driver":         {"DATAFLOW_DB_DRIVER"},
	"database.host":           {"POSTGRES_HOST"},
	"database.port":           {"POSTGRES_PORT"},
	"database.name":           {"POSTGRES_DB"},
	"database.user":           {"POSTGRES_USER"},
	"database.password":       {"POSTGRES_PASSWORD"},
	"database.sslMode":        {"POSTGRES_SSLMODE"},
	"server.host":             {"AGENT_SERVER_HOST"},
	"server.port":             {"AGENT_SERVER_PORT"},
	"mcp.host":                {"MCP_SERVER_HOST"},
	"mcp.port":                {"MCP_SERVER_PORT"},
	"mcp.transport":           {"MCP_TRANSPORT"},
	"mcp.agentsEndpoint":      {"LANGRAPH_AGENTS_ENDPOINT"},
	"mcp.remoteAgents":        {"MCP_REMOTE_AGENTS"},
	"tools.configPath":        {"MCP_CONFIG_PATH"},
	"tools.denodoEndpoint":    {"DENODO_MCP_ENDPOINT"},
	"tools.demoEndpoint":      {"DEMO_MCP_ENDPOINT"},
	"denodo.endpoint":         {"DENODO_AI_SDK_ENDPOINT"},
	"denodo.user":             {"DENODO_AI_SDK_USER"},
	"denodo.password":         {"DENODO_AI_SDK_PASSWORD"},
	"denodo.verifySSL":        {"DENODO_AI_SDK_VERIFY_SSL"},
	"supervisor.maxErrors":    {"SUPERVISOR_MAX_ERRORS"},
	"supervisor.maxSteps":     {"SUPERVISOR_MAX_STEPS"},
	"entitlement.deniedUsers": {"ENTITLEMENT_DENIED_USERS"},
	"log.level":               {"LOG_LEVEL"},
	"log.format":              {"LOG_FORMAT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.deployment", "")
	v.SetDefault("llm.apiVersion", "2024-10-21")
	v.SetDefault("llm.timeout", 120*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "dataflow_agents")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 2)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8001)

	v.SetDefault("mcp.host", "0.0.0.0")
	v.SetDefault("mcp.port", 8080)
	v.SetDefault("mcp.transport", "http")
	v.SetDefault("mcp.agentsEndpoint", "http://localhost:8001")
	v.SetDefault("mcp.remoteAgents", false)

	v.SetDefault("tools.configPath", "")
	v.SetDefault("tools.denodoEndpoint", "http://localhost:8081")
	v.SetDefault("tools.demoEndpoint", "http://localhost:8082")
	v.SetDefault("tools.timeout", 60*time.Second)

	v.SetDefault("denodo.endpoint", "http://localhost:8008")
	v.SetDefault("denodo.user", "admin")
	v.SetDefault("denodo.password", "admin")
	v.SetDefault("denodo.verifySSL", false)
	v.SetDefault("denodo.timeout", 120*time.Second)

	v.SetDefault("supervisor.maxErrors", 3)
	v.SetDefault("supervisor.maxSteps", 25)

	v.SetDefault("entitlement.sources", []string{"denodo", "demo"})
	v.SetDefault("entitlement.restrictedTables", []string{})
	v.SetDefault("entitlement.deniedUsers", []string{})
	v.SetDefault("entitlement.approvalLevel", "standard_user")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration for the given directory using a fresh viper
// instance. See LoadViper.
func Load(dir string) (*Config, error) {
	return LoadViper(viper.New(), dir)
}

// LoadViper layers .env, dataflow.yaml (or .yml) from dir, environment
// variables and any flags already bound to v, then validates the result.
// A missing config file or .env is not an error.
func LoadViper(v *viper.Viper, dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	v.SetConfigName("dataflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct-level constraints on cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
