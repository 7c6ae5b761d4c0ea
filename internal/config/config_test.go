package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "2024-10-21", cfg.LLM.APIVersion)
	assert.Empty(t, cfg.LLM.Endpoint)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "dataflow_agents", cfg.Database.Name)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "0.0.0.0:8001", cfg.Server.Addr())
	assert.Equal(t, 8080, cfg.MCP.Port)
	assert.Equal(t, "http://localhost:8001", cfg.MCP.AgentsEndpoint)
	assert.Equal(t, "http://localhost:8081", cfg.Tools.DenodoEndpoint)
	assert.Equal(t, "http://localhost:8082", cfg.Tools.DemoEndpoint)
	assert.Equal(t, 60*time.Second, cfg.Tools.Timeout)
	assert.Equal(t, 3, cfg.Supervisor.MaxErrors)
	assert.Equal(t, 25, cfg.Supervisor.MaxSteps)
	assert.Equal(t, []string{"denodo", "demo"}, cfg.Entitlement.Sources)
	assert.Equal(t, "standard_user", cfg.Entitlement.ApprovalLevel)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://contoso.openai.azure.com")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("AGENT_SERVER_PORT", "9001")
	t.Setenv("SUPERVISOR_MAX_ERRORS", "5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.openai.azure.com", cfg.LLM.Endpoint)
	assert.Equal(t, "gpt-4o", cfg.LLM.Deployment)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Supervisor.MaxErrors)
}

func TestLoad_DeploymentNamePreferredOverDeployment(t *testing.T) {
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "primary")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "secondary")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.LLM.Deployment)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
database:
  driver: memory
supervisor:
  maxErrors: 2
  maxSteps: 10
entitlement:
  deniedUsers:
    - blocked@example.com
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataflow.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Supervisor.MaxErrors)
	assert.Equal(t, 10, cfg.Supervisor.MaxSteps)
	assert.Equal(t, []string{"blocked@example.com"}, cfg.Entitlement.DeniedUsers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("POSTGRES_DB=from_dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("POSTGRES_DB") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.Database.Name)
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	content := `
supervisor:
  maxErrors: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataflow.yaml"), []byte(content), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxErrors")
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataflow.yaml"), []byte("log: [unterminated"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "dataflow_agents", User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 dbname=dataflow_agents user=u password=p sslmode=disable", d.DSN())
}
