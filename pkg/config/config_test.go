package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
service_name = "reporting"
environment = "dev"

[http]
port = 8081

[database]
driver = "postgres"
dsn = "host=localhost user=reporting dbname=reporting sslmode=disable"

[reporting]
cutover_day = 5
skeleton_cron = "0 1 * * *"

[reporting.withdrawal.predict]
allowed_statuses = ["SUBMITTED"]
time_limit_hours = 48
max_attempts = 2
require_approval = true

[reporting.withdrawal.audit]
allowed_statuses = []
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reporting.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, 9090, cfg.GRPC.Port, "default applies")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Reporting.CutoverDay)
	assert.Equal(t, 100, cfg.Reporting.Outbox.BatchSize)

	predict, ok := cfg.Reporting.Withdrawal["predict"]
	require.True(t, ok)
	assert.Equal(t, []string{"SUBMITTED"}, predict.AllowedStatuses)
	assert.Equal(t, 48, predict.TimeLimitHours)
	assert.Equal(t, 2, predict.MaxAttempts)
	assert.True(t, predict.RequireApproval)

	audit, ok := cfg.Reporting.Withdrawal["audit"]
	require.True(t, ok)
	assert.Empty(t, audit.AllowedStatuses)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_HTTP_PORT", "9999")
	t.Setenv("APP_DATABASE_DSN", "root:pw@tcp(db:3306)/reporting")
	t.Setenv("APP_DATABASE_DRIVER", "mysql")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "root:pw@tcp(db:3306)/reporting", cfg.Database.DSN)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("APP_DATABASE_DSN", "root:pw@tcp(db:3306)/reporting")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "reporting", cfg.ServiceName)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_SecretsFromEnvOnly(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "prod")
	t.Setenv("APP_DATABASE_DSN", "root:pw@tcp(db:3306)/reporting")
	t.Setenv("APP_AUTH_JWT_SECRET", "from-env")
	t.Setenv("APP_REDIS_PASSWORD", "redis-pw")
	t.Setenv("APP_KAFKA_ENABLED", "true")
	t.Setenv("APP_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "root:pw@tcp(db:3306)/reporting", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis-pw", cfg.Redis.Password)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ServiceName: "reporting",
			HTTP:        HTTPConfig{Port: 8080},
			GRPC:        GRPCConfig{Port: 9090},
			Database:    DatabaseConfig{Driver: "mysql", DSN: "dsn"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Kafka.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Reporting.CutoverDay = 31
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Environment = "prod"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Reporting.NodeID = 1024
	assert.Error(t, cfg.Validate())
}
