package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, 5432, cfg.Database.Port)
			assert.Equal(t, "backtest_db", cfg.Database.Database)
			assert.Equal(t, "backtest_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "backtest_jobs", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "backtest_dlx", cfg.RabbitMQ.Queue.DeadLetterExchange)
			assert.Equal(t, "backtest.result", cfg.RabbitMQ.ResultRoutingKey)
			assert.Equal(t, 10, cfg.RabbitMQ.Consumer.PrefetchCount)
			assert.Equal(t, time.Hour, cfg.Redis.ResultTTL)
			assert.Equal(t, "backtest", cfg.Redis.KeyPrefix)
			assert.Equal(t, 4, cfg.Worker.Concurrency)
			assert.Equal(t, 30*time.Second, cfg.Worker.JobTimeout)
			assert.Equal(t, "backtest-worker-service", cfg.App.Name)
		})
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("BACKTEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoad_UnsetVariableExpandsEmpty(t *testing.T) {
	t.Setenv("BACKTEST_DB_PASSWORD", "")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Empty(t, cfg.Database.Password)
}

// validConfig returns a config accepted by both service validators
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "backtest_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "backtest_exchange"},
			Queue:    QueueConfig{Name: "backtest_jobs"},
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			ResultTTL: time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency:     2,
			JobTimeout:      30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			modify:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			modify:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "negative breaker timeout",
			modify:    func(c *Config) { c.RabbitMQ.Publish.BreakerTimeout = -time.Second },
			wantErr:   true,
			errString: "breaker_timeout",
		},
		{
			name:      "empty database host",
			modify:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			modify:    func(c *Config) { c.Database.Port = -1 },
			wantErr:   true,
			errString: "invalid database port",
		},
		{
			name:      "empty database name",
			modify:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			modify:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			modify:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			modify:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "empty redis host",
			modify:    func(c *Config) { c.Redis.Host = "" },
			wantErr:   true,
			errString: "redis host is required",
		},
		{
			name:      "invalid redis port",
			modify:    func(c *Config) { c.Redis.Port = 65536 },
			wantErr:   true,
			errString: "invalid redis port",
		},
		{
			name:      "negative result ttl",
			modify:    func(c *Config) { c.Redis.ResultTTL = -time.Second },
			wantErr:   true,
			errString: "redis result_ttl must not be negative",
		},
		{
			name:   "worker settings are not required",
			modify: func(c *Config) { c.Worker = WorkerConfig{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "server port is not required",
			modify: func(c *Config) { c.Server.Port = 0 },
		},
		{
			name:      "zero concurrency",
			modify:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			modify:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "zero shutdown timeout",
			modify:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "worker shutdown_timeout must be greater than 0",
		},
		{
			name:      "negative prefetch count",
			modify:    func(c *Config) { c.RabbitMQ.Consumer.PrefetchCount = -1 },
			wantErr:   true,
			errString: "prefetch_count must not be negative",
		},
		{
			name:      "missing backend settings",
			modify:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name: "distinct result routing key",
			modify: func(c *Config) {
				c.RabbitMQ.Exchange.Type = "direct"
				c.RabbitMQ.RoutingKey = "backtest.job"
				c.RabbitMQ.ResultRoutingKey = "backtest.result"
			},
		},
		{
			name: "result routing key equals job routing key",
			modify: func(c *Config) {
				c.RabbitMQ.RoutingKey = "backtest.job"
				c.RabbitMQ.ResultRoutingKey = "backtest.job"
			},
			wantErr:   true,
			errString: "result_routing_key must differ from routing_key",
		},
		{
			name: "result routing key on fanout exchange",
			modify: func(c *Config) {
				c.RabbitMQ.Exchange.Type = "fanout"
				c.RabbitMQ.RoutingKey = "backtest.job"
				c.RabbitMQ.ResultRoutingKey = "backtest.result"
			},
			wantErr:   true,
			errString: "fanout exchange",
		},
		{
			name: "fanout exchange without result publishing",
			modify: func(c *Config) {
				c.RabbitMQ.Exchange.Type = "fanout"
				c.RabbitMQ.ResultRoutingKey = ""
			},
		},
		{
			name: "topic binding matches result key",
			modify: func(c *Config) {
				c.RabbitMQ.Exchange.Type = "topic"
				c.RabbitMQ.RoutingKey = "backtest.#"
				c.RabbitMQ.ResultRoutingKey = "backtest.result"
			},
			wantErr:   true,
			errString: "matches the job queue binding",
		},
		{
			name: "topic binding does not match result key",
			modify: func(c *Config) {
				c.RabbitMQ.Exchange.Type = "topic"
				c.RabbitMQ.RoutingKey = "backtest.job.*"
				c.RabbitMQ.ResultRoutingKey = "backtest.result"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{pattern: "backtest.job", key: "backtest.job", want: true},
		{pattern: "backtest.job", key: "backtest.result", want: false},
		{pattern: "backtest.*", key: "backtest.result", want: true},
		{pattern: "backtest.*", key: "backtest.result.v2", want: false},
		{pattern: "backtest.#", key: "backtest", want: true},
		{pattern: "backtest.#", key: "backtest.result.v2", want: true},
		{pattern: "#", key: "anything.at.all", want: true},
		{pattern: "*.result", key: "backtest.result", want: true},
		{pattern: "#.job", key: "backtest.result", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, topicMatches(tt.pattern, tt.key))
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
