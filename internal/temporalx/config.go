package temporalx

import (
	"time"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/utils"
)

const DefaultTaskQueue = "aether"

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	// DialTimeout bounds one connection attempt; MaxWait bounds the whole
	// startup retry loop.
	DialTimeout time.Duration
	MaxWait     time.Duration
	Backoff     time.Duration
	BackoffMax  time.Duration

	AutoRegisterNamespace bool
	RetentionDays         int
}

// Enabled reports whether a Temporal frontend is configured.
func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func LoadConfig(log *logger.Logger) Config {
	retention := utils.GetEnvAsInt("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7, log)
	if retention < 1 || retention > 365 {
		retention = 7
	}
	return Config{
		Address:   utils.GetEnv("TEMPORAL_ADDRESS", "", log),
		Namespace: utils.GetEnv("TEMPORAL_NAMESPACE", "aether", log),
		TaskQueue: utils.GetEnv("TEMPORAL_TASK_QUEUE", DefaultTaskQueue, log),

		ClientCertPath: utils.GetEnv("TEMPORAL_CLIENT_CERT_PATH", "", log),
		ClientKeyPath:  utils.GetEnv("TEMPORAL_CLIENT_KEY_PATH", "", log),
		ClientCAPath:   utils.GetEnv("TEMPORAL_CLIENT_CA_PATH", "", log),

		DialTimeout: utils.GetEnvAsDuration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second, log),
		MaxWait:     utils.GetEnvAsDuration("TEMPORAL_DIAL_MAX_WAIT", time.Minute, log),
		Backoff:     utils.GetEnvAsDuration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond, log),
		BackoffMax:  utils.GetEnvAsDuration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second, log),

		AutoRegisterNamespace: utils.GetEnvAsBool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false, log),
		RetentionDays:         retention,
	}
}
