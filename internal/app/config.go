package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/utils"
)

type Config struct {
	ServiceName    string   `yaml:"service_name"`
	Environment    string   `yaml:"environment"`
	Version        string   `yaml:"version"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoadConfig layers .env, an optional config.yaml, and environment
// variables, env winning.
func LoadConfig(log *logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{
		ServiceName: "auditlens-backend",
		Environment: "development",
		Version:     "dev",
		Port:        "8080",
	}

	path := utils.GetEnv("CONFIG_FILE", "config.yaml", log)
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
		log.Info("loaded config file", "path", path)
	}

	cfg.ServiceName = utils.GetEnv("SERVICE_NAME", cfg.ServiceName, log)
	cfg.Environment = utils.GetEnv("APP_ENV", cfg.Environment, log)
	cfg.Version = utils.GetEnv("APP_VERSION", cfg.Version, log)
	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	if raw := utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log); raw != "" {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowedOrigins = origins
	}
	return cfg, nil
}
