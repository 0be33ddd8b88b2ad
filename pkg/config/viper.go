package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load builds a viper instance from an optional yaml file plus the
// environment. configPath is the directory holding the file, configName
// its base name without extension. A missing file is not an error; the
// server runs fine on defaults and environment overrides alone, which
// is how the test and container setups configure it.
func Load(configPath, configName string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Keys like database.dsn map to the DATABASE_DSN variable.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return v, nil
}
