// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config holds the application-level configuration unmarshaled from the
// TOML config file and environment overrides.
type Config struct {
	Version               string
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	BaseURL               string `mapstructure:"baseUrl"`
	EncryptionSecret      string `mapstructure:"encryptionSecret"`
	LogLevel              string `mapstructure:"logLevel"`
	LogPath               string `mapstructure:"logPath"`
	LogMaxSize            int    `mapstructure:"logMaxSize"`
	LogMaxBackups         int    `mapstructure:"logMaxBackups"`
	DataDir               string `mapstructure:"dataDir"`
	PprofEnabled          bool   `mapstructure:"pprofEnabled"`
	MetricsEnabled        bool   `mapstructure:"metricsEnabled"`
	MetricsHost           string `mapstructure:"metricsHost"`
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`
}
