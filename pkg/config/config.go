// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

// Package config introduces the configuration from file or runtime param
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opiproject/opi-vtn-coordinator/pkg/storage"
	"github.com/opiproject/opi-vtn-coordinator/pkg/utils"
)

// EnvPrefix prefixes the environment variables overriding config keys,
// e.g. OPI_VTN_GRPCPORT
const EnvPrefix = "OPI_VTN"

// TracingConfig tracing config structure
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

// Config global config structure
type Config struct {
	CfgFile    string
	GRPCPort   uint16        `mapstructure:"grpcport"`
	HTTPPort   uint16        `mapstructure:"httpport"`
	TLSFiles   string        `mapstructure:"tlsfiles"`
	Database   string        `mapstructure:"database"`
	DBAddress  string        `mapstructure:"dbaddress"`
	SchemaFile string        `mapstructure:"schemafile"`
	LogLevel   string        `mapstructure:"loglevel"`
	Tracing    TracingConfig `mapstructure:"tracing"`
}

// GlobalConfig global config
var GlobalConfig Config

// SetDefaults registers the default of every key
func SetDefaults() {
	viper.SetDefault("grpcport", 50151)
	viper.SetDefault("httpport", 8082)
	viper.SetDefault("database", storage.BackendGoMap)
	viper.SetDefault("dbaddress", "127.0.0.1:6379")
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service", "opi-vtn-coordinator")
}

// BindFlags declares the command line flags of cmd and binds them to viper,
// so that a flag given on the command line wins over file and environment
func BindFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&GlobalConfig.CfgFile, "config", "c", "", "config file path")
	flags.Uint16("grpcport", 50151, "The gRPC server port")
	flags.Uint16("httpport", 8082, "The HTTP server port")
	flags.String("tlsfiles", "", "TLS files in server_cert:server_key:ca_cert format.")
	flags.String("database", storage.BackendGoMap, "Configuration store backend, gomap or redis")
	flags.String("dbaddress", "127.0.0.1:6379", "db address in ip_address:port format")
	flags.String("schemafile", "", "Extra YAML resource schema table registered at startup")
	flags.String("loglevel", "info", "Log level: debug, info, warn or error")
	flags.Bool("tracing", false, "Export traces over OTLP gRPC")

	for _, name := range []string{"grpcport", "httpport", "tlsfiles", "database", "dbaddress", "schemafile", "loglevel"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return viper.BindPFlag("tracing.enabled", flags.Lookup("tracing"))
}

// Initcfg reads the config file, if any, and the environment into GlobalConfig.
// A config file given explicitly must be readable.
func Initcfg() error {
	if GlobalConfig.CfgFile != "" {
		viper.SetConfigFile(GlobalConfig.CfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/opi-vtn")
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	SetDefaults()

	if err := LoadConfig(); err != nil {
		log.Errorf("failed to load config: %v", err)
		return err
	}
	return nil
}

// SetConfig sets the global config
func SetConfig(cfg Config) error {
	GlobalConfig = cfg
	return nil
}

// LoadConfig loads the config from yaml file
func LoadConfig() error {
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config %s: %w", GlobalConfig.CfgFile, err)
		}
	}

	cfgFile := GlobalConfig.CfgFile
	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return err
	}
	GlobalConfig.CfgFile = cfgFile

	log.Printf("config %+v", GlobalConfig)
	return nil
}

// ValidateConfig checks the values currently held by viper
func ValidateConfig() error {
	for _, key := range []string{"grpcport", "httpport"} {
		if p := viper.GetInt(key); p <= 0 || p > 65535 {
			return fmt.Errorf("%s: port %d out of range", key, p)
		}
	}

	switch db := viper.GetString("database"); db {
	case storage.BackendGoMap, storage.BackendRedis:
	default:
		return fmt.Errorf("database: %w: %s", storage.ErrUnsupportedBackend, db)
	}

	if addr := viper.GetString("dbaddress"); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("dbaddress: %w", err)
		}
	}

	if lvl := viper.GetString("loglevel"); lvl != "" {
		if _, err := log.ParseLevel(lvl); err != nil {
			return fmt.Errorf("loglevel: %w", err)
		}
	}

	if files := viper.GetString("tlsfiles"); files != "" {
		if _, err := utils.ParseTLSFiles(files); err != nil {
			return fmt.Errorf("tlsfiles: %w", err)
		}
	}
	return nil
}

// ApplyLogLevel sets the level of the standard logger
func ApplyLogLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// GetConfig gets the global config
func GetConfig() *Config {
	return &GlobalConfig
}
