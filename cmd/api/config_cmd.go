package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"permit-board/internal/config"
)

func newConfigCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or inspect permit-board configuration",
	}
	cmd.AddCommand(newConfigGenCommand())
	cmd.AddCommand(newConfigShowCommand(v))
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write a default configuration file (stdout unless --out is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(fileConfigFrom(config.Default()))
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output path for the generated config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	return cmd
}

func newConfigShowCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after flags, environment and config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if _, err := loadConfigFile(v); err != nil {
				return err
			}
			cfg := bindConfig(v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			fc := fileConfigFrom(cfg)
			if fc.SecretKey != "" {
				fc.SecretKey = "<redacted>"
			}
			data, err := yaml.Marshal(fc)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// fileConfig mirrors the flag names so a generated file reads back through viper.
type fileConfig struct {
	Host            string  `yaml:"host"`
	Port            int     `yaml:"port"`
	DataFile        string  `yaml:"data-file"`
	UsersFile       string  `yaml:"users-file"`
	WebRoot         string  `yaml:"web-root"`
	SecretKey       string  `yaml:"secret-key"`
	SessionTTL      string  `yaml:"session-ttl"`
	CookieSecure    bool    `yaml:"cookie-secure"`
	LoginRate       float64 `yaml:"login-rate"`
	LoginBurst      int     `yaml:"login-burst"`
	Metrics         bool    `yaml:"metrics"`
	LogLevel        string  `yaml:"log-level"`
	ShutdownTimeout string  `yaml:"shutdown-timeout"`
}

func fileConfigFrom(cfg config.Config) fileConfig {
	return fileConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		DataFile:        cfg.DataFile,
		UsersFile:       cfg.UsersFile,
		WebRoot:         cfg.WebRoot,
		SecretKey:       cfg.SecretKey,
		SessionTTL:      cfg.SessionTTL.String(),
		CookieSecure:    cfg.CookieSecure,
		LoginRate:       cfg.LoginRate,
		LoginBurst:      cfg.LoginBurst,
		Metrics:         cfg.Metrics,
		LogLevel:        cfg.LogLevel,
		ShutdownTimeout: cfg.ShutdownTimeout.String(),
	}
}
