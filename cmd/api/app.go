package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"permit-board/internal/auth"
	"permit-board/internal/clock"
	"permit-board/internal/config"
	"permit-board/internal/httpapi"
	"permit-board/internal/registry"
	"permit-board/internal/store"
	"permit-board/internal/users"
)

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "permit-board",
		Short:         "permit-board serves the permit-to-work job board for confined-space and work-at-height entries",
		SilenceErrors: true,
		Example: `
  # Serve the board from the current directory on :8080
  permit-board

  # Keep state and users outside the web root
  permit-board --data-file /var/lib/permit/status.json --users-file /etc/permit/users.json --web-root /srv/permit

  # RW_SECRET_KEY and PORT are honoured as well
  RW_SECRET_KEY=$(openssl rand -hex 32) PORT=9000 permit-board
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := baseLogger
			cliLogger := withSubsystem(logger, "cli.root")

			configFile, err := loadConfigFile(v)
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}
			cfg := bindConfig(v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(cfg.LogLevel); ok {
				logger = logger.LogLevel(level)
			}
			return serve(cmd.Context(), cfg, configFile, logger)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file")
	persistentFlags.String("data-file", config.DefaultDataFile, "board state file (empty keeps the board in memory)")
	persistentFlags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	flags := cmd.Flags()
	flags.String("host", config.DefaultHost, "listen host")
	flags.Int("port", config.DefaultPort, "listen port (env PORT is honoured)")
	flags.String("users-file", config.DefaultUsersFile, "users file (JSON array, comments allowed)")
	flags.String("web-root", config.DefaultWebRoot, "directory served for non-API paths")
	flags.String("secret-key", "", "session signing secret (env RW_SECRET_KEY is honoured; empty generates one per process)")
	flags.Duration("session-ttl", config.DefaultSessionTTL, "login session lifetime")
	flags.Bool("cookie-secure", false, "mark the session cookie Secure (serve behind HTTPS)")
	flags.Float64("login-rate", config.DefaultLoginRate, "login attempts per minute per client (0 disables throttling)")
	flags.Int("login-burst", config.DefaultLoginBurst, "login attempts allowed back to back per client")
	flags.Bool("metrics", true, "expose Prometheus metrics on /metrics")
	flags.Duration("shutdown-timeout", config.DefaultShutdownTimeout, "graceful shutdown timeout")

	bindFlags(v, cmd, "config", "data-file", "log-level",
		"host", "port", "users-file", "web-root", "secret-key", "session-ttl", "cookie-secure",
		"login-rate", "login-burst", "metrics", "shutdown-timeout")

	v.SetEnvPrefix("PERMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	mustBindEnv(v, "secret-key", "PERMIT_SECRET_KEY", "RW_SECRET_KEY")
	mustBindEnv(v, "port", "PERMIT_PORT", "PORT")

	cmd.AddCommand(newHashPinCommand())
	cmd.AddCommand(newJobsCommand(v, withSubsystem(baseLogger, "cli.jobs")))
	cmd.AddCommand(newConfigCommand(v))
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, names ...string) {
	for _, name := range names {
		var flag *pflag.Flag
		if flag = cmd.Flags().Lookup(name); flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}
}

func mustBindEnv(v *viper.Viper, key string, envs ...string) {
	if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
		panic(err)
	}
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func bindConfig(v *viper.Viper) config.Config {
	return config.Config{
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		DataFile:        v.GetString("data-file"),
		UsersFile:       v.GetString("users-file"),
		WebRoot:         v.GetString("web-root"),
		SecretKey:       v.GetString("secret-key"),
		SessionTTL:      v.GetDuration("session-ttl"),
		CookieSecure:    v.GetBool("cookie-secure"),
		LoginRate:       v.GetFloat64("login-rate"),
		LoginBurst:      v.GetInt("login-burst"),
		Metrics:         v.GetBool("metrics"),
		LogLevel:        v.GetString("log-level"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
	}
}

func serve(ctx context.Context, cfg config.Config, configFile string, logger pslog.Logger) error {
	serverLogger := withSubsystem(logger, "server.http")
	handler, err := buildHandler(cfg, configFile, clock.Real{}, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		serverLogger.Info("listening", "addr", srv.Addr, "data_file", cfg.DataFile, "users_file", cfg.UsersFile, "web_root", cfg.WebRoot)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	serverLogger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serverLogger.Error("shutdown failed", "error", err)
		return err
	}
	return nil
}

// buildHandler assembles the full HTTP stack for cfg.
func buildHandler(cfg config.Config, configFile string, clk clock.Clock, logger pslog.Logger) (http.Handler, error) {
	secret, err := resolveSecret(cfg.SecretKey, withSubsystem(logger, "auth.session"))
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	if cfg.UsesMemoryStore() {
		withSubsystem(logger, "store.memory").Warn("no data file configured; the board will not survive a restart")
		backend = store.NewMemoryBackend(clk)
	} else {
		backend = store.NewFileBackend(cfg.DataFile, clk, withSubsystem(logger, "store.file"))
	}
	st := store.New(backend, store.WithClock(clk), store.WithLogger(withSubsystem(logger, "store")))

	guard, err := auth.NewGuard(auth.Config{
		Users:          users.NewDirectory(cfg.UsersFile, withSubsystem(logger, "auth.users")),
		Secret:         secret,
		SessionTTL:     cfg.SessionTTL,
		SecureCookie:   cfg.CookieSecure,
		LoginPerMinute: cfg.LoginRate,
		LoginBurst:     cfg.LoginBurst,
		Clock:          clk,
		Logger:         withSubsystem(logger, "auth.login"),
	})
	if err != nil {
		return nil, err
	}
	reg := registry.New(st, clk, withSubsystem(logger, "registry"))

	var metrics *httpapi.Metrics
	if cfg.Metrics {
		metrics = httpapi.NewMetrics()
	}
	api, err := httpapi.New(httpapi.Config{
		Registry: reg,
		Guard:    guard,
		Clock:    clk,
		Logger:   logger,
		Metrics:  metrics,
		Static:   httpapi.NewStatic(cfg.WebRoot, denyList(cfg, configFile), logger),
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	registerBoardRoutes(r, reg, clk)
	api.Register(r)
	return r, nil
}

// denyList hides the files the server itself reads, wherever they live.
func denyList(cfg config.Config, configFile string) httpapi.DenyList {
	var deny httpapi.DenyList
	if cfg.UsersFile != "" {
		deny.Names = append(deny.Names, filepath.Base(cfg.UsersFile))
	}
	if cfg.DataFile != "" {
		base := filepath.Base(cfg.DataFile)
		deny.Names = append(deny.Names, base)
		deny.Prefixes = append(deny.Prefixes, base+store.TempSuffix)
	}
	if configFile != "" {
		deny.Names = append(deny.Names, filepath.Base(configFile))
	}
	if exe, err := os.Executable(); err == nil {
		deny.Names = append(deny.Names, filepath.Base(exe))
	}
	return deny
}

func resolveSecret(configured string, logger pslog.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn("no secret key configured; generated a per-process key, sessions end on restart")
	return secret, nil
}
