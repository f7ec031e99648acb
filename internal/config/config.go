// Package config holds the server settings shared by the CLI and tests.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost binds every interface, matching a kiosk deployment on the plant LAN.
	DefaultHost = "0.0.0.0"
	// DefaultPort is the HTTP port used when neither --port nor PORT is set.
	DefaultPort = 8080
	// DefaultDataFile is the board document, relative to the working directory.
	DefaultDataFile = "status.json"
	// DefaultUsersFile lists the users allowed to log in.
	DefaultUsersFile = "users.json"
	// DefaultWebRoot is served for every path that is not an API route.
	DefaultWebRoot = "."
	// DefaultSessionTTL bounds how long a login cookie stays valid.
	DefaultSessionTTL = 8 * time.Hour
	// DefaultLoginRate is the sustained login attempts allowed per client per minute.
	DefaultLoginRate = 10.0
	// DefaultLoginBurst is the number of back-to-back login attempts allowed per client.
	DefaultLoginBurst = 5
	// DefaultShutdownTimeout caps graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 16
)

type Config struct {
	Host      string
	Port      int
	DataFile  string
	UsersFile string
	WebRoot   string
	// SecretKey signs session cookies. Empty means a random key is generated
	// per process, which logs everyone out on restart.
	SecretKey       string
	SessionTTL      time.Duration
	CookieSecure    bool
	LoginRate       float64
	LoginBurst      int
	Metrics         bool
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		DataFile:        DefaultDataFile,
		UsersFile:       DefaultUsersFile,
		WebRoot:         DefaultWebRoot,
		SessionTTL:      DefaultSessionTTL,
		LoginRate:       DefaultLoginRate,
		LoginBurst:      DefaultLoginBurst,
		Metrics:         true,
		LogLevel:        "info",
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Validate fills zero values with defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.UsersFile) == "" {
		return fmt.Errorf("config: users file is required")
	}
	if c.WebRoot == "" {
		c.WebRoot = DefaultWebRoot
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	} else if c.SessionTTL < 0 {
		return fmt.Errorf("config: session ttl must be > 0")
	}
	if c.SecretKey != "" && len(c.SecretKey) < MinSecretLength {
		return fmt.Errorf("config: secret key must be at least %d bytes", MinSecretLength)
	}
	if c.LoginRate < 0 {
		return fmt.Errorf("config: login rate must be >= 0")
	}
	if c.LoginRate > 0 && c.LoginBurst < 1 {
		return fmt.Errorf("config: login burst must be >= 1 when login rate is set")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataFile != "" && c.UsersFile != "" && samePath(c.DataFile, c.UsersFile) {
		return fmt.Errorf("config: data file and users file must differ")
	}
	return nil
}

// Addr is the listen address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UsesMemoryStore reports whether the board lives only in memory.
func (c Config) UsesMemoryStore() bool {
	return strings.TrimSpace(c.DataFile) == ""
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
