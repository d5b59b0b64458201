package sntp

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultServers are tried strictly in order during a sync.
var DefaultServers = []string{
	"time.google.com",
	"time.apple.com",
	"time.cloudflare.com",
	"pool.ntp.org",
	"time.windows.com",
}

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// Config is the immutable parameter set consumed by a System. Build one with
// NewConfig or ParseConfigFile; the engine copies it on construction, so
// mutating a Config after handing it over has no effect.
type Config struct {
	Servers    []string
	Timeout    time.Duration
	Retries    int // retries per server, beyond the initial attempt
	RetryDelay time.Duration
	SyncOnInit bool

	// CacheDuration is how long a successful sync stays fresh for Run and
	// StaleAfter. Zero means a sync never goes stale.
	CacheDuration time.Duration
}

type Option func(*Config)

func NewConfig(opts ...Option) Config {
	config := Config{
		Servers:    DefaultServers,
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		SyncOnInit: true,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

func WithServers(servers ...string) Option {
	return func(c *Config) { c.Servers = servers }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

func WithRetries(retries int) Option {
	return func(c *Config) { c.Retries = retries }
}

func WithRetryDelay(delay time.Duration) Option {
	return func(c *Config) { c.RetryDelay = delay }
}

func WithCacheDuration(duration time.Duration) Option {
	return func(c *Config) { c.CacheDuration = duration }
}

func WithSyncOnInit(sync bool) Option {
	return func(c *Config) { c.SyncOnInit = sync }
}

// ParseConfigFile reads a line-oriented config file. Commands:
//
//	server <hostname>
//	timeout <duration>
//	retries <count>
//	retrydelay <duration>
//	cache <duration>
//	synconinit <bool>
//
// Lines starting with # are comments. Servers accumulate in file order; the
// default pool is used only when the file names none.
func ParseConfigFile(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config at %s: %w", path, err)
	}
	defer file.Close()

	config := NewConfig()

	servers := []string{}

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		arguments := strings.Fields(scanner.Text())
		if len(arguments) == 0 {
			continue
		}

		command := arguments[0]
		if strings.HasPrefix(command, "#") {
			continue
		}
		if len(arguments) < 2 {
			return Config{}, configParseError(line, "missing required argument for %q", command)
		}
		value := arguments[1]

		switch command {
		case "server":
			servers = append(servers, value)
		case "timeout":
			config.Timeout, err = time.ParseDuration(value)
		case "retries":
			config.Retries, err = strconv.Atoi(value)
			if err == nil && config.Retries < 0 {
				err = fmt.Errorf("must not be negative")
			}
		case "retrydelay":
			config.RetryDelay, err = time.ParseDuration(value)
		case "cache":
			config.CacheDuration, err = time.ParseDuration(value)
		case "synconinit":
			config.SyncOnInit, err = strconv.ParseBool(value)
		default:
			return Config{}, configParseError(line, "invalid command: %q", command)
		}
		if err != nil {
			return Config{}, configParseError(line, "invalid %s value %q: %v", command, value, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}

	if len(servers) > 0 {
		config.Servers = servers
	}

	return config, nil
}

func configParseError(line int, format string, args ...any) error {
	return fmt.Errorf("config parse error on line %d: %s", line, fmt.Sprintf(format, args...))
}
