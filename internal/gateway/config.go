package gateway

import "time"

// Config tunes the HTTP gateway listener.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// normalize backfills the listener address and any unset timeout.
func (c *Config) normalize() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	defaultDur(&c.ReadTimeout, 10*time.Second)
	defaultDur(&c.WriteTimeout, 30*time.Second)
	defaultDur(&c.ShutdownTimeout, 5*time.Second)
}

func defaultDur(d *time.Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = fallback
	}
}

// AuthConfig guards the admin endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	// BasicUser and BasicPass enable HTTP basic auth as an alternative
	// to the bearer token.
	BasicUser string `yaml:"basic_user"`
	BasicPass string `yaml:"basic_pass"`
}

// IsConfigured reports whether at least one auth scheme is usable.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
