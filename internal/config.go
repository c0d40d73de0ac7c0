package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/folio/internal/api"
)

// minSecretLength is the shortest accepted JWT signing secret.
const minSecretLength = 16

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Library LibraryConfig     `yaml:"library"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Uploads UploadsConfig     `yaml:"uploads"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Uploads.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For, X-Real-IP
	// and True-Client-IP. Enable only behind a reverse proxy that sets them.
	TrustProxy bool `yaml:"trust_proxy"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// LibraryConfig locates the book tree and the exported catalog document.
type LibraryConfig struct {
	Root        string `yaml:"root"`
	CatalogPath string `yaml:"catalog_path"`
	Watch       bool   `yaml:"watch"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AdminConfig seeds the first administrator account in session mode.
type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Validate validates the admin seed; an empty email disables seeding.
func (c *AdminConfig) Validate() error {
	if c.Email == "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required, validation.Length(6, 0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "session": user accounts with approval and JWT sessions; JWTSecret
//     must be set.
type AuthConfig struct {
	Mode       string        `yaml:"mode"`
	Token      string        `yaml:"token"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	Admin      AdminConfig   `yaml:"admin"`
	// LoginPerMinute and LoginBurst rate limit /auth/login per client IP.
	LoginPerMinute float64 `yaml:"login_per_minute"`
	LoginBurst     int     `yaml:"login_burst"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = string(api.AuthDisabled)
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required,
			validation.In(string(api.AuthDisabled), string(api.AuthToken), string(api.AuthSession))),
		validation.Field(&c.SessionTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.LoginPerMinute, validation.Min(0.0)),
		validation.Field(&c.LoginBurst, validation.Min(0)),
	); err != nil {
		return err
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("auth: admin: %w", err)
	}
	switch api.AuthMode(c.Mode) {
	case api.AuthToken:
		if c.Token == "" {
			return fmt.Errorf("auth: mode is %q but token is empty", api.AuthToken)
		}
	case api.AuthSession:
		if len(c.JWTSecret) < minSecretLength {
			return fmt.Errorf("auth: mode is %q but jwt_secret is shorter than %d bytes", api.AuthSession, minSecretLength)
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode != string(api.AuthDisabled)
}

// UploadsConfig bounds uploaded files.
type UploadsConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Validate validates the uploads configuration.
func (c *UploadsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	)
}

// EventsConfig tunes the SSE broker.
type EventsConfig struct {
	// CatalogThrottle is the minimum gap between catalog.updated events.
	CatalogThrottle time.Duration `yaml:"catalog_throttle"`
	// KeepAlive is the interval of ping comments on idle streams; zero disables them.
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CatalogThrottle, validation.Min(time.Duration(0))),
		validation.Field(&c.KeepAlive, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Library: LibraryConfig{
			Root:        "./library",
			CatalogPath: "./data/metadata.json",
			Watch:       true,
		},
		SQLite: SQLiteConfig{
			Path: "./data/folio.db",
		},
		Auth: AuthConfig{
			Mode:           string(api.AuthDisabled),
			SessionTTL:     24 * time.Hour,
			LoginPerMinute: 10,
			LoginBurst:     5,
		},
		Uploads: UploadsConfig{
			MaxBytes: 200 << 20,
		},
		Events: EventsConfig{
			CatalogThrottle: 2 * time.Second,
			KeepAlive:       25 * time.Second,
		},
	}
}
