package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/couriermq/courier/internal/envelope"
)

// Defaults applied by WithDefaults for zero-valued tuning knobs.
const (
	DefaultHost           = "127.0.0.1"
	DefaultBacklog        = 64
	DefaultMaxMessageSize = 1 << 20
	DefaultHighWaterMark  = 16 * 1024
)

// Secret holds sensitive byte material such as encryption keys. Its Stringer
// prints a redaction marker instead of the raw bytes so secrets never reach
// log output through Config.String.
type Secret []byte

func (s Secret) String() string {
	if len(s) == 0 {
		return ""
	}
	return "***REDACTED***"
}

// Config groups the broker, socket, and webhook settings required to run a
// Courier node. Each component only uses the keys that are relevant to it.
type Config struct {
	// Host is the interface the socket listener binds to and the target
	// clients dial. Empty falls back to DefaultHost.
	Host string
	// Port is the TCP port of the socket listener. Zero selects an
	// ephemeral port chosen by the operating system.
	Port int

	// Backlog caps how many accepted connections the server keeps in its
	// registry at once. Zero falls back to DefaultBacklog.
	Backlog int

	// MaxMessageSize bounds inbound message bodies in bytes. Zero falls
	// back to DefaultMaxMessageSize.
	MaxMessageSize int

	// ConnectionTimeout bounds dial and listener-bind waits. Zero disables
	// the deadline.
	ConnectionTimeout time.Duration

	// HighWaterMark is the pending-write byte count at which a socket
	// reports backpressure. Zero falls back to DefaultHighWaterMark.
	HighWaterMark int

	// Mask is XORed over every frame in and out. It obfuscates traffic on
	// the wire and is not a substitute for encryption.
	Mask Secret

	// Envelope encryption. Payloads are encrypted with AES-256-CBC when
	// EncryptionKey is set; Salt feeds key derivation and may be empty.
	EncryptionKey Secret
	Salt          Secret

	// SignAlgorithm selects the envelope digest algorithm by name. Empty
	// selects sha512.
	SignAlgorithm string

	// Lazy defers listener start until Listen is called explicitly.
	Lazy bool

	// SuppressCancellationError silences the cancellation error a server
	// normally raises when its context is cancelled.
	SuppressCancellationError bool

	// Webhook ingestion.
	WebhookEnabled bool
	// WebhookPort is the port where the HTTP webhook endpoint will be exposed.
	WebhookPort int
	// WebhookCORSAllowedOrigins specifies allowed origins for webhook CORS
	// headers. Empty falls back to "*".
	WebhookCORSAllowedOrigins []string

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int
}

// WithDefaults returns a copy of the config with zero-valued tuning knobs
// replaced by package defaults. Port is left alone: zero means ephemeral.
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	if c.SignAlgorithm == "" {
		c.SignAlgorithm = envelope.DefaultAlgorithm
	}
	return c
}

func (c Config) String() string {
	// Use a type alias to avoid infinite recursion when printing. Secret
	// fields redact themselves through their own Stringer.
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate checks that the configuration is internally consistent. It returns
// an error describing every invalid field, or nil.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateSocket()...)
	errs = append(errs, c.validateEnvelope()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

// validateSocket checks the listener address and transport tuning values.
func (c *Config) validateSocket() []error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("socket: invalid port %d", c.Port))
	}
	if c.Backlog < 0 {
		errs = append(errs, errors.New("socket: backlog cannot be negative"))
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, errors.New("socket: max message size cannot be negative"))
	}
	if c.MaxMessageSize > 0 && c.MaxMessageSize < 4 {
		errs = append(errs, fmt.Errorf("socket: max message size %d is below the 4-byte frame minimum", c.MaxMessageSize))
	}
	if c.ConnectionTimeout < 0 {
		errs = append(errs, errors.New("socket: connection timeout cannot be negative"))
	}
	if c.HighWaterMark < 0 {
		errs = append(errs, errors.New("socket: high water mark cannot be negative"))
	}
	return errs
}

// validateEnvelope checks encryption and signing settings.
func (c *Config) validateEnvelope() []error {
	var errs []error
	if len(c.Salt) > 0 && len(c.EncryptionKey) == 0 {
		errs = append(errs, errors.New("encryption: salt requires an encryption key"))
	}
	if c.SignAlgorithm != "" {
		if _, err := envelope.AlgorithmID(c.SignAlgorithm); err != nil {
			errs = append(errs, fmt.Errorf("envelope: unknown sign algorithm %q", c.SignAlgorithm))
		}
	}
	return errs
}

// validatePorts checks port configuration values.
func (c *Config) validatePorts() []error {
	var errs []error
	if c.WebhookPort < 0 || c.WebhookPort > 65535 {
		errs = append(errs, fmt.Errorf("webhook: invalid port %d", c.WebhookPort))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
