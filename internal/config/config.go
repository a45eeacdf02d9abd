// Package config reads the billed settings from flags, BILLED_* environment
// variables and an optional plain config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// S3 holds the object storage settings
type S3 struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Config is the runtime configuration of the server
type Config struct {
	Port           int
	DBPath         string
	Storage        string
	StoragePath    string
	S3             S3
	APIURL         string
	AuthUser       string
	AuthPass       string
	SessionSecret  string
	UploadRequired bool
	LogLevel       slog.Level
	ShowVersion    bool
}

type flags struct {
	fs *ff.FlagSet

	port           *int
	dbPath         *string
	storage        *string
	storagePath    *string
	s3Endpoint     *string
	s3AccessKey    *string
	s3SecretKey    *string
	s3Bucket       *string
	s3Region       *string
	s3SSL          *bool
	apiURL         *string
	authUser       *string
	authPass       *string
	sessionSecret  *string
	uploadRequired *bool
	logLevel       *string
	showVersion    *bool
}

func newFlags() *flags {
	fs := ff.NewFlagSet("billed")
	f := &flags{fs: fs}
	f.port = fs.IntLong("port", 8080, "HTTP server port")
	f.dbPath = fs.StringLong("db", "billed.db", "Database file path")
	f.storage = fs.StringLong("storage", StorageLocal, "Receipt storage: 'local' or 's3'")
	f.storagePath = fs.StringLong("storage-path", "./receipts", "Local receipt directory")
	f.s3Endpoint = fs.StringLong("s3-endpoint", "", "S3 endpoint, e.g. localhost:9000")
	f.s3AccessKey = fs.StringLong("s3-access-key", "", "S3 access key")
	f.s3SecretKey = fs.StringLong("s3-secret-key", "", "S3 secret key")
	f.s3Bucket = fs.StringLong("s3-bucket", "billed-receipts", "S3 bucket name")
	f.s3Region = fs.StringLong("s3-region", "us-east-1", "S3 region")
	f.s3SSL = fs.BoolLong("s3-ssl", "Use TLS for the S3 endpoint")
	f.apiURL = fs.StringLong("api-url", "", "Remote bill API base URL (empty uses the in-process store)")
	f.authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
	f.authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
	f.sessionSecret = fs.StringLong("session-secret", "", "Secret signing session cookies (random when empty)")
	f.uploadRequired = fs.BoolLong("upload-required", "Refuse bills submitted without a receipt")
	f.logLevel = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
	f.showVersion = fs.BoolLong("version", "Show version information")
	fs.StringLong("config", "", "Plain config file, one 'flag value' per line")
	return f
}

// Help describes every flag
func Help() string {
	return fmt.Sprintf("%s", ffhelp.Flags(newFlags().fs))
}

// Parse reads args, then BILLED_* variables, then the --config file
func Parse(args []string) (*Config, error) {
	f := newFlags()
	if err := ff.Parse(f.fs, args,
		ff.WithEnvVarPrefix("BILLED"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg := &Config{
		Port:        *f.port,
		DBPath:      *f.dbPath,
		Storage:     strings.ToLower(strings.TrimSpace(*f.storage)),
		StoragePath: *f.storagePath,
		S3: S3{
			Endpoint:  *f.s3Endpoint,
			AccessKey: *f.s3AccessKey,
			SecretKey: *f.s3SecretKey,
			Bucket:    *f.s3Bucket,
			Region:    *f.s3Region,
			UseSSL:    *f.s3SSL,
		},
		APIURL:         strings.TrimSpace(*f.apiURL),
		AuthUser:       *f.authUser,
		AuthPass:       *f.authPass,
		SessionSecret:  *f.sessionSecret,
		UploadRequired: *f.uploadRequired,
		ShowVersion:    *f.showVersion,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(*f.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", *f.logLevel, err)
	}

	if cfg.ShowVersion {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the flag types cannot
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	switch c.Storage {
	case StorageLocal:
		if c.StoragePath == "" {
			errs = append(errs, errors.New("storage-path is required for local storage"))
		}
	case StorageS3:
		if c.S3.Endpoint == "" {
			errs = append(errs, errors.New("s3-endpoint is required for s3 storage"))
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs = append(errs, errors.New("s3-access-key and s3-secret-key are required for s3 storage"))
		}
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3-bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q, valid: local or s3", c.Storage))
	}
	return errors.Join(errs...)
}

// BasicAuthEnabled reports whether API credentials are configured
func (c *Config) BasicAuthEnabled() bool {
	return c.AuthUser != "" || c.AuthPass != ""
}
