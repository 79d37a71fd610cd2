// Package config resolves the startup configuration of the cafe binary
// from command-line flags, the combined -o options string, CAFE_*
// environment variables and an optional config file.
//
// Precedence, highest first: positional arguments, dedicated flags, the -o
// options string, environment, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Option keys shared by the dedicated flags, the -o string, the
// environment (upper-cased, CAFE_ prefix, dashes as underscores) and config
// files.
const (
	KeyCacheDirectory   = "cache-directory"
	KeyCacheInitExe     = "cache-init-exe"
	KeyBackingRoot      = "url"
	KeyLogLevel         = "log-level"
	KeyLogFile          = "log-file"
	KeyBootstrapTimeout = "bootstrap-timeout"
	KeyBootstrapOutput  = "bootstrap-output"
	KeyAllowOther       = "allow-other"
	KeyConcurrent       = "concurrent"
	KeyDebug            = "debug"
)

// EnvPrefix prefixes environment variable names
const EnvPrefix = "CAFE"

var (
	// ErrHelp is returned when usage was requested
	ErrHelp = pflag.ErrHelp
	// ErrMissingMountPoint is returned when no mount point was given
	ErrMissingMountPoint = errors.New("no mountpoint provided")
	// ErrMissingBackingRoot is returned when no backing root was given
	ErrMissingBackingRoot = errors.New("no backing root provided (positional argument or -u)")
	// ErrMissingCacheDirectory is returned when no cache directory was given
	ErrMissingCacheDirectory = errors.New("no cache-directory option provided")
	// ErrMissingCacheInitExe is returned when no population command was given
	ErrMissingCacheInitExe = errors.New("no cache-init-exe option provided")
	// ErrMalformedOptions is returned for an unparsable -o string
	ErrMalformedOptions = errors.New("malformed options")
	// ErrTooManyArguments is returned for more than two positional arguments
	ErrTooManyArguments = errors.New("too many arguments")
)

// Config is the resolved startup configuration. It is built once and
// passed by value; nothing mutates it afterwards.
type Config struct {
	MountPoint        string
	BackingRoot       string
	CacheRoot         string
	PopulationCommand string

	// MountOptions holds -o entries that are not cafe settings. They are
	// handed to FUSE verbatim.
	MountOptions []string

	LogLevel         string
	LogFile          string
	BootstrapTimeout time.Duration

	// BootstrapOutput forwards the population command's output to stderr.
	// It is discarded otherwise.
	BootstrapOutput bool
	AllowOther      bool
	Concurrent      bool
	Debug           bool
}

// flags holds the raw values bound to the flag set.
type flags struct {
	options          string
	cacheDirectory   string
	cacheInitExe     string
	backingRoot      string
	configFile       string
	logLevel         string
	logFile          string
	bootstrapTimeout time.Duration
	bootstrapOutput  bool
	allowOther       bool
	concurrent       bool
	debug            bool
}

// newFlagSet returns the flag set understood by Resolve, bound to f.
func newFlagSet(name string, f *flags, output io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.SortFlags = false

	flagSet.StringVarP(&f.options, "options", "o", "", "comma separated options: "+KeyCacheDirectory+"=DIR,"+KeyCacheInitExe+"=EXE; other entries are passed to FUSE")
	flagSet.StringVarP(&f.cacheDirectory, KeyCacheDirectory, "c", "", "directory to store cached files")
	flagSet.StringVarP(&f.cacheInitExe, KeyCacheInitExe, "e", "", "executable to initialize cache, run as: EXE BACKING_ROOT CACHE_DIRECTORY")
	flagSet.StringVarP(&f.backingRoot, KeyBackingRoot, "u", "", "directory to use as the backing store")
	flagSet.StringVar(&f.configFile, "config", "", "read settings from this file (yaml, toml or json)")
	flagSet.StringVar(&f.logLevel, KeyLogLevel, "", "log level: debug, info, warn or error (default info)")
	flagSet.StringVar(&f.logFile, KeyLogFile, "", "write JSON logs to this file instead of stderr")
	flagSet.DurationVar(&f.bootstrapTimeout, KeyBootstrapTimeout, 0, "give up waiting for the cache population command after this long (0 waits forever)")
	flagSet.BoolVar(&f.bootstrapOutput, KeyBootstrapOutput, false, "show the output of the cache population command on stderr")
	flagSet.BoolVar(&f.allowOther, KeyAllowOther, false, "let other users access the mount")
	flagSet.BoolVar(&f.concurrent, KeyConcurrent, false, "serve requests from several goroutines")
	flagSet.BoolVarP(&f.debug, KeyDebug, "d", false, "log every FUSE request")
	flagSet.BoolP("help", "h", false, "show help")

	_ = flagSet.MarkHidden(KeyBackingRoot)
	return flagSet
}

// Usage writes the usage text for program to w.
func Usage(w io.Writer, program string) {
	var f flags
	flagSet := newFlagSet(program, &f, w)
	fmt.Fprintf(w, "Usage: %s [OPTIONS]* [backing-root] mountpoint\n\n", program)
	flagSet.PrintDefaults()
}

// Resolve builds a Config from command-line arguments (without the program
// name) and the environment looked up through lookupEnv. A nil lookupEnv
// uses the process environment.
func Resolve(program string, args []string, lookupEnv func(string) (string, bool)) (Config, error) {
	var f flags
	flagSet := newFlagSet(program, &f, io.Discard)
	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		return Config{}, ErrHelp
	}

	settings, mountOptions, err := ParseOptions(f.options)
	if err != nil {
		return Config{}, err
	}

	v, err := newViper(f.configFile, lookupEnv)
	if err != nil {
		return Config{}, err
	}

	// pick applies the precedence rule for one setting.
	pick := func(key, flagValue string) string {
		if flagSet.Changed(key) && flagValue != "" {
			return flagValue
		}
		if value, ok := settings[key]; ok {
			return value
		}
		return v.GetString(key)
	}
	// pickBool lets an explicit --flag=false override the lower layers.
	pickBool := func(key string, flagValue bool) bool {
		if flagSet.Changed(key) {
			return flagValue
		}
		return v.GetBool(key)
	}

	cfg := Config{
		CacheRoot:         pick(KeyCacheDirectory, f.cacheDirectory),
		PopulationCommand: pick(KeyCacheInitExe, f.cacheInitExe),
		BackingRoot:       pick(KeyBackingRoot, f.backingRoot),
		MountOptions:      mountOptions,
		LogLevel:          pick(KeyLogLevel, f.logLevel),
		LogFile:           pick(KeyLogFile, f.logFile),
		BootstrapOutput:   pickBool(KeyBootstrapOutput, f.bootstrapOutput),
		AllowOther:        pickBool(KeyAllowOther, f.allowOther),
		Concurrent:        pickBool(KeyConcurrent, f.concurrent),
		Debug:             pickBool(KeyDebug, f.debug),
	}

	cfg.BootstrapTimeout = f.bootstrapTimeout
	if !flagSet.Changed(KeyBootstrapTimeout) {
		if raw := pick(KeyBootstrapTimeout, ""); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s %q: %w", KeyBootstrapTimeout, raw, err)
			}
			cfg.BootstrapTimeout = timeout
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// One positional argument is the mount point; two are the backing
	// root followed by the mount point.
	switch positional := flagSet.Args(); len(positional) {
	case 0:
	case 1:
		cfg.MountPoint = positional[0]
	case 2:
		cfg.BackingRoot = positional[0]
		cfg.MountPoint = positional[1]
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrTooManyArguments, strings.Join(positional[2:], " "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first missing required setting
func (c Config) Validate() error {
	switch {
	case c.MountPoint == "":
		return ErrMissingMountPoint
	case c.BackingRoot == "":
		return ErrMissingBackingRoot
	case c.CacheRoot == "":
		return ErrMissingCacheDirectory
	case c.PopulationCommand == "":
		return ErrMissingCacheInitExe
	}
	return nil
}

// ParseOptions splits a combined options string such as
// "cache-directory=/cache,cache-init-exe=warm,allow_other". Recognized keys
// are returned as settings; everything else is returned as FUSE mount
// options. Empty entries are ignored. A recognized key without a value, or
// an entry with an empty key, is an error.
func ParseOptions(options string) (map[string]string, []string, error) {
	settings := make(map[string]string)
	var mountOptions []string
	if options == "" {
		return settings, nil, nil
	}

	for _, entry := range strings.Split(options, ",") {
		if entry == "" {
			continue
		}
		key, value, hasValue := strings.Cut(entry, "=")
		if key == "" {
			return nil, nil, fmt.Errorf("%w: empty key in %q", ErrMalformedOptions, entry)
		}
		switch key {
		case KeyCacheDirectory, KeyCacheInitExe:
			if !hasValue || value == "" {
				return nil, nil, fmt.Errorf("%w: %s needs a value", ErrMalformedOptions, key)
			}
			settings[key] = value
		default:
			mountOptions = append(mountOptions, entry)
		}
	}
	return settings, mountOptions, nil
}

// newViper prepares the environment and config-file layer.
func newViper(configFile string, lookupEnv func(string) (string, bool)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	keys := []string{
		KeyCacheDirectory, KeyCacheInitExe, KeyBackingRoot, KeyLogLevel,
		KeyLogFile, KeyBootstrapTimeout, KeyBootstrapOutput, KeyAllowOther, KeyConcurrent, KeyDebug,
	}
	if lookupEnv != nil {
		// Feed the injected environment in as overrides of the file layer.
		for _, key := range keys {
			name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
			if value, ok := lookupEnv(name); ok {
				v.Set(key, value)
			}
		}
	} else {
		v.AutomaticEnv()
		for _, key := range keys {
			if err := v.BindEnv(key); err != nil {
				return nil, err
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}
	return v, nil
}
