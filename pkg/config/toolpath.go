package config

import (
	"gcode-toolpath/pkg/log"
)

// Defaults for every option in toolpath.cfg.
const (
	DefaultLayerTolerance = 0.05
	DefaultWidth          = 0.6
	DefaultHeight         = 0.2
	DefaultRadialSegments = 6
	DefaultServerAddress  = ":7130"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"

	MinRadialSegments = 4
	MaxRadialSegments = 8
)

// ToolpathConfig holds the options of a toolpath.cfg file.
//
//	[toolpath]
//	layer_tolerance: 0.05
//	width: 0.6
//	height: 0.2
//	[mesh]
//	radial_segments: 6
//	[server]
//	address: :7130
//	[log]
//	level: info
//	format: text
//	caller: false
type ToolpathConfig struct {
	LayerTolerance float64
	Width          float64
	Height         float64

	RadialSegments int

	ServerAddress string

	LogLevel  string
	LogFormat string
	LogCaller bool

	// UnknownSections lists sections of the file nothing reads, sorted.
	UnknownSections []string
}

// DefaultToolpathConfig returns the configuration used when no file is given.
func DefaultToolpathConfig() ToolpathConfig {
	return ToolpathConfig{
		LayerTolerance: DefaultLayerTolerance,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		RadialSegments: DefaultRadialSegments,
		ServerAddress:  DefaultServerAddress,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
}

// ParseToolpathConfig loads and validates a toolpath.cfg file. Missing
// sections and options keep their defaults; unknown options in a known
// section are an error. Unknown sections are only recorded.
func ParseToolpathConfig(path string) (ToolpathConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return ToolpathConfig{}, err
	}
	return FromConfig(cfg)
}

// FromConfig extracts a ToolpathConfig from an already loaded file.
func FromConfig(cfg *Config) (ToolpathConfig, error) {
	tc := DefaultToolpathConfig()
	zero := 0.0

	if sec := cfg.GetSectionOptional("toolpath"); sec != nil {
		var err error
		positive := FloatBounds{Above: &zero}
		if tc.LayerTolerance, err = sec.GetFloatWithBounds("layer_tolerance", positive, tc.LayerTolerance); err != nil {
			return ToolpathConfig{}, err
		}
		if tc.Width, err = sec.GetFloatWithBounds("width", positive, tc.Width); err != nil {
			return ToolpathConfig{}, err
		}
		if tc.Height, err = sec.GetFloatWithBounds("height", positive, tc.Height); err != nil {
			return ToolpathConfig{}, err
		}
	}

	if sec := cfg.GetSectionOptional("mesh"); sec != nil {
		lo, hi := MinRadialSegments, MaxRadialSegments
		n, err := sec.GetIntWithBounds("radial_segments", &lo, &hi, tc.RadialSegments)
		if err != nil {
			return ToolpathConfig{}, err
		}
		tc.RadialSegments = n
	}

	if sec := cfg.GetSectionOptional("server"); sec != nil {
		addr, err := sec.Get("address", tc.ServerAddress)
		if err != nil {
			return ToolpathConfig{}, err
		}
		tc.ServerAddress = addr
	}

	if sec := cfg.GetSectionOptional("log"); sec != nil {
		var err error
		if tc.LogLevel, err = sec.GetChoice("level", []string{"debug", "info", "warn", "error"}, tc.LogLevel); err != nil {
			return ToolpathConfig{}, err
		}
		if tc.LogFormat, err = sec.GetChoice("format", []string{"text", "json"}, tc.LogFormat); err != nil {
			return ToolpathConfig{}, err
		}
		if tc.LogCaller, err = sec.GetBool("caller", tc.LogCaller); err != nil {
			return ToolpathConfig{}, err
		}
	}

	if err := cfg.CheckUnusedOptions(); err != nil {
		return ToolpathConfig{}, err
	}
	tc.UnknownSections = cfg.GetUnusedSections()
	return tc, nil
}

// ConfigureLogger applies the [log] section to l. Environment variables
// read by log.ConfigureFromEnv still win when set.
func (tc ToolpathConfig) ConfigureLogger(l *log.Logger) {
	l.SetLevel(log.ParseLevel(tc.LogLevel))
	l.SetFormat(log.ParseFormat(tc.LogFormat))
	l.SetCaller(tc.LogCaller)
	log.ConfigureFromEnv(l)
}

// WarnUnknownSections logs one warning per section the file carries but no
// option reads.
func (tc ToolpathConfig) WarnUnknownSections(l *log.Logger) {
	for _, name := range tc.UnknownSections {
		l.WithField("section", name).Warn("unknown config section ignored")
	}
}
