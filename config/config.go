// Package config loads the process-wide options the engine reads at
// operation entry (spec §5, §6). It is layered defaults -> file ->
// env the way cartographus/internal/config composes koanf providers;
// the core packages never read it as a singleton, they're handed an
// *Options value explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Options holds every recognized configuration option (spec §6).
type Options struct {
	// ICALParserTimeoutMS bounds how long the query/property parser may
	// run before returning rcalerr.ParseTimeout. 1..60000, default 500.
	ICALParserTimeoutMS int `koanf:"ical_parser_timeout_ms" validate:"min=1,max=60000"`

	// DefaultQueryLimit is the X-LIMIT default when a query omits it.
	DefaultQueryLimit int `koanf:"default_query_limit" validate:"min=1"`

	// DefaultGeoRadiusKM is the X-GEO radius default when DIST= is omitted.
	DefaultGeoRadiusKM float64 `koanf:"default_geo_radius_km" validate:"gt=0"`
}

// ParserTimeout returns ICALParserTimeoutMS as a time.Duration.
func (o Options) ParserTimeout() time.Duration {
	return time.Duration(o.ICALParserTimeoutMS) * time.Millisecond
}

// Defaults returns the spec-mandated default options.
func Defaults() Options {
	return Options{
		ICALParserTimeoutMS: 500,
		DefaultQueryLimit:   50,
		DefaultGeoRadiusKM:  10,
	}
}

var validate = validator.New()

// Load layers defaults, an optional YAML file, then environment
// variables prefixed RCAL_ (e.g. RCAL_ICAL_PARSER_TIMEOUT_MS) on top
// of Defaults(), validates the result, and returns it.
//
// path may be empty, in which case only defaults and environment
// variables apply.
func Load(path string) (Options, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Options{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Options{}, fmt.Errorf("config: load file %q: %w", path, err)
		}
	}

	envProvider := env.Provider("RCAL_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return Options{}, fmt.Errorf("config: load env: %w", err)
	}

	var opts Options
	if err := k.Unmarshal("", &opts); err != nil {
		return Options{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate.Struct(opts); err != nil {
		return Options{}, fmt.Errorf("config: validate: %w", err)
	}
	return opts, nil
}

// envTransform turns RCAL_ICAL_PARSER_TIMEOUT_MS into ical_parser_timeout_ms.
func envTransform(s string) string {
	return lowerAfterPrefix(s, "RCAL_")
}

func lowerAfterPrefix(s, prefix string) string {
	trimmed := s
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		trimmed = s[len(prefix):]
	}
	b := []byte(trimmed)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
