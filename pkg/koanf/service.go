package koanf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Provide reads configuration with koanf.
// def contains the default values, path an optional TOML file and prefix the
// environment variable prefix (PREFIX_SECTION__FIELD).
func Provide[T interface{}](prefix string, path string, def T) (T, error) {
	k := koanf.New(".")

	// create a new instance based-on given type.
	var instance T

	// load default configuration from default function
	if err := k.Load(structs.Provider(def, "koanf"), nil); err != nil {
		return instance, fmt.Errorf("error loading default: %w", err)
	}

	// load configuration from file
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return instance, fmt.Errorf("error loading %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return instance, fmt.Errorf("error loading %s: %w", path, err)
		}
	}

	// load environment variables
	envPrefix := strings.ToUpper(prefix) + "_"
	if err := k.Load(
		// replace __ with . in environment variables so you can reference field a in struct b
		// as a__b.
		env.Provider(envPrefix, ".", func(source string) string {
			base := strings.ToLower(strings.TrimPrefix(source, envPrefix))

			return strings.ReplaceAll(base, "__", ".")
		}),
		nil,
	); err != nil {
		return instance, fmt.Errorf("error loading environment variables: %w", err)
	}

	if err := k.Unmarshal("", &instance); err != nil {
		return instance, fmt.Errorf("error un-marshalling config: %w", err)
	}

	return instance, nil
}
