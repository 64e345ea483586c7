package domain

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/eleven-am/specter/internal/xjson"
	"gopkg.in/yaml.v3"
)

const ConfigPathEnv = "SPECTER_CONFIG"

// LoadConfig reads path (YAML or JSON by extension), overlays it on the
// defaults and validates the result. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fileCfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := xjson.UnmarshalStrict(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	default:
		if err := decodeYAMLStrict(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}

	cfg := DefaultConfig()
	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromEnv loads the file named by SPECTER_CONFIG, or returns the
// defaults when the variable is unset.
func LoadConfigFromEnv() (*Config, error) {
	path := os.Getenv(ConfigPathEnv)
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

func decodeYAMLStrict(b []byte, dst interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	var extra interface{}
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple YAML documents are not supported")
		}
		return err
	}
	return nil
}
