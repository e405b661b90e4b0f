package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
)

// Load reads a YAML file over the defaults, substituting ${VAR_NAME}
// references from the environment, and validates the result.
func Load(filePath string) (*WriterConfig, error) {
	cfg, err := ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile is Load without validation, for callers that overlay flags
// before validating.
func ReadFile(filePath string) (*WriterConfig, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}
	return Decode(data)
}

// Parse is Load on an in-memory document.
func Parse(data []byte) (*WriterConfig, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses a document over the defaults without validating it.
func Decode(data []byte) (*WriterConfig, error) {
	cfg := Default()
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}
	return cfg, nil
}

// Save writes cfg to a YAML file.
func Save(filePath string, cfg *WriterConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file")
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var sb strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		sb.WriteString(content[:start])
		sb.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	sb.WriteString(content)
	return sb.String()
}
