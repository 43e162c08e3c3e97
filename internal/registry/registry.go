// Package registry loads and validates the ordered list of ledgers a query
// fans out to.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/piyushdaiya/nonce-checker/internal/core"
)

//go:embed default.yaml
var defaultYAML []byte

var ErrInvalidRegistry = errors.New("invalid ledger registry")

type file struct {
	Ledgers []core.LedgerDescriptor `yaml:"ledgers" toml:"ledgers"`
}

// Default returns the built-in registry.
func Default() []core.LedgerDescriptor {
	ledgers, err := ParseYAML(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("default registry: %v", err))
	}
	return ledgers
}

// LoadFile reads a YAML or TOML registry, chosen by extension.
func LoadFile(path string) ([]core.LedgerDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidRegistry, filepath.Ext(path))
	}
}

func ParseYAML(data []byte) ([]core.LedgerDescriptor, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	if err := Validate(f.Ledgers); err != nil {
		return nil, err
	}
	return f.Ledgers, nil
}

func ParseTOML(data []byte) ([]core.LedgerDescriptor, error) {
	var f file
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	if err := Validate(f.Ledgers); err != nil {
		return nil, err
	}
	return f.Ledgers, nil
}

// Validate reports every malformed entry. Duplicate names are rejected so
// no ledger's outcome can be shadowed in a report.
func Validate(ledgers []core.LedgerDescriptor) error {
	var errs []error
	seen := make(map[string]int, len(ledgers))
	for i, l := range ledgers {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("entry %d: name is empty", i))
		} else if first, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("entry %d: name %q duplicates entry %d", i, name, first))
		} else {
			seen[name] = i
		}
		if err := validateURL(l.RPCURL); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %v", i, name, err))
		}
		if l.ChainID <= 0 {
			errs = append(errs, fmt.Errorf("entry %d (%s): chain id %d is not positive", i, name, l.ChainID))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRegistry, errors.Join(errs...))
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("rpc url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("rpc url: %v", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("rpc url scheme %q not supported", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("rpc url has no host")
	}
	return nil
}
