// Package profiles loads named credential profiles from a local file.
//
// The file maps profile names to {EMAIL, PASSWORD} and may be TOML, YAML or
// JSON (comments allowed). Values may reference environment variables with
// {NAME}, e.g. PASSWORD = "{CMA_PASSWORD}".
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Placeholder values shipped in sample profile files
var placeholders = map[string]bool{
	"your-email@example.com": true,
	"CHANGE_ME":              true,
	"changeme":               true,
}

// fileProfile is the on-disk shape of one profile
type fileProfile struct {
	Email    string `toml:"EMAIL" yaml:"EMAIL" json:"EMAIL"`
	Password string `toml:"PASSWORD" yaml:"PASSWORD" json:"PASSWORD"`
}

// resolvedCredentials is validated before a profile is handed out
type resolvedCredentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Store resolves credential profiles from a file. The file is re-read on every call.
type Store struct {
	path     string
	lookup   func(string) (string, bool)
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewStore creates a profile store reading path, resolving {NAME} references from the environment
func NewStore(path string, logger arbor.ILogger) *Store {
	return NewStoreWithLookup(path, os.LookupEnv, logger)
}

// NewStoreWithLookup creates a profile store with a custom reference lookup
func NewStoreWithLookup(path string, lookup func(string) (string, bool), logger arbor.ILogger) *Store {
	return &Store{
		path:     path,
		lookup:   lookup,
		validate: validator.New(),
		logger:   logger,
	}
}

// Path returns the profile file location
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the profile file.
// Values are returned with references substituted but otherwise unchecked.
func (s *Store) Load() (map[string]models.CredentialProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, configError("", fmt.Sprintf("profile file %s not found", s.path), nil)
		}
		return nil, configError("", fmt.Sprintf("failed to read profile file %s", s.path), err)
	}

	raw, err := decode(s.path, data)
	if err != nil {
		return nil, configError("", fmt.Sprintf("malformed profile file %s", s.path), err)
	}
	if len(raw) == 0 {
		return nil, configError("", fmt.Sprintf("profile file %s holds no profiles", s.path), nil)
	}

	result := make(map[string]models.CredentialProfile, len(raw))
	for name, p := range raw {
		result[name] = models.CredentialProfile{
			Name:     name,
			Email:    common.ReplaceKeyReferences(strings.TrimSpace(p.Email), s.lookup, s.logger),
			Password: common.ReplaceKeyReferences(p.Password, s.lookup, s.logger),
		}
	}
	return result, nil
}

// Names lists the profile names in the file, sorted
func (s *Store) Names() ([]string, error) {
	loaded, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Resolve returns usable credentials for the named profile
func (s *Store) Resolve(name string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", configError("", "profile name is required", nil)
	}

	loaded, err := s.Load()
	if err != nil {
		return "", "", err
	}

	profile, ok := loaded[name]
	if !ok {
		return "", "", configError(name, "unknown profile", nil)
	}

	if err := checkValue(profile.Email); err != nil {
		return "", "", configError(name, "EMAIL "+err.Error(), nil)
	}
	if err := checkValue(profile.Password); err != nil {
		return "", "", configError(name, "PASSWORD "+err.Error(), nil)
	}

	if err := s.validate.Struct(resolvedCredentials{Email: profile.Email, Password: profile.Password}); err != nil {
		return "", "", configError(name, "EMAIL is not a valid address", nil)
	}

	s.logger.Debug().
		Str("profile", name).
		Str("email", common.MaskEmail(profile.Email)).
		Msg("Resolved credential profile")

	return profile.Email, profile.Password, nil
}

func checkValue(value string) error {
	switch {
	case value == "":
		return errors.New("is empty")
	case placeholders[value]:
		return errors.New("is still a placeholder")
	case common.HasUnresolvedReference(value):
		return errors.New("references an unset variable")
	}
	return nil
}

// decode picks the parser from the file extension
func decode(path string, data []byte) (map[string]fileProfile, error) {
	profiles := map[string]fileProfile{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &profiles); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profiles); err != nil {
			return nil, err
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &profiles); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported profile file extension %q", filepath.Ext(path))
	}

	return profiles, nil
}
