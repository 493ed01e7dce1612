package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/corey/thoughts/internal/domain/workflow"
	"github.com/corey/thoughts/internal/ports"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the config file.
const (
	EnvCorpus = "THOUGHTS_CORPUS"
	EnvInbox  = "THOUGHTS_INBOX"
)

// Settings is the effective daemon configuration. Paths are absolute.
type Settings struct {
	CorpusDir      string
	Inbox          string
	PublishDir     string
	Pacing         time.Duration
	SessionTimeout time.Duration

	// HTTPPort of 0 picks the per-project default; negative disables the dashboard.
	HTTPPort int

	Names map[ports.AuthorID]string
}

// settingsFile is the on-disk shape of config.yaml.
type settingsFile struct {
	CorpusDir      string            `yaml:"corpus_dir,omitempty"`
	Inbox          string            `yaml:"inbox,omitempty"`
	PublishDir     string            `yaml:"publish_dir,omitempty"`
	Pacing         string            `yaml:"pacing,omitempty"`
	SessionTimeout string            `yaml:"session_timeout,omitempty"`
	HTTPPort       int               `yaml:"http_port,omitempty"`
	Names          map[string]string `yaml:"names,omitempty"`
}

// DefaultSettings returns the settings used when no config file exists.
func DefaultSettings(projectRoot string, p *Paths) Settings {
	return Settings{
		CorpusDir:      filepath.Join(projectRoot, "corpus"),
		Inbox:          p.Inbox,
		PublishDir:     p.PublishDir,
		Pacing:         scan.DefaultPacing,
		SessionTimeout: workflow.DefaultTimeout,
		Names:          map[ports.AuthorID]string{},
	}
}

// LoadSettings reads config.yaml at path over the defaults, then applies
// environment overrides. A missing file is not an error. Relative paths in
// the file resolve against projectRoot.
func LoadSettings(path, projectRoot string, p *Paths) (Settings, error) {
	s := DefaultSettings(projectRoot, p)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return s, fmt.Errorf("read config: %w", err)
	default:
		var f settingsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return s, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := s.apply(f, projectRoot); err != nil {
			return s, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvCorpus); v != "" {
		s.CorpusDir = resolve(projectRoot, v)
	}
	if v := os.Getenv(EnvInbox); v != "" {
		s.Inbox = resolve(projectRoot, v)
	}
	return s, nil
}

func (s *Settings) apply(f settingsFile, projectRoot string) error {
	if f.CorpusDir != "" {
		s.CorpusDir = resolve(projectRoot, f.CorpusDir)
	}
	if f.Inbox != "" {
		s.Inbox = resolve(projectRoot, f.Inbox)
	}
	if f.PublishDir != "" {
		s.PublishDir = resolve(projectRoot, f.PublishDir)
	}
	if f.Pacing != "" {
		d, err := time.ParseDuration(f.Pacing)
		if err != nil {
			return fmt.Errorf("pacing: %w", err)
		}
		// Zero in the file means "no pause", which the coordinator spells as negative.
		if d == 0 {
			d = -1
		}
		s.Pacing = d
	}
	if f.SessionTimeout != "" {
		d, err := time.ParseDuration(f.SessionTimeout)
		if err != nil {
			return fmt.Errorf("session_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("session_timeout must be positive, got %s", f.SessionTimeout)
		}
		s.SessionTimeout = d
	}
	s.HTTPPort = f.HTTPPort
	for raw, name := range f.Names {
		id, err := ports.NormalizeAuthorID(raw)
		if err != nil {
			return fmt.Errorf("names: %w", err)
		}
		s.Names[id] = name
	}
	return nil
}

// YAML renders the effective settings in config.yaml form.
func (s Settings) YAML() ([]byte, error) {
	f := settingsFile{
		CorpusDir:      s.CorpusDir,
		Inbox:          s.Inbox,
		PublishDir:     s.PublishDir,
		Pacing:         s.Pacing.String(),
		SessionTimeout: s.SessionTimeout.String(),
		HTTPPort:       s.HTTPPort,
	}
	if s.Pacing < 0 {
		f.Pacing = "0s"
	}
	if len(s.Names) > 0 {
		f.Names = make(map[string]string, len(s.Names))
		for id, name := range s.Names {
			f.Names[string(id)] = name
		}
	}
	return yaml.Marshal(f)
}

// ResolveAuthor turns a user reference into an AuthorID. Numeric ids and
// mentions are normalized directly; anything else ("@bob", "Bob") is matched
// case-insensitively against the configured names.
func (s Settings) ResolveAuthor(raw string) (ports.AuthorID, error) {
	id, err := ports.NormalizeAuthorID(raw)
	if err == nil {
		return id, nil
	}
	name := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if name == "" {
		return "", err
	}
	if id, err := ports.NormalizeAuthorID(name); err == nil {
		return id, nil
	}
	for id, n := range s.Names {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no user named %q", ports.ErrInvalidAuthorID, name)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
