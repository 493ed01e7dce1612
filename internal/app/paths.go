package app

import (
	"os"
	"path/filepath"
)

// Paths holds all resolved filesystem paths for the .thoughts/ project directory.
type Paths struct {
	Root   string // .thoughts/
	DB     string // .thoughts/thoughts.db
	Config string // .thoughts/config.yaml
	Inbox  string // .thoughts/inbox.jsonl

	PublishDir string // .thoughts/publish/

	LogDir    string // .thoughts/log/
	DaemonLog string // .thoughts/log/daemon.log

	RunDir   string // .thoughts/run/
	PIDFile  string // .thoughts/run/daemon.pid
	PortFile string // .thoughts/run/http.port

	// Legacy is the flat JSON document older installs kept next to the project.
	Legacy string // thoughts.json
}

// NewPaths constructs all resolved paths from a project root directory.
func NewPaths(projectRoot string) *Paths {
	root := filepath.Join(projectRoot, ".thoughts")
	return &Paths{
		Root:   root,
		DB:     filepath.Join(root, "thoughts.db"),
		Config: filepath.Join(root, "config.yaml"),
		Inbox:  filepath.Join(root, "inbox.jsonl"),

		PublishDir: filepath.Join(root, "publish"),

		LogDir:    filepath.Join(root, "log"),
		DaemonLog: filepath.Join(root, "log", "daemon.log"),

		RunDir:   filepath.Join(root, "run"),
		PIDFile:  filepath.Join(root, "run", "daemon.pid"),
		PortFile: filepath.Join(root, "run", "http.port"),

		Legacy: filepath.Join(projectRoot, "thoughts.json"),
	}
}

// EnsureDirs creates all subdirectories under .thoughts/. Idempotent.
func (p *Paths) EnsureDirs() error {
	dirs := []string{
		p.Root,
		p.PublishDir,
		p.LogDir,
		p.RunDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// CleanEphemeral removes ephemeral runtime files (PID file and port file).
// Called on clean daemon shutdown.
func (p *Paths) CleanEphemeral() {
	os.Remove(p.PIDFile)
	os.Remove(p.PortFile)
}
