// Package socket implements a JSON-over-Unix-socket protocol for the thoughts daemon.
// The protocol uses newline-delimited JSON: each message is one JSON object + \n.
package socket

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/corey/thoughts/internal/ports"
)

// SocketPath returns the Unix socket path for a given project root.
// Format: /tmp/thoughts-{first12hex}.sock
func SocketPath(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	h := sha256.Sum256([]byte(abs))
	return fmt.Sprintf("/tmp/thoughts-%x.sock", h[:6])
}

// Method names for the protocol.
const (
	MethodHealth    = "health"
	MethodShutdown  = "shutdown"
	MethodIngest    = "ingest"
	MethodAdd       = "add"
	MethodRemove    = "remove"
	MethodRename    = "rename"
	MethodSnapshot  = "snapshot"
	MethodRender    = "render"
	MethodRenderAll = "render_all"
	MethodRescan    = "rescan"
	MethodStatus    = "status"
	MethodWipe      = "wipe"
)

// Request is the wire format for client-to-server messages.
type Request struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Response is the wire format for server-to-client messages. Code carries
// a stable identifier for errors the client maps back to sentinels.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   string      `json:"code,omitempty"`
}

// Error codes.
const (
	CodeScanInProgress = "scan_in_progress"
	CodeNoData         = "no_data"
	CodeInvalidAuthor  = "invalid_author"
	CodeEmptyPhrase    = "empty_phrase"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeScanInProgress, scan.ErrScanInProgress},
	{CodeNoData, ports.ErrNoData},
	{CodeInvalidAuthor, ports.ErrInvalidAuthorID},
	{CodeEmptyPhrase, ledger.ErrEmptyPhrase},
}

func codeFor(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ServerError is a failure reported by the daemon. It unwraps to the
// matching sentinel when the response carried a known code.
type ServerError struct {
	Message string
	Code    string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

func (e *ServerError) Unwrap() error {
	for _, c := range codes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}

// AuthorParams names one author.
type AuthorParams struct {
	Author ports.AuthorID `json:"author"`
}

// IngestParams is one live message delivered through the socket.
type IngestParams struct {
	Message ports.Message `json:"message"`
}

// IngestResult reports what an ingest did.
type IngestResult struct {
	Phrases    []string `json:"phrases,omitempty"`
	Recorded   int      `json:"recorded"`
	Suppressed bool     `json:"suppressed,omitempty"` // a scan was running
	Ignored    bool     `json:"ignored,omitempty"`    // bot author
}

// PhraseParams targets one phrase of one author.
type PhraseParams struct {
	Author ports.AuthorID `json:"author"`
	Phrase string         `json:"phrase"`
}

// CountResult carries the count of one phrase after a mutation.
type CountResult struct {
	Count   int  `json:"count"`
	Removed bool `json:"removed,omitempty"`
}

// RenameParams is the params for a rename request.
type RenameParams struct {
	Author ports.AuthorID `json:"author"`
	Old    string         `json:"old"`
	New    string         `json:"new"`
}

// SnapshotResult is one author's ledger segment.
type SnapshotResult struct {
	Author  ports.AuthorID    `json:"author"`
	Name    string            `json:"name"`
	Entries *ports.ThoughtMap `json:"entries"`
}

// RescanResult mirrors scan.Result on the wire.
type RescanResult struct {
	Author           ports.AuthorID          `json:"author"`
	Matched          int                     `json:"matched"`
	Messages         int                     `json:"messages"`
	Partitions       int                     `json:"partitions"`
	FailedPartitions []scan.PartitionFailure `json:"failed_partitions,omitempty"`
	Elapsed          string                  `json:"elapsed"`
}

// HealthResult is the result of a health request.
type HealthResult struct {
	Status  string `json:"status"`
	Authors int    `json:"authors"`
	Uptime  string `json:"uptime"`
}

// StatusResult is the result of a status request.
type StatusResult struct {
	State       string               `json:"state"`
	Authors     []ledger.AuthorTotal `json:"authors"`
	Phrases     int                  `json:"phrases"`
	Occurrences int                  `json:"occurrences"`
	Corpus      string               `json:"corpus"`
	Inbox       string               `json:"inbox"`
	PublishDir  string               `json:"publish_dir"`
	HTTPPort    int                  `json:"http_port,omitempty"`
	LastScan    *RescanResult        `json:"last_scan,omitempty"`
	Uptime      string               `json:"uptime"`
}

// RescanTimeout bounds a rescan round trip. Scans are paced per partition
// and can legitimately take minutes.
const RescanTimeout = 30 * time.Minute

// decode re-marshals a loosely typed params or result value into T.
func decode[T any](v interface{}) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
