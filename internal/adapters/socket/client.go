package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/corey/thoughts/internal/ports"
	"github.com/google/uuid"
)

// DefaultTimeout bounds an ordinary request/response round trip.
const DefaultTimeout = 5 * time.Second

// Client connects to the thoughts daemon over a Unix socket.
// It satisfies workflow.Mutator and workflow.Publisher.
type Client struct {
	sockPath string
}

// NewClient creates a client that will connect to the given socket path.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath}
}

// Health sends a health check request.
func (c *Client) Health() (*HealthResult, error) {
	return callFor[HealthResult](context.Background(), c, MethodHealth, nil, DefaultTimeout)
}

// Shutdown sends a shutdown request to the daemon.
func (c *Client) Shutdown() error {
	_, err := c.call(context.Background(), MethodShutdown, nil, DefaultTimeout)
	return err
}

// Ingest delivers one message as if it arrived live.
func (c *Client) Ingest(ctx context.Context, msg ports.Message) (*IngestResult, error) {
	return callFor[IngestResult](ctx, c, MethodIngest, IngestParams{Message: msg}, DefaultTimeout)
}

// Add records one occurrence of phrase for author.
func (c *Client) Add(ctx context.Context, author ports.AuthorID, phrase string) (int, error) {
	res, err := callFor[CountResult](ctx, c, MethodAdd, PhraseParams{Author: author, Phrase: phrase}, DefaultTimeout)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// RemoveOne removes one occurrence of phrase.
func (c *Client) RemoveOne(ctx context.Context, author ports.AuthorID, phrase string) (bool, error) {
	res, err := callFor[CountResult](ctx, c, MethodRemove, PhraseParams{Author: author, Phrase: phrase}, DefaultTimeout)
	if err != nil {
		return false, err
	}
	return res.Removed, nil
}

// Rename merges oldPhrase into newPhrase.
func (c *Client) Rename(ctx context.Context, author ports.AuthorID, oldPhrase, newPhrase string) error {
	_, err := c.call(ctx, MethodRename, RenameParams{Author: author, Old: oldPhrase, New: newPhrase}, DefaultTimeout)
	return err
}

// Snapshot fetches a copy of one author's entries.
func (c *Client) Snapshot(ctx context.Context, author ports.AuthorID) (*SnapshotResult, error) {
	res, err := callFor[SnapshotResult](ctx, c, MethodSnapshot, AuthorParams{Author: author}, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	if res.Entries == nil {
		res.Entries = ports.NewThoughtMap()
	}
	return res, nil
}

// Render regenerates and publishes one author's chart.
func (c *Client) Render(ctx context.Context, author ports.AuthorID) (*ports.Artifact, error) {
	return callFor[ports.Artifact](ctx, c, MethodRender, AuthorParams{Author: author}, DefaultTimeout)
}

// Publish regenerates one author's chart, discarding the artifact.
func (c *Client) Publish(ctx context.Context, author ports.AuthorID) error {
	_, err := c.Render(ctx, author)
	return err
}

// RenderAll regenerates and publishes the combined chart.
func (c *Client) RenderAll(ctx context.Context) (*ports.Artifact, error) {
	return callFor[ports.Artifact](ctx, c, MethodRenderAll, nil, DefaultTimeout)
}

// Rescan rebuilds author's ledger segment from the corpus. It blocks until
// the scan finishes and uses RescanTimeout.
func (c *Client) Rescan(ctx context.Context, author ports.AuthorID) (*RescanResult, error) {
	return callFor[RescanResult](ctx, c, MethodRescan, AuthorParams{Author: author}, RescanTimeout)
}

// Status fetches the daemon status.
func (c *Client) Status() (*StatusResult, error) {
	return callFor[StatusResult](context.Background(), c, MethodStatus, nil, DefaultTimeout)
}

// Wipe sends a wipe request to clear the ledger.
func (c *Client) Wipe() error {
	_, err := c.call(context.Background(), MethodWipe, nil, DefaultTimeout)
	return err
}

// Ping checks if the daemon is reachable.
func (c *Client) Ping() bool {
	conn, err := net.DialTimeout("unix", c.sockPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func callFor[T any](ctx context.Context, c *Client, method string, params interface{}, timeout time.Duration) (*T, error) {
	resp, err := c.call(ctx, method, params, timeout)
	if err != nil {
		return nil, err
	}
	result, err := decode[T](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	dialCtx, dialCancel := context.WithTimeout(ctx, 2*time.Second)
	defer dialCancel()
	conn, err := d.DialContext(dialCtx, "unix", c.sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	// Set deadline for the whole request/response
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	req := Request{ID: uuid.NewString(), Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write: %w", ctxErr(ctx, err))
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read: %w", ctxErr(ctx, err))
		}
		return nil, fmt.Errorf("empty response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.ID != "" && resp.ID != req.ID {
		return nil, fmt.Errorf("response id %s does not match request %s", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, &ServerError{Message: resp.Error, Code: resp.Code}
	}
	return &resp, nil
}

// ctxErr prefers the context's error when the deadline was ours.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}
