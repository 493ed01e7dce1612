// Package corpus implements ports.MessageSource over a directory of exported
// channel histories.
//
// Layout: <root>/<group>/<channel>.jsonl, one JSON message per line:
//
//	{"author_id":"42","author_name":"Bob","text":"sometimes I think about cats"}
//
// Groups and channels are enumerated in name order. Each partition is read
// lazily, line by line, every time it is replayed.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/corey/thoughts/internal/ports"
)

// Ext is the file extension of channel histories.
const Ext = ".jsonl"

// unreadableGroup names the partition standing in for a group directory
// that could not be listed. Replaying it yields the listing error, so the
// group is reported as one skipped partition instead of failing enumeration.
const unreadableGroup = ""

// maxLine caps a single history line; longer lines fail the partition.
const maxLine = 1024 * 1024

// Source reads channel histories from a directory tree.
type Source struct {
	root string
}

// New returns a source rooted at dir. The directory is not checked until
// Partitions is called.
func New(dir string) *Source {
	return &Source{root: dir}
}

// Root returns the corpus directory.
func (s *Source) Root() string {
	return s.root
}

// Partitions lists every <group>/<channel>.jsonl under the root.
// Loose .jsonl files directly under the root belong to the group "_".
// Symlinked groups are followed. Only an unreadable root is an error.
func (s *Source) Partitions(ctx context.Context) ([]ports.Partition, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var out []ports.Partition
	var loose []ports.Partition
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		isGroup := e.IsDir() || (e.Type()&fs.ModeSymlink != 0 && !strings.HasSuffix(name, Ext))
		if !isGroup {
			if strings.HasSuffix(name, Ext) {
				loose = append(loose, ports.Partition{Group: "_", Name: strings.TrimSuffix(name, Ext)})
			}
			continue
		}
		channels, err := os.ReadDir(filepath.Join(s.root, name))
		if err != nil {
			out = append(out, ports.Partition{Group: name, Name: unreadableGroup})
			continue
		}
		for _, c := range channels {
			if c.IsDir() || !strings.HasSuffix(c.Name(), Ext) {
				continue
			}
			out = append(out, ports.Partition{Group: name, Name: strings.TrimSuffix(c.Name(), Ext)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return append(loose, out...), nil
}

func (s *Source) path(p ports.Partition) string {
	if p.Group == "_" {
		return filepath.Join(s.root, p.Name+Ext)
	}
	return filepath.Join(s.root, p.Group, p.Name+Ext)
}

// Messages replays one partition from the start. Blank lines are skipped;
// a malformed line or read failure ends the sequence with an error.
func (s *Source) Messages(ctx context.Context, p ports.Partition) iter.Seq2[ports.Message, error] {
	return func(yield func(ports.Message, error) bool) {
		if p.Name == unreadableGroup {
			if _, err := os.ReadDir(filepath.Join(s.root, p.Group)); err != nil {
				yield(ports.Message{}, fmt.Errorf("read group %s: %w", p.Group, err))
			}
			return
		}
		f, err := os.Open(s.path(p))
		if err != nil {
			yield(ports.Message{}, fmt.Errorf("open %s: %w", p, err))
			return
		}
		defer f.Close()

		reader := bufio.NewReaderSize(f, 64*1024)
		lineNo := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(ports.Message{}, err)
				return
			}
			line, err := readLine(reader)
			eof := errors.Is(err, io.EOF)
			if err != nil && !eof {
				yield(ports.Message{}, fmt.Errorf("read %s: %w", p, err))
				return
			}
			if len(line) == 0 && eof {
				return
			}
			lineNo++
			if len(line) > 0 {
				msg, perr := ParseLine(line)
				if perr != nil {
					yield(ports.Message{}, fmt.Errorf("%s line %d: %w", p, lineNo, perr))
					return
				}
				if !yield(msg, nil) {
					return
				}
			}
			if eof {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxLine {
			return nil, fmt.Errorf("line exceeds %d bytes", maxLine)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return trimNewline(buf), err
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// record is the on-disk line shape. author_id may be a JSON string or number.
type record struct {
	AuthorID   json.Number `json:"author_id"`
	AuthorName string      `json:"author_name"`
	Text       string      `json:"text"`
	Bot        bool        `json:"bot"`
	Channel    string      `json:"channel"`
}

// ParseLine decodes one history line. Shared with the live inbox, which uses
// the same shape plus a channel field.
func ParseLine(line []byte) (ports.Message, error) {
	lm, err := ParseLiveLine(line)
	return lm.Message, err
}

// ParseLiveLine decodes one line including the channel field.
func ParseLiveLine(line []byte) (ports.LiveMessage, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return ports.LiveMessage{}, fmt.Errorf("parse message: %w", err)
	}
	id, err := ports.NormalizeAuthorID(r.AuthorID.String())
	if err != nil {
		return ports.LiveMessage{}, err
	}
	return ports.LiveMessage{
		Message: ports.Message{
			AuthorID:   id,
			AuthorName: r.AuthorName,
			Text:       r.Text,
			Bot:        r.Bot,
		},
		Channel: r.Channel,
	}, nil
}
