package filter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/odvcencio/reforge/pkg/rewrite"
)

// Command converts file content through an external process: the blob is
// written to its stdin and its stdout becomes the new content. The file
// name is passed in REFORGE_NAME.
type Command struct {
	Argv     []string
	Patterns *Matcher // empty selects every file
	Timeout  time.Duration
	Env      []string
}

func (c Command) Name() string { return "command" }

func (c Command) PathDependent() bool { return c.Patterns.PathDependent() }

func (c Command) RewriteBlob(ctx context.Context, b *rewrite.Blob) ([]*rewrite.Blob, error) {
	if !c.Patterns.Empty() && !c.Patterns.Match(blobPath(ctx, b.Name)) {
		return keep(b), nil
	}
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("command: no argv")
	}
	in, err := b.Content()
	if err != nil {
		return nil, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(append(os.Environ(), c.Env...), "REFORGE_NAME="+b.Name)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.Argv[0], ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", c.Argv[0], err)
		}
		return nil, fmt.Errorf("%s: %w: %s", c.Argv[0], err, msg)
	}
	if bytes.Equal(stdout.Bytes(), in) {
		return keep(b), nil
	}
	b.SetContent(stdout.Bytes())
	return keep(b), nil
}
