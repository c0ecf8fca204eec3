package filter

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return p
}

func TestCommandConvertsSelectedFiles(t *testing.T) {
	tr := lookPath(t, "tr")
	c := Command{Argv: []string{tr, "a-z", "A-Z"}, Patterns: MustCompile("*.txt")}

	got, err := c.RewriteBlob(context.Background(), newBlob("a.txt", "hello\n"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	if len(got) != 1 || content(t, got[0]) != "HELLO\n" || !got[0].Modified() {
		t.Fatalf("converted = %v", names(got))
	}

	got, err = c.RewriteBlob(context.Background(), newBlob("a.md", "hello\n"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	if content(t, got[0]) != "hello\n" {
		t.Errorf("unselected file converted: %q", content(t, got[0]))
	}
}

func TestCommandFailureIncludesStderr(t *testing.T) {
	sh := lookPath(t, "sh")
	c := Command{Argv: []string{sh, "-c", "echo broken >&2; exit 3"}}
	_, err := c.RewriteBlob(context.Background(), newBlob("a.txt", "x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("error %v does not wrap *exec.ExitError", err)
	}
	if got := err.Error(); !containsAll(got, "broken", "exit status 3") {
		t.Errorf("error = %q", got)
	}
}

func TestCommandTimeout(t *testing.T) {
	sh := lookPath(t, "sh")
	c := Command{Argv: []string{sh, "-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}
	_, err := c.RewriteBlob(context.Background(), newBlob("a.txt", "x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestCommandSeesFileName(t *testing.T) {
	sh := lookPath(t, "sh")
	c := Command{Argv: []string{sh, "-c", `printf "%s" "$REFORGE_NAME"`}}
	got, err := c.RewriteBlob(context.Background(), newBlob("x.txt", "in"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	if content(t, got[0]) != "x.txt" {
		t.Errorf("REFORGE_NAME = %q", content(t, got[0]))
	}
}
