package filter

import (
	"context"
	"regexp"
	"strings"
)

// MessageFooter appends Text as the last paragraph of every commit message
// that does not already end with it.
type MessageFooter struct {
	Text string
}

func (MessageFooter) Name() string { return "message-footer" }

func (f MessageFooter) RewriteCommitMessage(_ context.Context, msg string) (string, error) {
	footer := strings.TrimRight(f.Text, "\n")
	if footer == "" || strings.HasSuffix(strings.TrimRight(msg, "\n"), footer) {
		return msg, nil
	}
	msg = strings.TrimRight(msg, "\n")
	if msg == "" {
		return footer + "\n", nil
	}
	return msg + "\n\n" + footer + "\n", nil
}

// MessageReplace substitutes From with To in commit and tag messages.
type MessageReplace struct {
	From *regexp.Regexp
	To   string
}

func (MessageReplace) Name() string { return "message-replace" }

func (r MessageReplace) RewriteCommitMessage(_ context.Context, msg string) (string, error) {
	return r.From.ReplaceAllString(msg, r.To), nil
}

func (r MessageReplace) RewriteTagMessage(_ context.Context, msg string) (string, error) {
	return r.From.ReplaceAllString(msg, r.To), nil
}
