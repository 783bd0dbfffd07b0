package promptreg

import (
	"maps"

	"go.uber.org/zap"
)

// DefaultTags returns the tag set attached to every registration unless overridden.
// A fresh map is returned on each call.
func DefaultTags() map[string]string {
	return map[string]string{
		"task":     "question-and-answering",
		"language": "en",
		"BU":       "Digital-marketing",
	}
}

// ClientOption configures Client (functional options pattern).
type ClientOption func(*Client)

// WithLogger sets the logger. Default is zap.NewNop(). A nil logger is ignored.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDefaultTags replaces the tag set applied to registrations that do not pass WithTags.
// An empty map disables default tags.
func WithDefaultTags(tags map[string]string) ClientOption {
	return func(c *Client) {
		c.defaultTags = maps.Clone(tags)
	}
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	commitMessage string
	tags          map[string]string
	tagsSet       bool
}

// WithCommitMessage annotates the new version. Omitting it registers without annotation.
func WithCommitMessage(msg string) RegisterOption {
	return func(o *registerOptions) {
		o.commitMessage = msg
	}
}

// WithTags overrides the client's default tags for this call.
func WithTags(tags map[string]string) RegisterOption {
	return func(o *registerOptions) {
		o.tags = maps.Clone(tags)
		o.tagsSet = true
	}
}
