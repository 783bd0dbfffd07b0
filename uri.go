package promptreg

import (
	"fmt"
	"strconv"
	"strings"
)

// URIScheme prefixes prompt references: prompts:/<name>/<version> or prompts:/<name>@<alias>.
const URIScheme = "prompts:/"

// URI formats a prompt reference for name and sel.
func URI(name string, sel Selector) string {
	switch s := sel.(type) {
	case VersionSelector:
		return URIScheme + name + "/" + strconv.Itoa(int(s))
	case AliasSelector:
		return URIScheme + name + "@" + string(s)
	default:
		return URIScheme + name
	}
}

// ParseURI splits a prompts:/ reference into a name and a selector.
// Returns ErrInvalidURI if the scheme, name or selector is malformed.
func ParseURI(uri string) (string, Selector, error) {
	rest, ok := strings.CutPrefix(uri, URIScheme)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q must start with %q", ErrInvalidURI, uri, URIScheme)
	}
	if name, alias, found := strings.Cut(rest, "@"); found {
		if err := ValidateName(name); err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
		}
		if alias == "" {
			return "", nil, fmt.Errorf("%w: %q has an empty alias", ErrInvalidURI, uri)
		}
		return name, ByAlias(alias), nil
	}
	name, ver, found := strings.Cut(rest, "/")
	if !found {
		return "", nil, fmt.Errorf("%w: %q needs /<version> or @<alias>", ErrInvalidURI, uri)
	}
	if err := ValidateName(name); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	n, err := strconv.Atoi(ver)
	if err != nil || n < 1 {
		return "", nil, fmt.Errorf("%w: %q has invalid version %q", ErrInvalidURI, uri, ver)
	}
	return name, ByVersion(n), nil
}
