package promptreg

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLen = 256

var (
	aliasPattern          = regexp.MustCompile(`^[\w\-]+$`)
	reservedVersionPrefix = regexp.MustCompile(`^[vV]\d+$`)
)

// ValidateName checks that name can address a prompt in the registry and in a
// prompts:/ URI. Returns an error wrapping ErrInvalidName.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\@:") {
		return fmt.Errorf("%w: %q contains one of / \\ @ :", ErrInvalidName, name)
	}
	return nil
}

// ValidateAlias checks alias naming rules: word characters and dashes only, not
// "latest" and not shaped like a version reference ("v3").
func ValidateAlias(alias string) error {
	if alias == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAlias)
	}
	if len(alias) > maxNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidAlias, maxNameLen)
	}
	if !aliasPattern.MatchString(alias) {
		return fmt.Errorf("%w: %q may only contain letters, digits, '_' and '-'", ErrInvalidAlias, alias)
	}
	if strings.EqualFold(alias, "latest") || reservedVersionPrefix.MatchString(alias) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidAlias, alias)
	}
	return nil
}
