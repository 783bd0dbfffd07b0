package promptreg

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {{ name }} placeholders. Single braces are literal text.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Variables returns the placeholder names in Body, in order of first appearance.
func (t *Template) Variables() []string {
	matches := placeholderPattern.FindAllStringSubmatch(t.Body, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Format substitutes every {{ name }} placeholder in Body with vars[name].
// Values are rendered with fmt.Sprint. Returns *VariableError wrapping ErrMissingVariable
// for the first placeholder without a value; extra vars are ignored.
func (t *Template) Format(vars map[string]any) (string, error) {
	for _, name := range t.Variables() {
		if _, ok := vars[name]; !ok {
			return "", &VariableError{Variable: name, Template: t.Name, Err: ErrMissingVariable}
		}
	}
	var sb strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(t.Body, -1) {
		sb.WriteString(t.Body[last:loc[0]])
		sb.WriteString(fmt.Sprint(vars[t.Body[loc[2]:loc[3]]]))
		last = loc[1]
	}
	sb.WriteString(t.Body[last:])
	return sb.String(), nil
}

// FormatStruct renders Body with variables read from the prompt-tagged fields of payload.
func (t *Template) FormatStruct(payload any) (string, error) {
	vars, err := payloadVars(payload)
	if err != nil {
		return "", err
	}
	return t.Format(vars)
}
