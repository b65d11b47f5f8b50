package alerts

import (
	"regexp"
	"strings"
)

// CompilePattern compiles a user-supplied pattern with "contains" semantics:
// unless the pattern is anchored with ^ or $, it is padded with .* on the
// unanchored side. The result must match the whole input, case-insensitively,
// with multi-line and dot-all enabled.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(expr, "^") {
		expr = ".*" + expr
	}
	if !strings.HasSuffix(expr, "$") {
		expr += ".*"
	}
	return regexp.Compile(`(?ims)\A(?:` + expr + `)\z`)
}
