package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rgbPattern matches the three leading integer channels of an rgb()/rgba()
// CSS color value. A trailing alpha channel is intentionally not captured.
var rgbPattern = regexp.MustCompile(`^rgba?\s*\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)

// NormalizeColor canonicalizes a CSS color value to a lowercase hex triplet.
//
//	"rgb(227, 6, 19)"  -> "#e30613"
//	"rgba(227,6,19,1)" -> "#e30613"
//	"#E30613"          -> "#e30613"
//
// Values in neither form are returned trimmed and lowercased so callers can
// still compare them verbatim.
func NormalizeColor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	if strings.HasPrefix(s, "#") {
		return s
	}

	if m := rgbPattern.FindStringSubmatch(s); m != nil {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}

	return s
}
