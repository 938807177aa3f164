package classify

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Indicator CSS classes used by the dashboard product. Each status tile on a
// map page carries one of these, with the sensor count as its text label.
const (
	classError   = "sensr"
	classWarning = "sensy"
	classOK      = "sensg"
)

// Classifier derives a Verdict from one map-page markup fragment.
//
// Precedence is strict: any error indicator makes the whole entity Error, no
// matter how many ok or warning tiles are present. Warning only applies when
// there are warnings but no errors. A fragment with neither class indicators
// nor color swatches is Normal with zero counts.
type Classifier struct {
	errorColor  string
	normalColor string
}

// New returns a Classifier. errorColor and normalColor are only consulted for
// dashboards that expose raw color swatches instead of class indicators; both
// are normalized once here so swatch comparison is a plain string equality.
func New(errorColor, normalColor string) *Classifier {
	return &Classifier{
		errorColor:  NormalizeColor(errorColor),
		normalColor: NormalizeColor(normalColor),
	}
}

// Classify parses fragment and returns the entity's verdict observed at now.
// A parse failure is returned as an error; callers degrade it to an Unknown
// verdict rather than guessing a health state from broken markup.
func (c *Classifier) Classify(fragment []byte, now time.Time) (Verdict, error) {
	doc, err := html.Parse(bytes.NewReader(fragment))
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: parse fragment: %w", err)
	}

	var f found
	collect(doc, &f)

	v := Verdict{ObservedAt: now}

	switch {
	case len(f.errors) > 0:
		v.Severity = SeverityError
		v.ErrorCount = tally(f.errors)
		v.WarningCount = tally(f.warnings)
		v.OKCount = tally(f.oks)
		v.Summary = summaryErrors(v.ErrorCount)

	case len(f.warnings) > 0:
		v.Severity = SeverityWarning
		v.WarningCount = tally(f.warnings)
		v.OKCount = tally(f.oks)
		v.Summary = summaryWarnings(v.OKCount, v.WarningCount)

	case len(f.oks) == 0 && len(f.swatches) > 0:
		// No class indicators at all — fall back to raw color swatches.
		return c.classifyColors(f.swatches, now), nil

	default:
		v.Severity = SeverityNormal
		v.OKCount = tally(f.oks)
		v.Summary = summaryOK(v.OKCount)
	}

	return v, nil
}

// classifyColors maps color swatch values to a verdict. Each swatch counts as
// one occurrence; swatches matching neither configured color are ignored.
func (c *Classifier) classifyColors(swatches []string, now time.Time) Verdict {
	v := Verdict{ObservedAt: now}
	for _, s := range swatches {
		switch NormalizeColor(s) {
		case c.errorColor:
			v.ErrorCount++
		case c.normalColor:
			v.OKCount++
		}
	}
	if v.ErrorCount > 0 {
		v.Severity = SeverityError
		v.Summary = summaryErrors(v.ErrorCount)
		return v
	}
	v.Severity = SeverityNormal
	v.Summary = summaryOK(v.OKCount)
	return v
}

// found accumulates the text labels of matching indicator elements and the
// background colors of swatch elements during the tree walk.
type found struct {
	errors   []string
	warnings []string
	oks      []string
	swatches []string
}

// collect walks the parsed tree and records indicator labels and swatches.
func collect(n *html.Node, f *found) {
	if n.Type == html.ElementNode {
		for _, cls := range classList(n) {
			switch cls {
			case classError:
				f.errors = append(f.errors, textOf(n))
			case classWarning:
				f.warnings = append(f.warnings, textOf(n))
			case classOK:
				f.oks = append(f.oks, textOf(n))
			}
		}
		if color := backgroundColor(n); color != "" {
			f.swatches = append(f.swatches, color)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, f)
	}
}

// tally sums the counts carried by a set of indicator elements. An element
// with a positive integer label contributes that value; any other label
// (empty, non-numeric, zero) counts as a single occurrence.
func tally(labels []string) int {
	total := 0
	for _, l := range labels {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			total += n
		} else {
			total++
		}
	}
	return total
}

// classList returns the element's class attribute split into fields.
func classList(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

// textOf returns the trimmed concatenation of all text nodes under n.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// backgroundColor extracts the background-color value from an inline style
// attribute, or "" if the element has none.
func backgroundColor(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		for _, decl := range strings.Split(a.Val, ";") {
			name, value, ok := strings.Cut(decl, ":")
			if !ok {
				continue
			}
			if strings.TrimSpace(strings.ToLower(name)) == "background-color" {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}
