// Package sanitize neutralizes untrusted HTML in backend answers.
//
// Stripping and rendering are deliberately separate passes. Strip runs on
// the raw answer before it is stored, removing anything executable. Render
// runs at display time: it escapes the whole string first and only then
// reconstitutes a small whitelist of tags from their escaped forms, so
// nothing that survives escaping can smuggle markup past the whitelist.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	iframeRe = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)
	linkRe   = regexp.MustCompile(`(?i)<link\b[^>]*>`)
	metaRe   = regexp.MustCompile(`(?i)<meta\b[^>]*>`)

	onAttrDQ = regexp.MustCompile(`(?i)on\w+="[^"]*"`)
	onAttrSQ = regexp.MustCompile(`(?i)on\w+='[^']*'`)

	jsScheme   = regexp.MustCompile(`(?i)javascript:`)
	dataScheme = regexp.MustCompile(`(?i)data:`)
)

// Strip removes executable content from raw backend text: whole
// script/style/iframe elements including their bodies, link and meta tags,
// quoted on* event-handler attributes, and javascript:/data: URI schemes
// wherever they appear.
func Strip(s string) string {
	if s == "" {
		return ""
	}
	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")
	s = iframeRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "")
	s = metaRe.ReplaceAllString(s, "")
	s = onAttrDQ.ReplaceAllString(s, "")
	s = onAttrSQ.ReplaceAllString(s, "")
	s = jsScheme.ReplaceAllString(s, "")
	s = dataScheme.ReplaceAllString(s, "")
	return s
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// escTagRe matches a tag in its escaped form, e.g. &lt;b&gt; or
// &lt;/p&gt;, with any attribute junk up to the first escaped close.
var escTagRe = regexp.MustCompile(`(?i)&lt;(/?)\s*([a-z][a-z0-9]*)(.*?)&gt;`)

// Render turns stored text into the constrained display markup. Everything
// is HTML-escaped, newlines become <br/>, paragraph boundaries become
// double breaks, bold/italic variants are normalized to strong/em, list and
// code tags are restored in canonical form, and any other tag is deleted
// while its text content is kept.
func Render(s string) string {
	if s == "" {
		return ""
	}

	out := escaper.Replace(s)
	out = strings.ReplaceAll(out, "\n", "<br/>")

	out = escTagRe.ReplaceAllStringFunc(out, func(tag string) string {
		m := escTagRe.FindStringSubmatch(tag)
		closing := m[1] == "/"
		switch strings.ToLower(m[2]) {
		case "p":
			if closing {
				return ""
			}
			return "<br/><br/>"
		case "br":
			return "<br/>"
		case "b", "strong":
			if closing {
				return "</strong>"
			}
			return "<strong>"
		case "i", "em":
			if closing {
				return "</em>"
			}
			return "<em>"
		case "ul", "ol", "li", "code", "pre":
			if closing {
				return "</" + strings.ToLower(m[2]) + ">"
			}
			return "<" + strings.ToLower(m[2]) + ">"
		default:
			return ""
		}
	})

	return strings.TrimSpace(out)
}
