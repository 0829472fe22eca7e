package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceFromUserAgent condenses a raw User-Agent header into a short
// "Browser version / OS" summary for abuse analysis. Raw UA strings are too
// high-cardinality to store or alert on directly.
func DeviceFromUserAgent(ua string) string {
	if ua == "" {
		return ""
	}

	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if name == "" {
		return "unknown"
	}

	var b strings.Builder
	b.WriteString(name)
	if version != "" {
		// Major version only; full versions churn too fast to be useful keys.
		if idx := strings.IndexByte(version, '.'); idx > 0 {
			version = version[:idx]
		}
		b.WriteString(" ")
		b.WriteString(version)
	}
	if os := parsed.OS(); os != "" {
		b.WriteString(" / ")
		b.WriteString(os)
	}
	if parsed.Bot() {
		b.WriteString(" (bot)")
	}
	return b.String()
}
