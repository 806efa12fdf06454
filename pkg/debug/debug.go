// Package debug provides category-based debug logging for toolgate.
//
// Categories select which subsystems emit debug output (TOOLGATE_DEBUG,
// comma separated, "all" for everything). The level (TOOLGATE_LOG_LEVEL)
// and handler format (TOOLGATE_LOG_FORMAT, "text" or "json") configure the
// default slog logger.
//
//	debug.Log("upstream", "request", "method", "POST", "url", url)
//	if debug.Enabled("discovery") { /* expensive formatting */ }
package debug

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"unicode/utf8"
)

// LevelTrace is below slog.LevelDebug. At TRACE, upstream bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// Known lists the categories the gateway logs under.
var Known = []string{"auth", "registry", "discovery", "providers", "upstream", "gateway", "config"}

// sensitive headers are redacted by Headers.
var sensitive = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"X-Api-Key":           true,
	"Apikey":              true,
	"Cookie":              true,
}

// categories is read-only after Init.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("TOOLGATE_DEBUG"))
}

// Options configures Init. Environment variables take precedence.
type Options struct {
	Categories string
	Level      string
	Format     string

	// Output defaults to stderr.
	Output io.Writer
}

// Init installs the default slog logger and the enabled categories. It
// returns the requested categories that are not in Known.
func Init(opts Options) []string {
	cats := envOr("TOOLGATE_DEBUG", opts.Categories)
	categories = parseCategories(cats)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(envOr("TOOLGATE_LOG_LEVEL", opts.Level))}

	var h slog.Handler
	if strings.EqualFold(envOr("TOOLGATE_LOG_FORMAT", opts.Format), "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	slog.SetDefault(slog.New(h))

	var unknown []string
	for c := range categories {
		if c != "all" && !slices.Contains(Known, c) {
			unknown = append(unknown, c)
		}
	}
	slices.Sort(unknown)
	return unknown
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for category. Disabled categories cost one
// map lookup.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a TRACE message for category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// Headers renders h for logging with credential values redacted.
func Headers(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitive[http.CanonicalHeaderKey(k)] {
			v = redact(v)
		}
		out[k] = v
	}
	return out
}

// redact keeps a scheme word and the first four characters of the secret.
func redact(v string) string {
	scheme, secret, ok := strings.Cut(v, " ")
	if !ok {
		scheme, secret = "", v
	} else {
		scheme += " "
	}
	if utf8.RuneCountInString(secret) <= 8 {
		return scheme + "[redacted]"
	}
	return scheme + string([]rune(secret)[:4]) + "...[redacted]"
}

// ParseLevel converts a level name to a slog.Level; unknown names are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to maxLen runes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
