package domain

// PathMapping rewrites a location prefix to a local path prefix before
// correlation. Mappings are ordered; the first matching prefix wins.
type PathMapping struct {
	URLPrefix       string `mapstructure:"url_prefix"`        // Prefix matched against the raw location
	LocalPathPrefix string `mapstructure:"local_path_prefix"` // Replacement prefix on the local filesystem
}

// LineState aggregates the most recent event for one (file, line) pair and
// the number of events that have landed on it. Occurrences is monotonic
// non-decreasing until an explicit clear; it is never decremented when the
// underlying event is trimmed from the log store.
type LineState struct {
	Event       LogEvent // The most recently recorded event for the line
	Occurrences int      // Count of events recorded for the line, starting at 1
}
