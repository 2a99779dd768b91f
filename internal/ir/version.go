package ir

// Version constants for the on-disk formats.
const (
	// FormatVersion is the schema and standalone-instance JSON format version.
	FormatVersion = "1"

	// EngineVersion is the graph engine version.
	EngineVersion = "0.1.0"
)
