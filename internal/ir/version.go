package ir

// Version constants for the journal schema and engine.
const (
	// JournalVersion is the version of the journaled event format.
	JournalVersion = "1"

	// EngineVersion is the logic block engine version.
	EngineVersion = "0.1.0"
)
