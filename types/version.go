package types

// Version is the canonical project version.
const Version = "0.1.0"

// ProtocolRevision is the device protocol revision reported by the version
// command.
const ProtocolRevision = "cdc2-1"
