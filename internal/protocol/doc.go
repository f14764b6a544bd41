// Package protocol implements the binary framing for PCM audio streams over
// UDP. It handles header parsing, start payload extraction with stream
// parameters, and sequenced audio payloads.
package protocol
