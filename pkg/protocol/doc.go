// Package protocol defines the messages exchanged between the burrow
// orchestrator and its workers, and the file commands workers produce.
//
// # Overview
//
// The orchestrator and every worker communicate exclusively by exchanging
// encoded messages over a reliable, ordered channel (a pipe, an in-process
// stream, or the attached stdio of a container). Each message is a single
// line of JSON carrying a "kind" discriminant:
//
//	orchestrator -> worker:  dispatch, exit
//	worker -> orchestrator:  commands, idle, error
//
// A worker answers every dispatch with exactly one reply: commands when the
// transform changed something, idle when it did not, and error when the file
// could not be processed.
//
// # Strict decoding
//
// Decode is the validation boundary. A payload is accepted only when it has
// exactly one known kind, every required field is present, no unknown field
// is present and the variant's own Validate passes. Everything else fails
// with a *DecodeError. The orchestrator treats a decode failure as fatal for
// the worker that sent it and replaces that worker; other workers are not
// affected.
//
// # Usage Example
//
//	import "github.com/dyluth/burrow/pkg/protocol"
//
//	line, err := protocol.Encode(protocol.Dispatch{
//		Path:              "src/main.go",
//		Data:              source,
//		Engine:            "lua",
//		TransformerSource: script,
//		CaseID:            "rename-logger",
//	})
//
//	msg, err := protocol.Decode(line)
//	if protocol.IsDecodeError(err) {
//		// replace the sender
//	}
//	switch m := msg.(type) {
//	case protocol.Commands:
//		for _, c := range m.Commands { ... }
//	case protocol.Idle:
//	case protocol.Error:
//	}
package protocol
