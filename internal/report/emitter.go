package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
)

// Emitter receives run events. Emit must not block for long; the pool
// calls it from its control loop.
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(e Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Multi fans each event out to every emitter in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(e Event) {
		for _, em := range emitters {
			em.Emit(e)
		}
	})
}

// JSONLines writes each event as one line of JSON. It is the output
// contract for callers consuming a run's stdout.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLines creates an NDJSON emitter writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// Emit writes the event followed by a newline. Write failures are logged;
// a closed stdout must not stop the run.
func (j *JSONLines) Emit(e Event) {
	data, err := Marshal(e)
	if err != nil {
		log.Printf("[Report] Failed to marshal %s event: %v", e.EventKind(), err)
		return
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(data); err != nil {
		log.Printf("[Report] Failed to write %s event: %v", e.EventKind(), err)
	}
}

// Marshal encodes an event as compact JSON.
func Marshal(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil event")
	}
	return json.Marshal(e)
}

// Unmarshal decodes an event previously produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to read event kind: %w", err)
	}

	var (
		e   Event
		err error
	)
	switch head.Kind {
	case KindProgress:
		var v Progress
		err = json.Unmarshal(data, &v)
		e = v
	case KindFinish:
		var v Finish
		err = json.Unmarshal(data, &v)
		e = v
	case KindError:
		var v Error
		err = json.Unmarshal(data, &v)
		e = v
	case KindRewrite:
		var v Rewrite
		err = json.Unmarshal(data, &v)
		e = v
	case KindChange:
		var v Change
		err = json.Unmarshal(data, &v)
		e = v
	default:
		return nil, head.Kind.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", head.Kind, err)
	}
	return e, nil
}
