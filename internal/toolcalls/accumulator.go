// Package toolcalls assembles streamed tool-call fragments into complete calls.
package toolcalls

import (
	"strings"

	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/uuidx"
)

type key struct {
	index int
	id    string
}

type entry struct {
	index int
	id    string
	tpe   string
	name  strings.Builder
	args  strings.Builder
}

// Accumulator concatenates argument fragments per (index, id) and exposes the
// calls only after the stream marked the batch complete.
type Accumulator struct {
	entries  []*entry
	byKey    map[key]*entry
	latest   map[int]*entry
	complete bool
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{
		byKey:  make(map[key]*entry),
		latest: make(map[int]*entry),
	}
}

// Add merges one fragment. Fragments without an id continue the most recent call at
// the same index. Adding to a completed batch starts a new batch.
func (a *Accumulator) Add(frag messages.ToolCall) {
	if a.complete {
		a.Reset()
	}
	e := a.find(frag)
	if e == nil {
		e = &entry{index: frag.Index, id: frag.ID}
		a.entries = append(a.entries, e)
		a.latest[frag.Index] = e
		if frag.ID != "" {
			a.byKey[key{frag.Index, frag.ID}] = e
		}
	}
	if e.tpe == "" {
		e.tpe = frag.Type
	}
	if frag.Function.Name != "" && e.name.Len() == 0 {
		e.name.WriteString(frag.Function.Name)
	}
	e.args.WriteString(frag.Function.Arguments)
}

func (a *Accumulator) find(frag messages.ToolCall) *entry {
	if frag.ID == "" {
		return a.latest[frag.Index]
	}
	if e, ok := a.byKey[key{frag.Index, frag.ID}]; ok {
		return e
	}
	// the id can arrive after the first fragment of a call
	if e, ok := a.latest[frag.Index]; ok && e.id == "" {
		e.id = frag.ID
		a.byKey[key{frag.Index, frag.ID}] = e
		return e
	}
	return nil
}

// Complete marks the batch as complete. Calls without an id get a generated one.
func (a *Accumulator) Complete() {
	if len(a.entries) == 0 {
		return
	}
	for _, e := range a.entries {
		if e.id == "" {
			e.id = "call_" + uuidx.NewString()
		}
	}
	a.complete = true
}

// Completed reports whether a non-empty batch was marked complete.
func (a *Accumulator) Completed() bool {
	return a.complete
}

// Len returns the number of distinct calls seen in the current batch.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Calls returns the completed calls in the order they first appeared, or nil while
// the batch is still open.
func (a *Accumulator) Calls() []messages.ToolCall {
	if !a.complete {
		return nil
	}
	return a.snapshot()
}

// Pending returns the partial calls of an open batch, or nil once it completed.
// Argument text may be incomplete.
func (a *Accumulator) Pending() []messages.ToolCall {
	if a.complete {
		return nil
	}
	return a.snapshot()
}

func (a *Accumulator) snapshot() []messages.ToolCall {
	out := make([]messages.ToolCall, len(a.entries))
	for i, e := range a.entries {
		tpe := e.tpe
		if tpe == "" {
			tpe = "function"
		}
		out[i] = messages.ToolCall{
			Index: e.index,
			ID:    e.id,
			Type:  tpe,
			Function: messages.FunctionData{
				Name:      e.name.String(),
				Arguments: e.args.String(),
			},
		}
	}
	return out
}

// FunctionCalls projects the completed calls into resolvable function calls.
func (a *Accumulator) FunctionCalls() []*messages.FunctionCall {
	calls := a.Calls()
	if calls == nil {
		return nil
	}
	out := make([]*messages.FunctionCall, len(calls))
	for i, c := range calls {
		out[i] = messages.NewFunctionCall(c)
	}
	return out
}

// Reset discards all fragments.
func (a *Accumulator) Reset() {
	a.entries = nil
	a.byKey = make(map[key]*entry)
	a.latest = make(map[int]*entry)
	a.complete = false
}
