package confab

import (
	"strings"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
)

// BlockKind names the type of a rich response block.
type BlockKind string

const (
	BlockText         BlockKind = "text"
	BlockReasoning    BlockKind = "reasoning"
	BlockImage        BlockKind = "image"
	BlockAudio        BlockKind = "audio"
	BlockFile         BlockKind = "file"
	BlockFunctionCall BlockKind = "function_call"
)

// Block is one typed piece of a rich response. Exactly one payload field is set,
// matching Kind.
type Block struct {
	Kind         BlockKind
	Text         string
	Reasoning    *messages.ReasoningPart
	Image        *messages.ImagePart
	Audio        *messages.AudioData
	File         *messages.FileLinkPart
	FunctionCall *messages.FunctionCall
}

// RichResponse is a response decomposed into ordered blocks.
type RichResponse struct {
	Result *chat.Result
	Blocks []Block
	// ToolMessages are the tool answers appended while resolving function calls.
	ToolMessages []messages.Message
}

// Text concatenates the text blocks.
func (r *RichResponse) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, blk := range r.Blocks {
		if blk.Kind == BlockText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// FunctionCalls returns the function call blocks in order.
func (r *RichResponse) FunctionCalls() []*messages.FunctionCall {
	if r == nil {
		return nil
	}
	var out []*messages.FunctionCall
	for _, blk := range r.Blocks {
		if blk.Kind == BlockFunctionCall {
			out = append(out, blk.FunctionCall)
		}
	}
	return out
}

// blocksOf decomposes an assistant message. Function call blocks reuse calls so
// results recorded during resolution are visible on the blocks.
func blocksOf(m messages.Message, calls []*messages.FunctionCall) []Block {
	var out []Block
	if len(m.Parts) == 0 && m.Content != "" {
		out = append(out, Block{Kind: BlockText, Text: m.Content})
	}
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.TextPart:
			out = append(out, Block{Kind: BlockText, Text: part.Text})
		case messages.ReasoningPart:
			out = append(out, Block{Kind: BlockReasoning, Reasoning: &part})
		case messages.ImagePart:
			out = append(out, Block{Kind: BlockImage, Image: &part})
		case messages.AudioPart:
			out = append(out, Block{Kind: BlockAudio, Audio: &messages.AudioData{Data: part.Data, Format: part.Format}})
		case messages.FileLinkPart:
			out = append(out, Block{Kind: BlockFile, File: &part})
		}
	}
	if m.Audio != nil {
		audio := *m.Audio
		out = append(out, Block{Kind: BlockAudio, Audio: &audio})
	}
	for _, fc := range calls {
		out = append(out, Block{Kind: BlockFunctionCall, FunctionCall: fc})
	}
	return out
}

// SafeResult carries either a value or the error that prevented it. Safe entry
// points return it instead of an error and never panic.
type SafeResult[T any] struct {
	Value T
	Err   error
}

func (r SafeResult[T]) IsSuccess() bool {
	return r.Err == nil
}

func (r SafeResult[T]) IsError() bool {
	return r.Err != nil
}

// Unwrap returns the value and error as a pair.
func (r SafeResult[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Outcome summarizes a streamed round trip.
type Outcome struct {
	FinishReason chat.FinishReason
	Usage        *chat.Usage
	// Messages lists every message the stream appended to history, in order.
	Messages []messages.Message
	// FunctionCalls is the resolved tool-call batch, if the model requested one.
	FunctionCalls []*messages.FunctionCall
}

// Text concatenates the text of the assistant messages appended by the stream.
func (o Outcome) Text() string {
	var b strings.Builder
	for _, m := range o.Messages {
		if m.Role == messages.RoleAssistant {
			b.WriteString(m.Text())
		}
	}
	return b.String()
}
