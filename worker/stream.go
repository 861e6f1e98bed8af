package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
)

// DefaultResultVariable is the name of the variable, a stream's text is stored in, when the element's
// extensions define no "resultVariable".
const DefaultResultVariable = "result"

type ChunkKind int

const (
	ChunkText ChunkKind = iota + 1
	ChunkThinking
	ChunkToolCall
)

func (v ChunkKind) String() string {
	switch v {
	case ChunkText:
		return "TEXT"
	case ChunkThinking:
		return "THINKING"
	case ChunkToolCall:
		return "TOOL_CALL"
	default:
		return "UNKNOWN"
	}
}

// Chunk is a piece of a streamed response.
type Chunk struct {
	Kind ChunkKind

	// Text of a thinking chunk or the delta of a text chunk.
	Text string
	// Optional message ID of a text chunk. A text chunk with a different ID starts a new message.
	MessageId string

	// Tool call of a TOOL_CALL chunk.
	ToolCall ToolCall
}

type ToolCall struct {
	Id    string
	Name  string
	Input string
}

// Source produces the chunks of a streaming agent, like the response of a language model.
type Source interface {
	// Next returns the next chunk or [io.EOF], when the stream has ended.
	Next(context.Context) (Chunk, error)
}

// ToolResultReceiver can be implemented by a [Source], that needs the outputs of invoked tools.
type ToolResultReceiver interface {
	ToolResult(ToolCall, string)
}

// SourceFunc opens the source of a task run.
type SourceFunc func(context.Context, engine.Execution) (Source, error)

// Tool is invoked, when a source requests a tool call.
type Tool func(context.Context, ToolCall) (string, error)

// Stream creates an executor, which drives a source and records its chunks as progress events:
// thinking, tool.start and tool.end as well as message.start, message.delta and message.end.
//
// The CHUNK checkpoint is polled before each chunk and the TOOL_CALL checkpoint before each tool invocation.
// When a cancellation is honored, the text streamed so far is returned as partial result.
// When the stream ends, the text is stored in the variable, named by the "resultVariable" extension.
func Stream(open SourceFunc, tools map[string]Tool) engine.TaskExecutor {
	return engine.TaskExecutorFunc(func(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
		s := stream{
			ctx:       ctx,
			execution: execution,
			tools:     tools,
		}
		return s.run(open)
	})
}

type stream struct {
	ctx       context.Context
	execution engine.Execution
	tools     map[string]Tool

	text strings.Builder // text of all messages

	messageId      string
	messageContent strings.Builder
	messages       int
}

func (s *stream) run(open SourceFunc) engine.TaskOutcome {
	source, err := open(s.ctx, s.execution)
	if err != nil {
		return engine.Failed(ErrorCodeSourceFailure, fmt.Sprintf("failed to open source: %v", err))
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	for {
		if err := s.execution.Checkpoint(engine.CheckpointChunk); err != nil {
			return s.fail(err)
		}

		chunk, err := source.Next(s.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(err)
		}

		switch chunk.Kind {
		case ChunkThinking:
			err = s.emit(eventlog.EventThinking, eventlog.Payload{Text: chunk.Text})
		case ChunkText:
			err = s.appendText(chunk)
		case ChunkToolCall:
			var output string
			output, err = s.callTool(chunk.ToolCall)
			if err == nil {
				if receiver, ok := source.(ToolResultReceiver); ok {
					receiver.ToolResult(chunk.ToolCall, output)
				}
			}
		default:
			err = fmt.Errorf("unsupported chunk kind %s", chunk.Kind)
		}

		if err != nil {
			return s.fail(err)
		}
	}

	if err := s.endMessage(); err != nil {
		return s.fail(err)
	}

	resultVariable := s.execution.Properties().Extensions["resultVariable"]
	if resultVariable == "" {
		resultVariable = DefaultResultVariable
	}

	return engine.Completed(map[string]any{resultVariable: s.text.String()})
}

func (s *stream) appendText(chunk Chunk) error {
	if s.messageId != "" && chunk.MessageId != "" && chunk.MessageId != s.messageId {
		if err := s.endMessage(); err != nil {
			return err
		}
	}

	if s.messageId == "" {
		s.messages++

		s.messageId = chunk.MessageId
		if s.messageId == "" {
			s.messageId = fmt.Sprintf("%s-%d", s.execution.TaskRunId(), s.messages)
		}

		if err := s.emit(eventlog.EventMessageStart, eventlog.Payload{MessageId: s.messageId}); err != nil {
			return err
		}
	}

	s.messageContent.WriteString(chunk.Text)
	s.text.WriteString(chunk.Text)

	return s.emit(eventlog.EventMessageDelta, eventlog.Payload{
		MessageId:  s.messageId,
		Delta:      chunk.Text,
		Cumulative: s.messageContent.String(),
	})
}

func (s *stream) endMessage() error {
	if s.messageId == "" {
		return nil
	}

	err := s.emit(eventlog.EventMessageEnd, eventlog.Payload{
		MessageId:  s.messageId,
		Cumulative: s.messageContent.String(),
	})

	s.messageId = ""
	s.messageContent.Reset()
	return err
}

func (s *stream) callTool(call ToolCall) (string, error) {
	if err := s.execution.Checkpoint(engine.CheckpointToolCall); err != nil {
		return "", err
	}

	tool, ok := s.tools[call.Name]
	if !ok {
		return "", s.toolFailed(call, fmt.Errorf("tool %s is not registered", call.Name))
	}

	if err := s.emit(eventlog.EventToolStart, eventlog.Payload{
		ToolCallId: call.Id,
		ToolName:   call.Name,
		Input:      call.Input,
	}); err != nil {
		return "", err
	}

	output, err := tool(s.ctx, call)
	if err != nil {
		return "", s.toolFailed(call, err)
	}

	return output, s.emit(eventlog.EventToolEnd, eventlog.Payload{
		ToolCallId: call.Id,
		ToolName:   call.Name,
		Output:     output,
	})
}

func (s *stream) toolFailed(call ToolCall, err error) error {
	if emitErr := s.emit(eventlog.EventToolEnd, eventlog.Payload{
		ToolCallId: call.Id,
		ToolName:   call.Name,
		ErrorCode:  ErrorCodeToolFailure,
		Output:     err.Error(),
	}); emitErr != nil {
		return emitErr
	}
	return TaskError{Code: ErrorCodeToolFailure, Message: fmt.Sprintf("tool call %s failed: %v", call.Id, err)}
}

func (s *stream) emit(kind eventlog.EventKind, payload eventlog.Payload) error {
	if err := s.execution.Emit(kind, payload); err != nil {
		return fmt.Errorf("failed to emit %s event: %w", kind, err)
	}
	return nil
}

// fail maps an error to an outcome. A cancel request results in a cancelled outcome with the text, streamed so far.
func (s *stream) fail(err error) engine.TaskOutcome {
	if outcome, ok := cancelled(err, s.text.String()); ok {
		return outcome
	}

	var taskErr TaskError
	if errors.As(err, &taskErr) {
		return engine.Failed(taskErr.Code, taskErr.Message)
	}

	if s.ctx.Err() != nil {
		return engine.Failed(ErrorCodeContextDone, s.ctx.Err().Error())
	}

	var engineErr engine.Error
	if errors.As(err, &engineErr) {
		return engine.Failed(ErrorCodeEmitFailure, err.Error())
	}
	return engine.Failed(ErrorCodeSourceFailure, err.Error())
}
