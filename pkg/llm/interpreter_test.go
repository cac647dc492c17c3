// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/quorum/pkg/types"
)

// finish runs the interpreter over the given text and collects every
// emitted event.
func finish(t *testing.T, parse ToolCallParseFunc, req types.ChatRequest, text string) []types.StreamEvent {
	t.Helper()
	it := NewInterpreter(parse, nil)
	out := make(chan types.StreamEvent, 16)
	it.Chunk(out, text)
	it.Finish(out, req)
	close(out)

	var events []types.StreamEvent
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

// terminal drops the leading chunk/thought events and returns the last
// event of the stream.
func terminal(t *testing.T, events []types.StreamEvent) types.StreamEvent {
	t.Helper()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func parseSendMessage(text string) ([]types.ToolCall, []string) {
	if strings.Contains(text, "<send_message>") {
		return []types.ToolCall{{ID: "tc-1", Name: "send_message"}}, nil
	}
	if strings.Contains(text, "<broken_call>") {
		return nil, []string{"tool broken_call: missing required parameter <message>"}
	}
	return nil, nil
}

func TestFinish_FinalResponse(t *testing.T) {
	events := finish(t, parseSendMessage, types.ChatRequest{}, "The report is attached below.")
	require.Len(t, events, 2)
	assert.Equal(t, types.EventResponseChunk, events[0].Type)

	ev := terminal(t, events)
	assert.Equal(t, types.EventFinalResponse, ev.Type)
	assert.Equal(t, "The report is attached below.", ev.Content)
	assert.Equal(t, "The report is attached below.", ev.RawAssistantText)
}

func TestFinish_ThoughtThenFinal(t *testing.T) {
	text := "<think>user wants a summary</think>Here is the summary."
	events := finish(t, parseSendMessage, types.ChatRequest{}, text)
	require.Len(t, events, 3)

	assert.Equal(t, types.EventAgentThought, events[1].Type)
	assert.Equal(t, "user wants a summary", events[1].Content)
	assert.Equal(t, types.EventFinalResponse, events[2].Type)
	assert.Equal(t, "Here is the summary.", events[2].Content)
}

func TestFinish_ToolRequestsWinOverText(t *testing.T) {
	text := "Sending now. <send_message><recipient>pm-1</recipient></send_message>"
	ev := terminal(t, finish(t, parseSendMessage, types.ChatRequest{}, text))
	assert.Equal(t, types.EventToolRequests, ev.Type)
	require.Len(t, ev.ToolCalls, 1)
	assert.Equal(t, "send_message", ev.ToolCalls[0].Name)
	assert.Equal(t, text, ev.RawAssistantText)
}

func TestFinish_MalformedToolCall(t *testing.T) {
	ev := terminal(t, finish(t, parseSendMessage, types.ChatRequest{}, "<broken_call>oops"))
	assert.Equal(t, types.EventMalformedToolCall, ev.Type)
	assert.Contains(t, ev.Content, "missing required parameter")
}

func TestFinish_StateChangeRequested(t *testing.T) {
	for _, form := range []string{
		`<request_state state='pm_activate_workers'/>`,
		`<request_state state="pm_activate_workers">`,
		`<request_state state = "pm_activate_workers" />`,
	} {
		ev := terminal(t, finish(t, parseSendMessage, types.ChatRequest{}, "Moving on. "+form))
		assert.Equal(t, types.EventStateChangeRequested, ev.Type, form)
		assert.Equal(t, "pm_activate_workers", ev.RequestedState, form)
	}
}

func TestFinish_PMStartupMissingTaskList(t *testing.T) {
	req := types.ChatRequest{AgentKind: types.KindPM, AgentState: "startup"}
	text := "<think>I should plan the project carefully first</think>I have considered the plan."
	ev := terminal(t, finish(t, parseSendMessage, req, text))
	assert.Equal(t, types.EventPMStartupMissingTaskList, ev.Type)
}

func TestFinish_PMStartupWithTaskListIsFinal(t *testing.T) {
	req := types.ChatRequest{AgentKind: types.KindPM, AgentState: "startup"}
	text := "<think>plan</think><task_list>1. scaffold repo\n2. write tests</task_list>"
	ev := terminal(t, finish(t, parseSendMessage, req, text))
	assert.Equal(t, types.EventFinalResponse, ev.Type)
}

func TestFinish_PMCompletionDetection(t *testing.T) {
	req := types.ChatRequest{AgentKind: types.KindPM, AgentState: "manage"}

	ev := terminal(t, finish(t, parseSendMessage, req, "All tasks are complete and verified."))
	assert.Equal(t, types.EventPMCompletionDetection, ev.Type)

	ev = terminal(t, finish(t, parseSendMessage, req, "The project is complete."))
	assert.Equal(t, types.EventPMCompletionDetection, ev.Type)

	// Same phrase outside the manage state stays a normal response.
	req.AgentState = "work"
	ev = terminal(t, finish(t, parseSendMessage, req, "All tasks are complete and verified."))
	assert.Equal(t, types.EventFinalResponse, ev.Type)
}

func TestFinish_ThinkingOnlyEmitsNoTerminalEvent(t *testing.T) {
	events := finish(t, parseSendMessage, types.ChatRequest{}, "<think>still working it out</think>")
	require.Len(t, events, 2)
	assert.Equal(t, types.EventResponseChunk, events[0].Type)
	assert.Equal(t, types.EventAgentThought, events[1].Type)
}

func TestStripThinking(t *testing.T) {
	assert.Equal(t, "answer", StripThinking("<think>reasoning</think>answer"))
	assert.Equal(t, "answer", StripThinking("<thinking>reasoning</thinking>answer"))
	// An unterminated tag swallows the rest of the text.
	assert.Equal(t, "before ", StripThinking("before <think>never closed"))
	assert.Equal(t, "plain", StripThinking("plain"))
}

func TestExtractThinking_MultipleBlocks(t *testing.T) {
	text := "<think>first</think>middle<thinking>second</thinking>"
	assert.Equal(t, "first\nsecond", extractThinking(text))
}

func TestContainsStateRequest(t *testing.T) {
	state, ok := ContainsStateRequest(`done <request_state state='worker_wait'/>`)
	require.True(t, ok)
	assert.Equal(t, "worker_wait", state)

	_, ok = ContainsStateRequest("no directive here")
	assert.False(t, ok)
}

func TestChunk_EmptyDeltaIgnored(t *testing.T) {
	it := NewInterpreter(nil, nil)
	out := make(chan types.StreamEvent, 4)
	it.Chunk(out, "")
	it.Chunk(out, "hello")
	close(out)

	var n int
	for range out {
		n++
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, "hello", it.Text())
}
