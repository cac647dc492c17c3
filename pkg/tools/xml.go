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
package tools

import (
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

// ParsedCall is one tool invocation extracted from assistant text.
type ParsedCall struct {
	Name string
	Args map[string]any

	// Span is the [start, end) byte range of the block in the input.
	Span [2]int
}

// ParseError describes a block that looked like a tool call but failed to
// parse, with a corrective example for that tool.
type ParseError struct {
	Name    string
	Message string
	Example string
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s call: %s (example: %s)", e.Name, e.Message, e.Example)
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")

// legacyExecuteRe matches the known malformation where the agent wraps a
// sub-action in <parameters>action=Y</parameters> instead of putting it in
// <action>.
var legacyExecuteRe = regexp.MustCompile(
	`(?s)<tool_information>\s*<action>execute</action>\s*<tool_name>([^<]+)</tool_name>\s*<parameters>\s*action=([^<\s]+)\s*</parameters>\s*</tool_information>`)

// RecoverMalformedXML rewrites known malformations in assistant text so
// the full parser can succeed. Returns the rewritten text and the number
// of rewrites applied.
func RecoverMalformedXML(text string, knownTools []string) (string, int) {
	recovered := 0

	// Markdown fences wrapping XML: unwrap when the fenced body starts
	// with a (possibly truncated) tool tag.
	text = fenceRe.ReplaceAllStringFunc(text, func(block string) string {
		inner := strings.TrimSpace(fenceRe.FindStringSubmatch(block)[1])
		for _, name := range knownTools {
			if strings.HasPrefix(inner, "<"+name) || strings.HasPrefix(inner, name+">") {
				recovered++
				return inner
			}
		}
		return block
	})

	// Missing opening bracket: "tool_name>…" at a block boundary. The "/"
	// exclusion keeps closing tags intact.
	for _, name := range knownTools {
		headless := regexp.MustCompile(`(^|[^<\w/])` + regexp.QuoteMeta(name) + `>`)
		text = headless.ReplaceAllStringFunc(text, func(m string) string {
			recovered++
			idx := strings.Index(m, name)
			return m[:idx] + "<" + m[idx:]
		})
	}

	// execute/parameters form → direct action form.
	text = legacyExecuteRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := legacyExecuteRe.FindStringSubmatch(m)
		recovered++
		return fmt.Sprintf("<tool_information><action>%s</action><tool_name>%s</tool_name></tool_information>",
			strings.TrimSpace(sub[2]), strings.TrimSpace(sub[1]))
	})

	return text, recovered
}

// ParseToolCalls extracts every tool invocation for the known tool names
// from assistant text. Overlapping spans are de-duplicated (first match
// wins). Blocks that fail XML parsing are returned as ParseErrors carrying
// a corrective example.
func ParseToolCalls(text string, registry *Registry) ([]ParsedCall, []*ParseError) {
	var calls []ParsedCall
	var errs []*ParseError

	for _, name := range registry.Names() {
		blockRe := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(name) + `(?:\s[^>]*)?>.*?</` + regexp.QuoteMeta(name) + `>`)
		for _, loc := range blockRe.FindAllStringIndex(text, -1) {
			block := text[loc[0]:loc[1]]
			args, err := parseBlock(name, block)
			if err != nil {
				example := "<" + name + ">...</" + name + ">"
				if tool, ok := registry.Get(name); ok {
					example = tool.Schema().Example()
				}
				errs = append(errs, &ParseError{Name: name, Message: err.Error(), Example: example})
				continue
			}
			calls = append(calls, ParsedCall{Name: name, Args: args, Span: [2]int{loc[0], loc[1]}})
		}
	}

	calls = dedupeOverlapping(calls)
	return calls, errs
}

// parseBlock sanitizes one candidate block and parses it as XML. Each
// child element of the root becomes one parameter; character data is
// HTML-unescaped.
func parseBlock(name, block string) (map[string]any, error) {
	block = sanitizeBlock(name, block)

	type node struct {
		XMLName  xml.Name
		Children []struct {
			XMLName xml.Name
			Content string `xml:",innerxml"`
		} `xml:",any"`
	}

	var root node
	if err := xml.Unmarshal([]byte(block), &root); err != nil {
		return nil, fmt.Errorf("not valid XML: %v", err)
	}

	args := make(map[string]any, len(root.Children))
	for _, child := range root.Children {
		args[child.XMLName.Local] = html.UnescapeString(strings.TrimSpace(stripTags(child.Content)))
	}
	return args, nil
}

// sanitizeBlock strips markdown fences inside the block and normalizes the
// opening and closing tags to the candidate tool name.
func sanitizeBlock(name, block string) string {
	block = strings.ReplaceAll(block, "```xml", "")
	block = strings.ReplaceAll(block, "```", "")
	block = strings.TrimSpace(block)

	// Normalize an attribute-carrying or whitespace-damaged opening tag.
	openRe := regexp.MustCompile(`^<` + regexp.QuoteMeta(name) + `[^>]*>`)
	block = openRe.ReplaceAllString(block, "<"+name+">")
	closeRe := regexp.MustCompile(`</\s*` + regexp.QuoteMeta(name) + `\s*>$`)
	block = closeRe.ReplaceAllString(block, "</"+name+">")
	return block
}

// stripTags removes nested element tags from innerxml so nested content
// degrades to its text.
var tagRe = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

// dedupeOverlapping keeps the first call for any overlapping span.
func dedupeOverlapping(calls []ParsedCall) []ParsedCall {
	if len(calls) < 2 {
		return calls
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Span[0] < calls[j].Span[0] })
	out := calls[:1]
	for _, c := range calls[1:] {
		last := out[len(out)-1]
		if c.Span[0] < last.Span[1] {
			continue
		}
		out = append(out, c)
	}
	return out
}
