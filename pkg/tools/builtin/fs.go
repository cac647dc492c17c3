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
package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teradata-labs/quorum/pkg/tools"
)

// FileSystemTool reads and writes files inside the agent's sandbox. Paths
// are resolved against the invocation's sandbox root and may never escape
// it.
type FileSystemTool struct{}

// NewFileSystemTool creates the file_system tool.
func NewFileSystemTool() *FileSystemTool {
	return &FileSystemTool{}
}

// Schema implements tools.Tool.
func (t *FileSystemTool) Schema() *tools.Schema {
	return &tools.Schema{
		Name:        "file_system",
		Summary:     "Read and write files in your sandbox",
		Description: "File operations rooted at your sandbox directory. Actions: write_file (filepath, content), read_file (filepath), list_dir (filepath optional).",
		Auth:        tools.AuthWorker,
		Params: []tools.Param{
			{Name: "action", Type: "string", Required: true, Description: "write_file, read_file, or list_dir"},
			{Name: "filepath", Type: "string", Required: false, Description: "Path relative to the sandbox root"},
			{Name: "content", Type: "string", Required: false, Description: "File content (write_file)"},
		},
	}
}

// Execute implements tools.Tool.
func (t *FileSystemTool) Execute(ctx context.Context, inv *tools.Invocation) (*tools.Result, error) {
	if inv.SandboxPath == "" {
		return tools.Errorf("agent has no sandbox configured"), nil
	}

	rel := inv.StringArg("filepath")
	abs, err := resolveSandboxPath(inv.SandboxPath, rel)
	if err != nil {
		return tools.Errorf("invalid filepath %q: %v", rel, err), nil
	}

	switch inv.StringArg("action") {
	case "write_file":
		if rel == "" {
			return tools.Errorf("write_file requires filepath"), nil
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return tools.Errorf("failed to create directory: %v", err), nil
		}
		content := inv.StringArg("content")
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return tools.Errorf("failed to write file: %v", err), nil
		}
		return &tools.Result{
			Status:  tools.StatusSuccess,
			Message: fmt.Sprintf("Wrote %d bytes to %s", len(content), rel),
			Data:    map[string]any{"filepath": rel, "bytes": len(content)},
		}, nil

	case "read_file":
		if rel == "" {
			return tools.Errorf("read_file requires filepath"), nil
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return tools.Errorf("failed to read file: %v", err), nil
		}
		return &tools.Result{
			Status:  tools.StatusSuccess,
			Message: string(data),
			Data:    map[string]any{"filepath": rel, "bytes": len(data)},
		}, nil

	case "list_dir":
		entries, err := os.ReadDir(abs)
		if err != nil {
			return tools.Errorf("failed to list directory: %v", err), nil
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return &tools.Result{
			Status:  tools.StatusSuccess,
			Message: strings.Join(names, "\n"),
			Data:    map[string]any{"entries": names},
		}, nil

	default:
		return tools.Errorf("unknown file_system action: %s", inv.StringArg("action")), nil
	}
}

// resolveSandboxPath joins rel onto root and rejects escapes.
func resolveSandboxPath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not permitted")
	}
	abs := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if abs != cleanRoot && !strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox")
	}
	return abs, nil
}
