// Package specdoc reads and writes the markdown documents that describe
// specs on disk. One spec maps to one file under the specs directory.
package specdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sddkit/specsync/internal/checkbox"
)

// Doc is a spec document loaded from disk.
type Doc struct {
	Path    string
	Content string
}

// Path returns the on-disk path for a spec's document.
func Path(specsDir, specID string) string {
	return filepath.Join(specsDir, specID+".md")
}

// Load reads the document for a spec. The returned error wraps os.ErrNotExist
// when the file is missing.
func Load(specsDir, specID string) (*Doc, error) {
	p := Path(specsDir, specID)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read spec document: %w", err)
	}
	return &Doc{Path: p, Content: string(data)}, nil
}

// Save writes the document, creating the specs directory if needed.
func Save(specsDir, specID, content string) (*Doc, error) {
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create specs directory: %w", err)
	}
	p := Path(specsDir, specID)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write spec document: %w", err)
	}
	return &Doc{Path: p, Content: content}, nil
}

// Hash returns the hex-encoded SHA-256 of the document content. Used to
// detect content changes across sync cycles.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Title returns the text of the first level-1 heading, or "" when the
// document has none.
func (d *Doc) Title() string {
	for _, line := range strings.Split(d.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Description returns the prose between the first level-1 heading and the
// next heading of any level.
func (d *Doc) Description() string {
	lines := strings.Split(d.Content, "\n")
	var out []string
	inBody := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") && !inBody {
			inBody = true
			continue
		}
		if !inBody {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			break
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Hash returns the document's content hash.
func (d *Doc) Hash() string {
	return Hash(d.Content)
}

// Tasks returns the document's task list. When a section whose heading
// contains "Tasks" exists, only its items are returned; otherwise every
// checkbox item in the document counts.
func (d *Doc) Tasks() []checkbox.Item {
	items := checkbox.Parse(d.Content)
	var inTasks []checkbox.Item
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Section), "tasks") {
			inTasks = append(inTasks, item)
		}
	}
	if len(inTasks) > 0 {
		return inTasks
	}
	return items
}

// New renders a fresh spec document skeleton.
func New(name, description string) string {
	var b strings.Builder
	b.WriteString("# " + name + "\n\n")
	if description != "" {
		b.WriteString(description + "\n\n")
	}
	b.WriteString("## Requirements\n\n")
	b.WriteString("## Design\n\n")
	b.WriteString("## Tasks\n\n")
	return b.String()
}
