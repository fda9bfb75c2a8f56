package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/mia/internal/integrity"
	"gopkg.in/yaml.v3"
)

// Entry is a report handed to an Archiver.
type Entry struct {
	Title     string
	Content   string
	MissionID int64
}

// Archiver stores a report and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, e Entry) (string, error)
}

// FileArchiver writes each report as a markdown file with YAML front matter
// under Root/reports.
type FileArchiver struct {
	Root string
	now  func() time.Time
}

func NewFileArchiver(root string) *FileArchiver {
	absRoot, _ := filepath.Abs(root)
	return &FileArchiver{Root: absRoot, now: time.Now}
}

type frontMatter struct {
	ID         string    `yaml:"id"`
	Title      string    `yaml:"title"`
	MissionID  int64     `yaml:"mission_id"`
	ArchivedAt time.Time `yaml:"archived_at"`
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		return "report"
	}
	return s
}

func (a *FileArchiver) Archive(ctx context.Context, e Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := a.now()
	id := uuid.NewString()
	name := fmt.Sprintf("%s-%s-%s.md", now.Format("20060102"), slugify(e.Title), id[:8])
	target := filepath.Join(a.Root, "reports", name)

	// Safety check: target must stay within Root
	rel, err := filepath.Rel(a.Root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("unsafe path attempt: %s", name)
	}

	meta, err := yaml.Marshal(frontMatter{ID: id, Title: e.Title, MissionID: e.MissionID, ArchivedAt: now.UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n")
	buf.WriteString(e.Content)
	buf.WriteString("\n")

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return target, nil
}

type ArchiveTool struct {
	archiver Archiver
	gate     *integrity.Gate
}

func NewArchiveTool(archiver Archiver, gate *integrity.Gate) *ArchiveTool {
	if gate == nil {
		gate = integrity.DefaultGate()
	}
	return &ArchiveTool{archiver: archiver, gate: gate}
}

func (a *ArchiveTool) Name() ToolName {
	return Archive
}

func (a *ArchiveTool) Description() string {
	return "Archive the final report in the knowledge base."
}

func (a *ArchiveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Title of the archived report",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Report body; the orchestrator fills this in",
			},
		},
	}
}

// Execute archives the gated content. Unusable content is replaced by the
// run's fallback before anything leaves the process.
func (a *ArchiveTool) Execute(ctx context.Context, args Args, run RunContext) (string, error) {
	title := args.String("title")
	if title == "" {
		title = "Report " + time.Now().Format("2006-01-02")
	}
	content := a.gate.Check(args.String("content"), run.Fallback)
	if _, err := a.archiver.Archive(ctx, Entry{Title: title, Content: content, MissionID: run.MissionID}); err != nil {
		return "", fmt.Errorf("archive failed: %w", err)
	}
	return "OK", nil
}
