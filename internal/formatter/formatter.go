// package formatter renders todo lists for the terminal and exports them as plain text, Markdown or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// Extension returns the file extension written for the format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatCSV:
		return "csv"
	default:
		return "txt"
	}
}

// ParseFormat accepts a format name or one of its short aliases (txt, md).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
}

// ExportToCSV converts a list's items to CSV with columns: ID, Description, Completed, Author
func ExportToCSV(list models.List) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Description", "Completed", "Author"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range list.Items {
		record := []string{
			strconv.Itoa(item.ID),
			item.Description,
			strconv.FormatBool(item.Completed),
			AuthorName(list, item.AuthorID),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a list to a Markdown document with a task-list checkbox per item
func ExportToMarkdown(list models.List) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", list.Name))

	if list.Description != "" {
		buf.WriteString(list.Description + "\n\n")
	}

	buf.WriteString(fmt.Sprintf("**Author**: %s\n", list.Author.Username))
	buf.WriteString(fmt.Sprintf("**Progress**: %s\n", list.CompletionSummary()))
	if len(list.Members) > 0 {
		buf.WriteString(fmt.Sprintf("**Members**: %s\n", MemberSummary(list.Members)))
	}

	buf.WriteString("\n## Todos\n\n")
	for _, item := range list.Items {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		buf.WriteString(fmt.Sprintf("- [%s] %s\n", mark, item.Description))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a list to plain text
func ExportToText(list models.List) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("List: %s\n", list.Name))
	if list.Description != "" {
		buf.WriteString(fmt.Sprintf("Description: %s\n", list.Description))
	}
	buf.WriteString(fmt.Sprintf("Author: %s\n", list.Author.Username))
	buf.WriteString(fmt.Sprintf("Todos: %s\n\n", list.CompletionSummary()))

	for i, item := range list.Items {
		buf.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, Checkbox(item.Completed), item.Description))
	}

	return buf.Bytes(), nil
}

// Export renders list in the given format.
func Export(list models.List, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(list)
	case FormatMarkdown:
		return ExportToMarkdown(list)
	case FormatText:
		return ExportToText(list)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
}

// WriteExport writes list to path in the given format and returns the path written.
//
// Defaults to {list.ID}_{slug}.{ext} in the working directory.
func WriteExport(list models.List, format Format, path string) (string, error) {
	if path == "" {
		path = DefaultFilename(list, format)
	}

	data, err := Export(list, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// DefaultFilename builds an export filename from the list id and name.
func DefaultFilename(list models.List, format Format) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(list.Name), "-"), "-")
	if slug == "" {
		return fmt.Sprintf("%d.%s", list.ID, format.Extension())
	}
	return fmt.Sprintf("%d_%s.%s", list.ID, slug, format.Extension())
}

// Checkbox renders an item's completion as [x] or [ ].
func Checkbox(completed bool) string {
	if completed {
		return "[x]"
	}
	return "[ ]"
}

// AuthorName resolves an item author id to a username through the list's members.
func AuthorName(list models.List, authorID int) string {
	if authorID == list.Author.ID && list.Author.Username != "" {
		return list.Author.Username
	}
	if i := models.FindMember(list.Members, authorID); i >= 0 {
		return list.Members[i].User.Username
	}
	return "#" + strconv.Itoa(authorID)
}

// MemberSummary renders members as "ada (owner), bob (editor)".
func MemberSummary(members []models.Member) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.User.Username, m.Role.Name))
	}
	return strings.Join(parts, ", ")
}

// Glamour standard style names accepted by [RenderMarkdown].
const (
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

var (
	renderersMu sync.Mutex
	renderers   = map[string]*glamour.TermRenderer{}
)

// RenderMarkdown renders md with a cached glamour renderer for style and wrap width.
//
// Rendering failures fall back to the trimmed source text.
func RenderMarkdown(md, style string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}
	if style == "" {
		style = StyleDark
	}

	key := style + ":" + strconv.Itoa(width)

	renderersMu.Lock()
	r, ok := renderers[key]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(glamour.WithStandardStyle(style), glamour.WithWordWrap(width))
		if err != nil {
			renderersMu.Unlock()
			return md
		}
		renderers[key] = r
	}
	renderersMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
