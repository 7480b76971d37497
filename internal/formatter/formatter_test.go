package formatter

import (
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	th "github.com/desertthunder/tdx/internal/testing"
)

func sampleList() models.List {
	ada := models.User{ID: 1, Username: "ada"}
	bob := models.User{ID: 2, Username: "bob"}
	return models.List{
		ID:          12,
		Name:        "Weekend Errands",
		Description: "Things to pick up",
		Author:      ada,
		Role:        models.RoleOwner,
		Members: []models.Member{
			{User: bob, Role: models.Role{ID: 2, Name: models.RoleEditor}},
			{User: ada, Role: models.Role{ID: models.OwnerRoleID, Name: models.RoleOwner}},
		},
		Items: []models.Item{
			{ID: 1, ListID: 12, AuthorID: 1, Description: "Buy milk", Completed: true},
			{ID: 2, ListID: 12, AuthorID: 2, Description: "Return library books, overdue"},
			{ID: 3, ListID: 12, AuthorID: 9, Description: "Call plumber"},
		},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleList())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("CSV output does not parse: %v", err)
		}

		if len(records) != 4 {
			t.Fatalf("expected header and 3 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Description,Completed,Author" {
			t.Errorf("CSV missing headers, got: %v", records[0])
		}
		if records[1][0] != "1" || records[1][2] != "true" || records[1][3] != "ada" {
			t.Errorf("unexpected first row: %v", records[1])
		}
		if records[2][1] != "Return library books, overdue" {
			t.Errorf("expected quoted description to survive, got %q", records[2][1])
		}
		if records[2][3] != "bob" {
			t.Errorf("expected member author name, got %q", records[2][3])
		}
		if records[3][3] != "#9" {
			t.Errorf("expected unknown author fallback, got %q", records[3][3])
		}
	})

	t.Run("ExportToCSV empty", func(t *testing.T) {
		data, err := ExportToCSV(models.List{Name: "empty"})
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if strings.TrimSpace(string(data)) != "ID,Description,Completed,Author" {
			t.Errorf("expected headers only, got %q", data)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(sampleList())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)

		for _, want := range []string{
			"# Weekend Errands",
			"Things to pick up",
			"**Author**: ada",
			"**Progress**: 1/3 completed",
			"**Members**: bob (editor), ada (owner)",
			"## Todos",
			"- [x] Buy milk",
			"- [ ] Call plumber",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown without members", func(t *testing.T) {
		list := sampleList()
		list.Members = nil
		list.Items = nil

		data, err := ExportToMarkdown(list)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		if strings.Contains(string(data), "**Members**") {
			t.Error("expected no members line")
		}
		if !strings.Contains(string(data), "**Progress**: no todos") {
			t.Errorf("expected empty summary, got:\n%s", data)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleList())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "List: Weekend Errands") {
			t.Errorf("Text missing list name")
		}
		if !strings.Contains(output, "Description: Things to pick up") {
			t.Errorf("Text missing description")
		}
		if !strings.Contains(output, "Todos: 1/3 completed") {
			t.Errorf("Text missing completion summary")
		}
		if !strings.Contains(output, "1. [x] Buy milk") || !strings.Contains(output, "3. [ ] Call plumber") {
			t.Errorf("Text missing numbered items, got:\n%s", output)
		}
	})

	t.Run("export unknown format", func(t *testing.T) {
		_, err := Export(sampleList(), Format("pdf"))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tc := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"txt", FormatText},
		{"Text", FormatText},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{" csv ", FormatCSV},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParseFormat("xlsx"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("WithDefaultPath", func(t *testing.T) {
		th.Chdir(t, t.TempDir())

		path, err := WriteExport(sampleList(), FormatMarkdown, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}

		if path != "12_weekend-errands.md" {
			t.Errorf("unexpected default path %q", path)
		}
		th.AssertFileExists(t, path)

		content := th.MustReadFile(t, path)
		if !strings.Contains(content, "- [x] Buy milk") {
			t.Errorf("export file missing item, got:\n%s", content)
		}
	})

	t.Run("WithCustomPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "errands.csv")

		got, err := WriteExport(sampleList(), FormatCSV, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %q, got %q", path, got)
		}

		content := th.MustReadFile(t, path)
		if !strings.HasPrefix(content, "ID,Description,Completed,Author") {
			t.Errorf("expected CSV content, got:\n%s", content)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "out.txt")
		if _, err := WriteExport(sampleList(), FormatText, path); err == nil {
			t.Error("expected error writing into a missing directory")
		}
	})
}

func TestDefaultFilename(t *testing.T) {
	tc := []struct {
		name   string
		list   models.List
		format Format
		want   string
	}{
		{"slugged", models.List{ID: 3, Name: "Q3 Planning!"}, FormatText, "3_q3-planning.txt"},
		{"csv", models.List{ID: 4, Name: "Groceries"}, FormatCSV, "4_groceries.csv"},
		{"no slug", models.List{ID: 5, Name: "???"}, FormatMarkdown, "5.md"},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultFilename(tt.list, tt.format); got != tt.want {
				t.Errorf("DefaultFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := RenderMarkdown("   ", StyleNoTTY, 40); got != "" {
			t.Errorf("expected empty output, got %q", got)
		}
	})

	t.Run("renders text", func(t *testing.T) {
		got := RenderMarkdown("weekly *shopping* run", StyleNoTTY, 40)
		if !strings.Contains(got, "shopping") || !strings.Contains(got, "weekly") {
			t.Errorf("rendered output lost text: %q", got)
		}
		if strings.HasSuffix(got, "\n") {
			t.Error("expected trailing newlines trimmed")
		}
	})

	t.Run("caches renderer", func(t *testing.T) {
		RenderMarkdown("one", StyleNoTTY, 33)
		RenderMarkdown("two", StyleNoTTY, 33)

		renderersMu.Lock()
		_, ok := renderers[StyleNoTTY+":33"]
		renderersMu.Unlock()
		if !ok {
			t.Error("expected renderer cached by style and width")
		}
	})

	t.Run("unknown style falls back", func(t *testing.T) {
		if got := RenderMarkdown("plain", "no-such-style", 40); got != "plain" {
			t.Errorf("expected source text fallback, got %q", got)
		}
	})
}

func TestHelpers(t *testing.T) {
	list := sampleList()

	if got := AuthorName(list, 1); got != "ada" {
		t.Errorf("expected list author, got %q", got)
	}
	if got := Checkbox(false); got != "[ ]" {
		t.Errorf("unexpected checkbox %q", got)
	}
	if got := MemberSummary(nil); got != "" {
		t.Errorf("expected empty summary, got %q", got)
	}
}
