package samples

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBack(t *testing.T) {
	got := Load(filepath.Join(t.TempDir(), "nope.txt"))
	if len(got) != len(Defaults) {
		t.Fatalf("expected defaults, got %d questions", len(got))
	}
}

func TestLoadEmptyPathFallsBack(t *testing.T) {
	if got := Load(""); len(got) != len(Defaults) {
		t.Fatalf("expected defaults, got %d questions", len(got))
	}
}

func TestLoadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	content := "What is 2+2?\n\n  \nName a prime above 100.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Load(path)
	if len(got) != 2 {
		t.Fatalf("expected 2 questions, got %d: %v", len(got), got)
	}
	if got[0] != "What is 2+2?" || got[1] != "Name a prime above 100." {
		t.Errorf("unexpected questions: %v", got)
	}
}

func TestLoadAllBlankFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.txt")
	if err := os.WriteFile(path, []byte("\n \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Load(path); len(got) != len(Defaults) {
		t.Fatalf("expected defaults for blank file, got %v", got)
	}
}
