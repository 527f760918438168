package labels_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"htrprep/internal/labels"
	"htrprep/internal/manifest"
	"htrprep/internal/testsupport"
)

func TestProjectWritesLinesAndSortedDictionary(t *testing.T) {
	dir := t.TempDir()
	records := []manifest.Record{
		{Filename: "b.jpg", Label: "żaba"},
		{Filename: "a.jpg", Label: "Ala\tma"},
	}
	out, err := labels.Project(records, labels.Options{
		LabelPath:  filepath.Join(dir, "train_labels.txt"),
		DictPath:   filepath.Join(dir, "dict.txt"),
		PathPrefix: "PL/",
	})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if out.Lines != 2 || out.Flattened != 1 {
		t.Fatalf("output = %+v", out)
	}

	lines := testsupport.Lines(testsupport.ReadFile(t, out.LabelPath))
	want := []string{"PL/b.jpg\tżaba", "PL/a.jpg\tAla ma"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("label lines = %q, want %q", lines, want)
	}

	dict := testsupport.Lines(testsupport.ReadFile(t, out.DictPath))
	wantDict := []string{" ", "A", "a", "b", "l", "m", "ż"}
	if !reflect.DeepEqual(dict, wantDict) {
		t.Fatalf("dict = %q, want %q", dict, wantDict)
	}
	if out.Characters != len(wantDict) {
		t.Fatalf("characters = %d", out.Characters)
	}

	read, err := labels.ReadDictionary(out.DictPath)
	if err != nil {
		t.Fatalf("ReadDictionary: %v", err)
	}
	if len(read) != len(wantDict) || read[len(read)-1] != 'ż' {
		t.Fatalf("read dict = %q", string(read))
	}
}

func TestProjectEmptyStillWritesFiles(t *testing.T) {
	dir := t.TempDir()
	out, err := labels.Project(nil, labels.Options{
		LabelPath: filepath.Join(dir, "labels.txt"),
		DictPath:  filepath.Join(dir, "dict.txt"),
	})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	for _, path := range []string{out.LabelPath, out.DictPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
		if info.Size() != 0 {
			t.Fatalf("expected %s to be empty, size %d", path, info.Size())
		}
	}
}

func TestBuildDictionaryOrdersByCodePoint(t *testing.T) {
	dict := labels.BuildDictionary([]manifest.Record{{Label: "ćca"}, {Label: "ąa"}})
	if string(dict) != "acąć" {
		t.Fatalf("dict = %q", string(dict))
	}
}
