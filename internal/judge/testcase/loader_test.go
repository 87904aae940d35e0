package testcase_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"codejudge/internal/judge/testcase"
	appErr "codejudge/pkg/errors"
)

func TestLoadOrdersByNumber(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"input10.txt":  {Data: []byte("10")},
		"output10.txt": {Data: []byte("100")},
		"input2.txt":   {Data: []byte("2")},
		"output2.txt":  {Data: []byte("4")},
		"input1.txt":   {Data: []byte("1")},
		"output1.txt":  {Data: []byte("1")},
		"inputx.txt":   {Data: []byte("x")},
		"outputx.txt":  {Data: []byte("xx")},
		"input3.txt":   {Data: []byte("3")},
		"notes.md":     {Data: []byte("ignored")},
	}
	cases, err := testcase.Load(context.Background(), fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wantIDs := []string{"test1", "test2", "test10", "testx"}
	if len(cases) != len(wantIDs) {
		t.Fatalf("expected %d cases, got %d", len(wantIDs), len(cases))
	}
	for i, id := range wantIDs {
		if cases[i].ID != id {
			t.Fatalf("case %d: expected %s, got %s", i, id, cases[i].ID)
		}
	}
	if string(cases[2].Stdin) != "10" || string(cases[2].ExpectedOutput) != "100" {
		t.Fatalf("unexpected contents %+v", cases[2])
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()
	cases, err := testcase.Load(context.Background(), fstest.MapFS{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cases) != 0 {
		t.Fatalf("expected no cases, got %d", len(cases))
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "input1.txt"), []byte("Alice\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "output1.txt"), []byte("Hello, Alice!\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cases, err := testcase.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(cases) != 1 || string(cases[0].ExpectedOutput) != "Hello, Alice!\n" {
		t.Fatalf("unexpected cases %+v", cases)
	}

	_, err = testcase.LoadDir(context.Background(), filepath.Join(dir, "missing"))
	if !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
