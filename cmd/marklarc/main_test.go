package main

import "testing"

// TestHandlerRequiresInputFile exercises Handler directly, the same way
// cmd/jack_compiler/main_test.go drives its own CLI Handler without going
// through os.Exit.
func TestHandlerRequiresInputFile(t *testing.T) {
	status := Handler(nil, map[string]string{})
	if status != 2 {
		t.Fatalf("expected exit status 2 when --input-file is missing, got %d", status)
	}
}

func TestHandlerRejectsMissingFile(t *testing.T) {
	status := Handler(nil, map[string]string{"input-file": "/nonexistent/path/to/source.mk"})
	if status != 2 {
		t.Fatalf("expected exit status 2 for a missing input file, got %d", status)
	}
}
