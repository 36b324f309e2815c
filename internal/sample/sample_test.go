package sample

import (
	"errors"
	"strings"
	"testing"
)

func TestLoad_DefaultSample(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := lib.Get("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name != DefaultName {
		t.Fatalf("expected default sample, got %q", s.Name)
	}
	if !strings.HasPrefix(s.Transcript, "Salesperson: Hi, this is Alex") {
		t.Fatalf("unexpected transcript start: %q", s.Transcript[:40])
	}
	if !strings.HasSuffix(s.Transcript, "Prospect: Okay, thank you. Bye.") {
		t.Fatal("transcript should be trimmed and complete")
	}
}

func TestGet_UnknownSample(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := lib.Get("discovery"); !errors.Is(err, ErrUnknownSample) {
		t.Fatalf("expected ErrUnknownSample, got %v", err)
	}
}

func TestParse_RejectsDuplicatesAndBlanks(t *testing.T) {
	dup := []byte("samples:\n  - name: a\n    transcript: x\n  - name: a\n    transcript: y\n")
	if _, err := Parse(dup); err == nil {
		t.Fatal("expected error for duplicate sample")
	}
	blank := []byte("samples:\n  - name: a\n    transcript: \"  \"\n")
	if _, err := Parse(blank); err == nil {
		t.Fatal("expected error for blank transcript")
	}
}
