package core

import (
	"testing"
)

func TestContentHash(t *testing.T) {
	if ContentHash("abc") != ContentHash("abc") {
		t.Errorf("ContentHash() not deterministic")
	}
	if ContentHash("abc") == ContentHash("abd") {
		t.Errorf("ContentHash() produced same hash for different content")
	}
	if got := len(ContentHash("abc")); got != 64 {
		t.Errorf("ContentHash() length = %d, want 64", got)
	}
}

func TestKnowledgeSource_Extension(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "lower case", path: "/docs/rules.pdf", want: ".pdf"},
		{name: "upper case", path: "/docs/NOTES.MD", want: ".md"},
		{name: "no extension", path: "/docs/README", want: ""},
		{name: "double extension", path: "/docs/table.tar.csv", want: ".csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewKnowledgeSource(tt.path, "")
			if got := src.Extension(); got != tt.want {
				t.Errorf("Extension() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewKnowledgeSource(t *testing.T) {
	src := NewKnowledgeSource("/docs/monsters.pdf", "bestiary")
	if src.Filename != "monsters.pdf" {
		t.Errorf("Filename = %q, want monsters.pdf", src.Filename)
	}
	if src.Status != StatusPending {
		t.Errorf("Status = %s, want pending", src.Status)
	}
	if src.Description != "bestiary" {
		t.Errorf("Description = %q, want bestiary", src.Description)
	}
	if err := ValidateKnowledgeSource(src); err != nil {
		t.Errorf("new source should be valid: %v", err)
	}
}

func TestKnowledgeSource_Clone(t *testing.T) {
	src := NewKnowledgeSource("/docs/a.txt", "")
	src.Features = []string{FeatureIndexed}

	c := src.Clone()
	c.Features[0] = "changed"
	c.Filename = "b.txt"

	if src.Features[0] != FeatureIndexed {
		t.Errorf("Clone() shares the features slice")
	}
	if src.Filename != "a.txt" {
		t.Errorf("Clone() shares fields")
	}

	var nilSource *KnowledgeSource
	if nilSource.Clone() != nil {
		t.Errorf("Clone() of nil should be nil")
	}
}

func TestKnowledgeSource_VisibleFeatures(t *testing.T) {
	src := NewKnowledgeSource("/docs/a.txt", "")
	src.Features = []string{FeatureIndexed}

	src.Status = StatusCompleted
	if got := src.VisibleFeatures(); len(got) != 1 {
		t.Errorf("VisibleFeatures() = %v for completed source", got)
	}

	src.Status = StatusRunning
	if got := src.VisibleFeatures(); len(got) != 0 {
		t.Errorf("VisibleFeatures() = %v for running source, want none", got)
	}

	src.Status = StatusFailed
	src.Features = nil
	if got := src.VisibleFeatures(); got == nil {
		t.Errorf("VisibleFeatures() should never return nil")
	}
}
