package search

import (
	"reflect"
	"testing"
)

func TestParseTextArray(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"{}", nil},
		{"{usr-1}", []string{"usr-1"}},
		{"{usr-1,usr-2}", []string{"usr-1", "usr-2"}},
	}
	for _, tc := range cases {
		if got := parseTextArray(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("parseTextArray(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFirstNonBlank(t *testing.T) {
	if got := firstNonBlank("", "  ", "hello", "world"); got != "hello" {
		t.Fatalf("firstNonBlank = %q, want hello", got)
	}
	if got := firstNonBlank("", "   "); got != "" {
		t.Fatalf("firstNonBlank = %q, want empty", got)
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Fatalf("nonNil(nil) = %v, want empty slice", got)
	}
	in := []Result{{Type: ResultNote, ID: "note-1"}}
	if got := nonNil(in); len(got) != 1 || got[0].ID != "note-1" {
		t.Fatalf("nonNil passthrough broken: %v", got)
	}
}
