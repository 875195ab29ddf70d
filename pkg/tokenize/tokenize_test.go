package tokenize

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		in   string
		want []string
	}{
		{
			name: "two sentences",
			in:   "Hello there, how are you? I am fine.",
			want: []string{"Hello there, how are you?", "I am fine."},
		},
		{
			name: "decimal number",
			in:   "It costs 3.5 dollars. Okay then.",
			want: []string{"It costs 3.5 dollars.", "Okay then."},
		},
		{
			name: "abbreviation",
			in:   "Dr. Smith is here. Yes.",
			want: []string{"Dr. Smith is here.", "Yes."},
		},
		{
			name: "initials",
			in:   "J. K. Rowling wrote it. Fine.",
			want: []string{"J. K. Rowling wrote it.", "Fine."},
		},
		{
			name: "terminator run",
			in:   "Really?! Yes.",
			want: []string{"Really?!", "Yes."},
		},
		{
			name: "newline",
			in:   "First line\nSecond line",
			want: []string{"First line", "Second line"},
		},
		{
			name: "merge short sentences",
			cfg:  DefaultConfig(),
			in:   "Hi. How are you doing today? Good.",
			want: []string{"Hi. How are you doing today?", "Good."},
		},
		{
			name: "forced cut",
			cfg:  Config{MaxSentenceLen: 10},
			in:   "one two three four",
			want: []string{"one two", "three four"},
		},
		{
			name: "empty",
			in:   "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in, tt.cfg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPushFragments(t *testing.T) {
	tok := New(Config{})

	if got := tok.Push("Hel"); got != nil {
		t.Errorf("Expected nothing yet, got %q", got)
	}
	if got := tok.Push("lo. Wor"); !reflect.DeepEqual(got, []string{"Hello."}) {
		t.Errorf("Expected [Hello.], got %q", got)
	}
	if got := tok.Push("ld."); got != nil {
		t.Errorf("Terminator at buffer end must wait, got %q", got)
	}
	if got := tok.Flush(); !reflect.DeepEqual(got, []string{"World."}) {
		t.Errorf("Expected [World.] on flush, got %q", got)
	}
	if got := tok.Flush(); got != nil {
		t.Errorf("Second flush should be empty, got %q", got)
	}
}

func TestRun(t *testing.T) {
	tok := New(Config{})
	in := make(chan string, 4)
	out := make(chan string, 4)

	in <- "One. "
	in <- "Two"
	in <- "."
	close(in)

	go tok.Run(context.Background(), in, out)

	var got []string
	for s := range out {
		got = append(got, s)
	}
	want := []string{"One.", "Two."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Run = %q, want %q", got, want)
	}
}

func TestRunCancel(t *testing.T) {
	tok := New(Config{})
	in := make(chan string)
	out := make(chan string)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tok.Run(ctx, in, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	if _, ok := <-out; ok {
		t.Error("out should be closed")
	}
}
