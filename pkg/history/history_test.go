package history

import (
	"errors"
	"sync"
	"testing"
)

func TestNewHasSystemTurn(t *testing.T) {
	h := New("P")

	if h.Len() != 1 {
		t.Fatalf("expected 1 turn, got %d", h.Len())
	}
	sys := h.System()
	if sys.Role != RoleSystem || sys.Text != "P" {
		t.Errorf("unexpected system turn: %+v", sys)
	}
	if sys.ID == "" {
		t.Error("system turn should have an ID")
	}
}

func TestAppendRejectsSystem(t *testing.T) {
	h := New("P")

	err := h.Append(Turn{Role: RoleSystem, Text: "override"})
	if !errors.Is(err, ErrSystemTurn) {
		t.Fatalf("expected ErrSystemTurn, got %v", err)
	}
	if err := h.Append(Turn{Role: "tool", Text: "x"}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if h.Len() != 1 || h.System().Text != "P" {
		t.Error("history should be unchanged")
	}
}

func TestAppendOrder(t *testing.T) {
	h := New("P")

	if err := h.Append(NewUserTurn("Hello", nil)); err != nil {
		t.Fatal(err)
	}
	if err := h.Append(NewAssistantTurn("Hi there", nil, false)); err != nil {
		t.Fatal(err)
	}

	turns := h.Turns()
	want := []Role{RoleSystem, RoleUser, RoleAssistant}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(turns))
	}
	for i, r := range want {
		if turns[i].Role != r {
			t.Errorf("turn %d: expected %s, got %s", i, r, turns[i].Role)
		}
	}
	if h.Last().Text != "Hi there" {
		t.Errorf("unexpected last turn %q", h.Last().Text)
	}
}

func TestTurnsAreCopies(t *testing.T) {
	h := New("P")
	img := &Image{Data: []byte{1, 2, 3}, MIMEType: "image/jpeg"}
	if err := h.Append(NewUserTurn("look", img)); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's frame must not reach the stored turn.
	img.Data[0] = 9

	turns := h.Turns()
	turns[0].Text = "changed"
	turns[1].Image.Data[1] = 9

	again := h.Turns()
	if again[0].Text != "P" {
		t.Error("system turn was modified through a snapshot")
	}
	if got := again[1].Image.Data; got[0] != 1 || got[1] != 2 {
		t.Errorf("stored image was modified: %v", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	h := New("P")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Append(NewUserTurn("x", nil))
		}()
	}
	wg.Wait()

	if h.Len() != 51 {
		t.Errorf("expected 51 turns, got %d", h.Len())
	}
	if h.System().Role != RoleSystem {
		t.Error("first turn must stay the system turn")
	}
}
