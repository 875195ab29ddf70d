package tts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/tokenize"
	"github.com/teslashibe/go-voiceagent/pkg/tts"
)

func feed(parts ...string) <-chan string {
	ch := make(chan string, len(parts))
	for _, p := range parts {
		ch <- p
	}
	close(ch)
	return ch
}

func TestStreamAdapterSay(t *testing.T) {
	provider := tts.NewMock()
	sink := &tts.RecordingSink{}
	speaker := tts.NewStreamAdapter(provider, sink, tts.WithTokenizer(tokenize.Config{}))

	var firstAudio int
	speaker.OnFirstAudio(func() { firstAudio++ })

	err := speaker.Say(context.Background(), feed("Hello ", "there. How", " are you?"), true)
	if err != nil {
		t.Fatalf("Say failed: %v", err)
	}

	texts := provider.Texts()
	if len(texts) != 2 || texts[0] != "Hello there." || texts[1] != "How are you?" {
		t.Errorf("unexpected sentences: %q", texts)
	}

	events := sink.Events()
	if events[0].Op != "begin" || !events[0].AllowInterruptions {
		t.Errorf("expected interruptible begin, got %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Op != "end" || last.Interrupted {
		t.Errorf("expected clean end, got %+v", last)
	}

	wantBytes := (len("Hello there.") + len("How are you?")) * tts.MockBytesPerChar
	if sink.AudioBytes() != wantBytes {
		t.Errorf("expected %d audio bytes, got %d", wantBytes, sink.AudioBytes())
	}
	if firstAudio != 1 {
		t.Errorf("expected first-audio callback once, got %d", firstAudio)
	}
}

func TestStreamAdapterInterrupt(t *testing.T) {
	provider := tts.WithLatency(tts.NewMock(), 20*time.Millisecond)
	sink := &tts.RecordingSink{}
	speaker := tts.NewStreamAdapter(provider, sink, tts.WithTokenizer(tokenize.Config{}))

	text := make(chan string)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- speaker.Say(ctx, text, true) }()

	text <- "First sentence. "
	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Say did not return after cancel")
	}

	events := sink.Events()
	last := events[len(events)-1]
	if last.Op != "end" || !last.Interrupted {
		t.Errorf("expected interrupted end, got %+v", last)
	}
}

func TestStreamAdapterProviderError(t *testing.T) {
	want := errors.New("synthesis down")
	sink := &tts.RecordingSink{}
	speaker := tts.NewStreamAdapter(tts.WithError(want), sink)

	err := speaker.Speak(context.Background(), "Hello there, nice to meet you.", false)
	if !errors.Is(err, want) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if tts.IsSinkError(err) {
		t.Error("provider failure should not be a sink error")
	}

	events := sink.Events()
	if events[0].AllowInterruptions {
		t.Error("expected non-interruptible begin")
	}
	if last := events[len(events)-1]; last.Op != "end" || last.Interrupted {
		t.Errorf("expected non-interrupted end, got %+v", last)
	}
}

func TestStreamAdapterSinkError(t *testing.T) {
	sink := &tts.RecordingSink{Err: errors.New("socket closed")}
	speaker := tts.NewStreamAdapter(tts.NewMock(), sink)

	err := speaker.Speak(context.Background(), "Hey, I'm John. What can I help you with?", true)
	if !tts.IsSinkError(err) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestStreamAdapterOneAtATime(t *testing.T) {
	provider := tts.NewMock()
	sink := &tts.RecordingSink{}
	speaker := tts.NewStreamAdapter(provider, sink)

	hold := make(chan string)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		speaker.Say(context.Background(), hold, true)
	}()

	// Wait for the first Say to begin.
	deadline := time.Now().Add(time.Second)
	for len(sink.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := speaker.Speak(context.Background(), "overlap", true); !errors.Is(err, tts.ErrSpeechInProgress) {
		t.Errorf("expected ErrSpeechInProgress, got %v", err)
	}

	close(hold)
	wg.Wait()
}
