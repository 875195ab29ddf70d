// Package tts turns the agent's answers into audio.
//
// A Provider synthesizes one piece of text. StreamAdapter sits on top of a
// Provider and speaks a live token stream: it cuts the stream into sentences,
// synthesizes each one as soon as it is complete and writes the audio to an
// AudioSink (usually the runtime connection that plays it).
//
// Example usage:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice(tts.VoiceSage),
//	)
//	defer provider.Close()
//
//	speaker := tts.NewStreamAdapter(provider, sink)
//	err := speaker.Say(ctx, tokens, true)
package tts

import (
	"context"
	"time"
)

// Provider renders text to speech. StreamAdapter only uses Stream; Synthesize
// returns the whole clip for callers that need its duration up front.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
	Stream(ctx context.Context, text string) (AudioStream, error)
	Health(ctx context.Context) error
	Close() error
}

// AudioStream yields audio as it is rendered. Read returns a nil chunk and
// nil error at the end.
type AudioStream interface {
	Read() ([]byte, error)
	Close() error
	Format() AudioFormat
}

type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimated playback time, zero if unknown
	CharCount int
	LatencyMs int64
}

type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int // PCM only
}

type Encoding string

const (
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16, what the runtime plays directly
	EncodingWAV   Encoding = "wav"
	EncodingMP3   Encoding = "mp3"
	EncodingOpus  Encoding = "opus"
)

// PCM24 is the format of raw speech audio sent to the runtime.
var PCM24 = AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16}

// SampleRateFromEncoding is the rate the speech endpoint renders enc at.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingMP3:
		return 44100
	case EncodingOpus:
		return 48000
	default:
		return 24000
	}
}

// PCMDuration returns the playback time of PCM16 mono audio.
func PCMDuration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
