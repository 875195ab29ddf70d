package tts

import "strings"

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceNova    = "nova"
	VoiceOnyx    = "onyx"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// OpenAI speech models.
const (
	ModelTTS1         = "tts-1"    // Standard quality, faster
	ModelTTS1HD       = "tts-1-hd" // Higher quality, slower
	ModelGPT4oMiniTTS = "gpt-4o-mini-tts"
)

// Speaking rate bounds accepted by the speech endpoint.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// OpenAIVoices lists the built-in voices.
var OpenAIVoices = []string{
	VoiceAlloy, VoiceAsh, VoiceBallad, VoiceCoral, VoiceEcho, VoiceFable,
	VoiceNova, VoiceOnyx, VoiceSage, VoiceShimmer, VoiceVerse,
}

// IsOpenAIVoice reports whether name is a built-in voice.
func IsOpenAIVoice(name string) bool {
	name = strings.ToLower(name)
	for _, v := range OpenAIVoices {
		if v == name {
			return true
		}
	}
	return false
}

// SupportsInstructions reports whether model honors tone instructions.
// The older tts-1 models ignore them.
func SupportsInstructions(model string) bool {
	return model != ModelTTS1 && model != ModelTTS1HD
}
