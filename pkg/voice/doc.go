// Package voice holds the values that parameterize a voice session: the
// persona Config (prompt, greeting, speech voice, model choices), the
// function tools the model may call and per-turn latency metrics.
//
// A Config is plain data. pkg/persona loads one from YAML and pkg/agent
// consumes it:
//
//	cfg, _ := persona.Load("sara")
//	orch, _ := agent.New(cfg, llm, speaker)
//
// # Tools
//
// ImageTool is the one function the personas expose. The model calls it
// with a user_msg argument when the user asks about something on camera;
// the agent answers by re-asking the model with the latest frame attached.
//
// # Metrics
//
// MetricsCollector measures each answer from the final transcript:
//
//	utterance -> first token -> first audio -> response done
package voice
