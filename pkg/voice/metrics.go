package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency at each stage of one answer.
// All durations are measured from the moment the utterance was accepted.
type Metrics struct {
	UtteranceTime    time.Time // final transcript handed to the agent
	FirstTokenTime   time.Time // first model token
	FirstAudioTime   time.Time // first audio chunk written to the runtime
	ResponseDoneTime time.Time // answer finished, failed or was interrupted

	LLMFirstToken time.Duration
	TTSFirstAudio time.Duration
	TotalLatency  time.Duration

	TokensGenerated int
	AudioChunksOut  int
	Interrupted     bool
	Failed          bool
}

// Summary aggregates recent answers.
type Summary struct {
	Turns         int           `json:"turns"`
	Interrupted   int           `json:"interrupted"`
	Failed        int           `json:"failed"`
	LLMFirstToken time.Duration `json:"llm_first_token"`
	TTSFirstAudio time.Duration `json:"tts_first_audio"`
	TotalLatency  time.Duration `json:"total_latency"`
}

const metricsHistory = 100

// MetricsCollector collects latency metrics during an answer.
// It is goroutine-safe; the first-audio mark comes from the speech goroutine.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics

	onUpdate func(Metrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, metricsHistory),
	}
}

// OnUpdate sets a callback that fires whenever an answer completes.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkUtterance starts a new answer.
func (m *MetricsCollector) MarkUtterance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{UtteranceTime: time.Now()}
}

// MarkFirstToken records the first model token. Later calls count tokens.
func (m *MetricsCollector) MarkFirstToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TokensGenerated++
	if m.current.FirstTokenTime.IsZero() {
		m.current.FirstTokenTime = time.Now()
		if !m.current.UtteranceTime.IsZero() {
			m.current.LLMFirstToken = m.current.FirstTokenTime.Sub(m.current.UtteranceTime)
		}
	}
}

// MarkFirstAudio records the first audio chunk. Later calls count chunks.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.UtteranceTime.IsZero() {
			m.current.TTSFirstAudio = m.current.FirstAudioTime.Sub(m.current.UtteranceTime)
		}
	}
}

// MarkResponseDone closes the current answer and archives it.
func (m *MetricsCollector) MarkResponseDone(interrupted, failed bool) {
	m.mu.Lock()
	m.current.ResponseDoneTime = time.Now()
	m.current.Interrupted = interrupted
	m.current.Failed = failed
	if !m.current.UtteranceTime.IsZero() {
		m.current.TotalLatency = m.current.ResponseDoneTime.Sub(m.current.UtteranceTime)
	}

	m.history = append(m.history, m.current)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	done, fn := m.current, m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(done)
	}
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Summary averages latencies over recent successful answers.
func (m *MetricsCollector) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Turns: len(m.history)}
	var n time.Duration
	for _, h := range m.history {
		switch {
		case h.Failed:
			s.Failed++
			continue
		case h.Interrupted:
			s.Interrupted++
		}
		n++
		s.LLMFirstToken += h.LLMFirstToken
		s.TTSFirstAudio += h.TTSFirstAudio
		s.TotalLatency += h.TotalLatency
	}
	if n > 0 {
		s.LLMFirstToken /= n
		s.TTSFirstAudio /= n
		s.TotalLatency /= n
	}
	return s
}
