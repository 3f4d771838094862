package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	FeedsFetched        int64
	FeedsFailed         int64
	ArticlesFetched     int64
	WindowEscalations   int64
	LLMCalls            int64
	LLMFailures         int64
	FilterFallbacks     int64
	ScoreFallbacks      int64
	SuggestionCacheHits int64
	SuggestionFallbacks int64
	NewspapersGenerated int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) RecordFeedFetch(ok bool, articles int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.FeedsFetched++
		m.ArticlesFetched += int64(articles)
		return
	}
	m.FeedsFailed++
}

func (m *Metrics) IncrementWindowEscalations() {
	m.add(&m.WindowEscalations, 1)
}

func (m *Metrics) IncrementFilterFallbacks() {
	m.add(&m.FilterFallbacks, 1)
}

func (m *Metrics) IncrementScoreFallbacks() {
	m.add(&m.ScoreFallbacks, 1)
}

func (m *Metrics) IncrementSuggestionHits() {
	m.add(&m.SuggestionCacheHits, 1)
}

func (m *Metrics) IncrementSuggestionFallbacks() {
	m.add(&m.SuggestionFallbacks, 1)
}

func (m *Metrics) RecordLLMCall(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LLMCalls++
	if err != nil {
		m.LLMFailures++
	}
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.NewspapersGenerated++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"feeds_fetched":              m.FeedsFetched,
		"feeds_failed":               m.FeedsFailed,
		"articles_fetched":           m.ArticlesFetched,
		"window_escalations":         m.WindowEscalations,
		"llm_calls":                  m.LLMCalls,
		"llm_failures":               m.LLMFailures,
		"filter_fallbacks":           m.FilterFallbacks,
		"score_fallbacks":            m.ScoreFallbacks,
		"suggestion_cache_hits":      m.SuggestionCacheHits,
		"suggestion_fallbacks":       m.SuggestionFallbacks,
		"newspapers_generated":       m.NewspapersGenerated,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
