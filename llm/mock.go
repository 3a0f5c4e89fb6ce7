package llm

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockConfig configures the mock backend.
type MockConfig struct {
	// LatencyMS simulates backend latency per call.
	LatencyMS int

	// Seed makes execution responses reproducible. Zero uses the clock.
	Seed int64
}

// Mock is a lightweight offline backend producing structured responses so
// every stage can run without API keys.
type Mock struct {
	latency time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// MockPlan is the plan the mock returns for planning prompts.
const MockPlan = "1) Research background and collect sources. " +
	"2) Extract key facts and statistics. " +
	"3) Analyze drivers and craft recommendations. " +
	"4) Produce final report with citations."

// MockReview is the review the mock returns for review prompts.
const MockReview = "Checked outputs: Sources valid; minor factual mismatch on 'year', corrected. " +
	"Recommend adding regional case studies and quant metrics."

// MockFallback is returned when a prompt matches no stage.
const MockFallback = "Acknowledged. (mock fallback response.)"

var mockExecutions = []string{
	"Fetched 3 authoritative sources: un_water.org, who.int, worldbank.org.",
	"Calculated trend: water scarcity increasing in arid regions; key drivers: climate change, inefficient irrigation.",
	"Drafted a 600-word summary and a list of 5 proposed interventions.",
}

// NewMock creates a mock backend.
func NewMock(cfg MockConfig) *Mock {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mock{
		latency: time.Duration(cfg.LatencyMS) * time.Millisecond,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// Generate routes on keywords in the prompt.
func (m *Mock) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	// Route on the instruction line only; later lines carry context that
	// may mention any stage.
	p := strings.ToLower(prompt)
	if i := strings.IndexByte(p, '\n'); i >= 0 {
		p = p[:i]
	}
	switch {
	case strings.Contains(p, "execute step"):
		return m.execution(), nil
	case strings.Contains(p, "plan") || strings.Contains(p, "break") || strings.Contains(p, "steps"):
		return MockPlan, nil
	case strings.Contains(p, "review") || strings.Contains(p, "validate"):
		return MockReview, nil
	case strings.Contains(p, "fetch") || strings.Contains(p, "analyze"):
		return m.execution(), nil
	default:
		return MockFallback, nil
	}
}

func (m *Mock) execution() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mockExecutions[m.rnd.Intn(len(mockExecutions))]
}
