// internal/prompt/static.go
package prompt

import (
	"context"
	"math/rand"
	"strings"
	"sync"
)

var topics = []string{
	"decentralized AI agents",
	"zero-knowledge proofs",
	"layer 2 rollups",
	"federated learning",
	"on-chain governance",
	"stablecoin design",
	"vector databases",
	"model fine-tuning",
	"smart contract audits",
	"cross-chain bridges",
	"token incentive design",
	"retrieval augmented generation",
	"proof of stake validators",
	"prompt engineering",
	"data privacy in machine learning",
}

var templates = []string{
	"What are the main trade-offs of %s?",
	"Explain %s to a software engineer in three sentences.",
	"What is a common misconception about %s?",
	"How could %s change over the next five years?",
	"Give one practical example of %s in production.",
	"What risks should a beginner know about %s?",
	"Compare %s with the approach it replaced.",
	"Which metrics matter most when evaluating %s?",
	"Summarize the history of %s briefly.",
	"What open research problems remain in %s?",
}

// Static composes prompts from fixed phrase banks. It needs no network and
// is safe for concurrent use.
type Static struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStatic returns a generator seeded with seed.
func NewStatic(seed int64) *Static {
	return &Static{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns one question. It never fails.
func (s *Static) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	topic := topics[s.rng.Intn(len(topics))]
	tmpl := templates[s.rng.Intn(len(templates))]
	s.mu.Unlock()
	return strings.Replace(tmpl, "%s", topic, 1), nil
}

// Topic picks a random topic. The Gemini generator uses it to keep replies
// varied across calls.
func (s *Static) Topic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topics[s.rng.Intn(len(topics))]
}
