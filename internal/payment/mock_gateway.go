package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventgo/internal/logger"
)

// MockGateway simulates a provider for development and tests. Each attempt
// succeeds with probability SuccessRate; declines carry a canned reason.
type MockGateway struct {
	SuccessRate float64
	Latency     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	log *logger.Logger
}

func NewMockGateway(successRate float64, log *logger.Logger) *MockGateway {
	return &MockGateway{
		SuccessRate: successRate,
		Latency:     50 * time.Millisecond,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         log,
	}
}

// NewSeededMockGateway returns a gateway with a deterministic outcome
// sequence, for tests.
func NewSeededMockGateway(successRate float64, seed int64) *MockGateway {
	return &MockGateway{
		SuccessRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (g *MockGateway) roll() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < g.SuccessRate
}

func (g *MockGateway) wait(ctx context.Context) error {
	if g.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(g.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *MockGateway) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	if !g.roll() {
		if g.log != nil {
			g.log.LogGateway("CAPTURE", req.Reference, "Mock capture declined")
		}
		return &Result{
			Success:       false,
			FailureReason: "insufficient funds",
		}, nil
	}

	ref := "mock_ch_" + uuid.New().String()[:8]
	if g.log != nil {
		g.log.LogGateway("CAPTURE", req.Reference, fmt.Sprintf("Mock capture succeeded (%s)", ref))
	}
	return &Result{Success: true, Reference: ref}, nil
}

func (g *MockGateway) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	if !g.roll() {
		if g.log != nil {
			g.log.LogGateway("REFUND", req.ExternalReference, "Mock refund declined")
		}
		return &Result{
			Success:       false,
			FailureReason: "provider rejected the refund",
		}, nil
	}

	ref := "mock_re_" + uuid.New().String()[:8]
	if g.log != nil {
		g.log.LogGateway("REFUND", req.ExternalReference, fmt.Sprintf("Mock refund succeeded (%s)", ref))
	}
	return &Result{Success: true, Reference: ref}, nil
}
