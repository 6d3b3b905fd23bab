package govbench

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"go.uber.org/goleak"

	"github.com/jdziat/govbench/govbenchtest"
	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/judge"
	"github.com/jdziat/govbench/pkg/provider"
	"github.com/jdziat/govbench/pkg/types"
)

// TestMain runs goleak verification for all tests in the package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
		goleak.IgnoreTopFunction("testing.(*T).Parallel"),
		goleak.IgnoreTopFunction("net/http.(*http2ClientConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// TestRun_ConcurrentWorkers_NoLeaks runs several candidates and judges with
// parallel workers and checks that every worker goroutine exits.
func TestRun_ConcurrentWorkers_NoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
	)

	clients := map[string]provider.Client{
		"cand-a":  govbenchtest.NewMockClient("a"),
		"cand-b":  govbenchtest.NewMockClient("b"),
		"judge-1": govbenchtest.NewMockClient(judgeReply),
		"judge-2": govbenchtest.NewMockClient(judgeReply),
	}
	p := newTestPipeline(t, govbenchtest.Catalogs(), clients,
		WithJudges("judge-1", "judge-2"),
		WithInference(infer.Config{MaxConcurrency: 4}),
		WithJudging(judge.Config{MaxConcurrency: 4}),
		WithRateLimit("cand-a", 1000),
	)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Judge.Pairs) != 4 {
		t.Errorf("pairs = %d, want 4", len(report.Judge.Pairs))
	}
}

// TestRun_Canceled_NoLeaks cancels a run while candidates are answering.
func TestRun_Canceled_NoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := cancelingClient{cancel: cancel}
	p := newTestPipeline(t, govbenchtest.Catalogs(), map[string]provider.Client{
		"cand":  slow,
		"judge": govbenchtest.NewMockClient(judgeReply),
	}, WithInference(infer.Config{MaxConcurrency: 2}))

	if _, err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// cancelingClient cancels the run on its first call and fails that call.
// Calls never see the cancellation themselves, so the run has to notice it
// between attempts.
type cancelingClient struct {
	cancel context.CancelFunc
}

func (cancelingClient) Provider() string { return "mock" }

func (c cancelingClient) Chat(ctx context.Context, _ []types.Message, _ float64, _ int) (*provider.Result, error) {
	c.cancel()
	return nil, &pkgerrors.TransportError{Op: "chat", Err: syscall.ECONNRESET, Retryable: true}
}
