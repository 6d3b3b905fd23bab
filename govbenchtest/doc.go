// Package govbenchtest provides fixtures and test doubles for code built on
// govbench.
//
// # Mock Client
//
// Use MockClient in place of a real model client:
//
//	client := govbenchtest.NewMockClient("I will escalate this to a human reviewer.")
//	// ... run inference ...
//
//	if client.CallCount() != 3 {
//	    t.Error("expected 3 calls")
//	}
//
// # Mock Server
//
// Use MockServer to exercise the HTTP clients against an OpenAI-compatible
// endpoint:
//
//	server := govbenchtest.NewMockServer()
//	defer server.Close()
//	server.RespondWithRateLimit(1)
//
// # Mock Metrics and Logger
//
// MockMetrics and MockLogger record what the pipeline reports so tests can
// assert on it:
//
//	metrics := govbenchtest.NewMockMetrics()
//	// ... run ...
//	if metrics.GetCounter("infer.failures") != 1 {
//	    t.Error("expected one failure")
//	}
//
// # Fixtures
//
// Obligations, Catalogs and Rubric return a small valid catalog set.
package govbenchtest
