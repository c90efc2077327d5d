package session

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/audit-engine/internal/llm"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/pipeline"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, query string) (*model.Channel, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Channel), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, title, videoURL string) (*pipeline.ExtractResult, error) {
	args := m.Called(ctx, title, videoURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.ExtractResult), args.Error(1)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, claim string) (*model.VerificationResult, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VerificationResult), args.Error(1)
}

// mockGenerator answers by operation for end-to-end runs through the real
// pipeline.
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Name() string { return "mock" }

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func operation(op string) any {
	return mock.MatchedBy(func(r llm.Request) bool { return r.Operation == op })
}
