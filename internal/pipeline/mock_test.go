package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/audit-engine/internal/llm"
)

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

// answer returns a generator that replies text to every request.
func answer(text string) *mockGenerator {
	g := &mockGenerator{}
	g.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Text: text}, nil)
	return g
}

func operation(op string) any {
	return mock.MatchedBy(func(r llm.Request) bool { return r.Operation == op })
}
