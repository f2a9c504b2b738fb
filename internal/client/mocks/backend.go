package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// Backend is a mock type for the client.Backend type
type Backend struct {
	mock.Mock
}

func NewBackend(t interface {
	mock.TestingT
	Cleanup(func())
}) *Backend {
	m := &Backend{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func patterns(ret mock.Arguments) []models.Pattern {
	if v, ok := ret.Get(0).([]models.Pattern); ok {
		return v
	}
	return nil
}

func pattern(ret mock.Arguments) models.Pattern {
	v, _ := ret.Get(0).(models.Pattern)
	return v
}

func prompt(ret mock.Arguments) models.Prompt {
	v, _ := ret.Get(0).(models.Prompt)
	return v
}

func exchange(ret mock.Arguments) client.LabExchange {
	v, _ := ret.Get(0).(client.LabExchange)
	return v
}

func body(ret mock.Arguments) io.ReadCloser {
	v, _ := ret.Get(0).(io.ReadCloser)
	return v
}

func (m *Backend) History(ctx context.Context) ([]models.Pattern, error) {
	ret := m.Called(ctx)
	return patterns(ret), ret.Error(1)
}

func (m *Backend) ListPatterns(ctx context.Context) ([]models.Pattern, error) {
	ret := m.Called(ctx)
	return patterns(ret), ret.Error(1)
}

func (m *Backend) GetPattern(ctx context.Context, id string) (models.Pattern, error) {
	ret := m.Called(ctx, id)
	return pattern(ret), ret.Error(1)
}

func (m *Backend) GetPatternByWord(ctx context.Context, word string) (models.Pattern, error) {
	ret := m.Called(ctx, word)
	return pattern(ret), ret.Error(1)
}

func (m *Backend) GenerateWord(ctx context.Context, word string) (models.Pattern, error) {
	ret := m.Called(ctx, word)
	return pattern(ret), ret.Error(1)
}

func (m *Backend) StreamGenerate(ctx context.Context, word string) (io.ReadCloser, error) {
	ret := m.Called(ctx, word)
	return body(ret), ret.Error(1)
}

func (m *Backend) StreamWord(ctx context.Context, word string) (io.ReadCloser, error) {
	ret := m.Called(ctx, word)
	return body(ret), ret.Error(1)
}

func (m *Backend) ManagePattern(ctx context.Context, id string, action models.ManageAction) error {
	return m.Called(ctx, id, action).Error(0)
}

func (m *Backend) ListPrompts(ctx context.Context) ([]models.Prompt, error) {
	ret := m.Called(ctx)
	v, _ := ret.Get(0).([]models.Prompt)
	return v, ret.Error(1)
}

func (m *Backend) GetPrompt(ctx context.Context, slug string) (models.Prompt, error) {
	ret := m.Called(ctx, slug)
	return prompt(ret), ret.Error(1)
}

func (m *Backend) GetPromptVersion(ctx context.Context, id string) (models.Prompt, error) {
	ret := m.Called(ctx, id)
	return prompt(ret), ret.Error(1)
}

func (m *Backend) CreatePromptVersion(ctx context.Context, slug string, p models.Prompt) (models.Prompt, error) {
	ret := m.Called(ctx, slug, p)
	return prompt(ret), ret.Error(1)
}

func (m *Backend) UpdatePromptVersion(ctx context.Context, id string, p models.Prompt) (models.Prompt, error) {
	ret := m.Called(ctx, id, p)
	return prompt(ret), ret.Error(1)
}

func (m *Backend) ActivatePrompt(ctx context.Context, id, slug string) error {
	return m.Called(ctx, id, slug).Error(0)
}

func (m *Backend) PlaygroundTest(ctx context.Context, req client.PlaygroundRequest) (client.LabExchange, error) {
	ret := m.Called(ctx, req)
	return exchange(ret), ret.Error(1)
}

func (m *Backend) GenerateBrief(ctx context.Context, req client.BriefRequest) (client.LabExchange, error) {
	ret := m.Called(ctx, req)
	return exchange(ret), ret.Error(1)
}

func (m *Backend) GenerateImage(ctx context.Context, brief string) (client.LabExchange, error) {
	ret := m.Called(ctx, brief)
	return exchange(ret), ret.Error(1)
}

func (m *Backend) GenerateVoicing(ctx context.Context, req client.VoicingRequest) (client.LabExchange, error) {
	ret := m.Called(ctx, req)
	return exchange(ret), ret.Error(1)
}

func (m *Backend) TestTemplate(ctx context.Context, req client.TemplateTestRequest) (client.LabExchange, error) {
	ret := m.Called(ctx, req)
	return exchange(ret), ret.Error(1)
}

func (m *Backend) LineageTree(ctx context.Context) (models.LineageTree, error) {
	ret := m.Called(ctx)
	v, _ := ret.Get(0).(models.LineageTree)
	return v, ret.Error(1)
}

func (m *Backend) StreamBranch(ctx context.Context, id, branchPoint string) (io.ReadCloser, error) {
	ret := m.Called(ctx, id, branchPoint)
	return body(ret), ret.Error(1)
}

func (m *Backend) PatternTrace(ctx context.Context, id string) ([]generation.HTTPTrace, error) {
	ret := m.Called(ctx, id)
	v, _ := ret.Get(0).([]generation.HTTPTrace)
	return v, ret.Error(1)
}

func (m *Backend) RunsSummary(ctx context.Context) (models.RunsSummary, error) {
	ret := m.Called(ctx)
	v, _ := ret.Get(0).(models.RunsSummary)
	return v, ret.Error(1)
}

var _ client.Backend = (*Backend)(nil)
