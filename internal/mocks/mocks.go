// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/opera-farm/internal/browser"
	"github.com/xkilldash9x/opera-farm/internal/farm"
)

// -- Profile Mock --

// MockProfile mocks farm.Profile.
type MockProfile struct {
	mock.Mock
}

func (m *MockProfile) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProfile) WalletAddress() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProfile) Open(ctx context.Context) (browser.Driver, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Driver), args.Error(1)
}

func (m *MockProfile) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// NewProfile returns a MockProfile answering ID and WalletAddress.
func NewProfile(id, wallet string) *MockProfile {
	m := &MockProfile{}
	m.On("ID").Return(id).Maybe()
	m.On("WalletAddress").Return(wallet).Maybe()
	return m
}

// -- Runner Mock --

// MockRunner mocks engine.Runner.
type MockRunner struct {
	mock.Mock
}

// Run provides a mock function for farming one profile.
func (m *MockRunner) Run(ctx context.Context, p farm.Profile, profileNum int) *farm.RunReport {
	args := m.Called(ctx, p, profileNum)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*farm.RunReport)
}

// -- Recorder Mock --

// MockRecorder mocks engine.Recorder.
type MockRecorder struct {
	mock.Mock
}

// RecordRun provides a mock function for persisting a run report.
func (m *MockRecorder) RecordRun(ctx context.Context, report *farm.RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}
