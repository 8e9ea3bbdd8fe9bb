package registry

import (
	"context"

	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockSecretRegistry mocks the SecretRegistry interface
type MockSecretRegistry struct {
	mock.Mock
}

func (m *MockSecretRegistry) Caller() interfaces.Address {
	args := m.Called()
	return args.Get(0).(interfaces.Address)
}

func (m *MockSecretRegistry) RegisterSecret(ctx context.Context, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (*interfaces.SecretRegistered, error) {
	args := m.Called(ctx, id, threshold, participants, secretHash)
	ev, _ := args.Get(0).(*interfaces.SecretRegistered)
	return ev, args.Error(1)
}

func (m *MockSecretRegistry) ConfirmReceipt(ctx context.Context, id interfaces.SecretID) (*interfaces.ReceiptConfirmed, error) {
	args := m.Called(ctx, id)
	ev, _ := args.Get(0).(*interfaces.ReceiptConfirmed)
	return ev, args.Error(1)
}

func (m *MockSecretRegistry) CloseSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretClosed, error) {
	args := m.Called(ctx, id)
	ev, _ := args.Get(0).(*interfaces.SecretClosed)
	return ev, args.Error(1)
}

func (m *MockSecretRegistry) GetSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*interfaces.SecretRecord)
	return rec, args.Error(1)
}

func (m *MockSecretRegistry) CanReconstruct(ctx context.Context, id interfaces.SecretID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSecretRegistry) IsParticipant(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	args := m.Called(ctx, id, addr)
	return args.Bool(0), args.Error(1)
}

func (m *MockSecretRegistry) HasConfirmed(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	args := m.Called(ctx, id, addr)
	return args.Bool(0), args.Error(1)
}

// MockEventSource mocks the EventSource interface
type MockEventSource struct {
	mock.Mock
}

func (m *MockEventSource) Events(ctx context.Context, from uint64) ([]interfaces.Event, error) {
	args := m.Called(ctx, from)
	evs, _ := args.Get(0).([]interfaces.Event)
	return evs, args.Error(1)
}
