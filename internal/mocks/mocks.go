package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ariefcatur/tenant-orders/internal/events"
	"github.com/ariefcatur/tenant-orders/internal/orders"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, topic string, env events.Envelope) error {
	args := m.Called(ctx, topic, env)
	return args.Error(0)
}

type MockOrderCache struct {
	mock.Mock
}

func (m *MockOrderCache) Get(ctx context.Context, tenantID, orderID string) (*orders.Order, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orders.Order), args.Error(1)
}

func (m *MockOrderCache) Version(ctx context.Context, tenantID, orderID string) (int64, error) {
	args := m.Called(ctx, tenantID, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderCache) SetIfVersion(ctx context.Context, o *orders.Order, version int64) error {
	args := m.Called(ctx, o, version)
	return args.Error(0)
}

func (m *MockOrderCache) Delete(ctx context.Context, tenantID, orderID string) error {
	args := m.Called(ctx, tenantID, orderID)
	return args.Error(0)
}

type MockIdempotency struct {
	mock.Mock
}

func (m *MockIdempotency) Claim(ctx context.Context, tenantID, key string) (string, bool, error) {
	args := m.Called(ctx, tenantID, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdempotency) Complete(ctx context.Context, tenantID, key, orderID string) error {
	args := m.Called(ctx, tenantID, key, orderID)
	return args.Error(0)
}

func (m *MockIdempotency) Release(ctx context.Context, tenantID, key string) error {
	args := m.Called(ctx, tenantID, key)
	return args.Error(0)
}

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) Forget(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
