package mocks

import (
	"context"
	"time"

	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)

	return args.Int(0), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
