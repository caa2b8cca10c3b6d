package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/lock"
	"github.com/RezaEskandarii/workflowq/internal/logging"
	"github.com/RezaEskandarii/workflowq/internal/maintenance"
	"github.com/RezaEskandarii/workflowq/internal/mocks"
	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store/memory"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/RezaEskandarii/workflowq/types/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T, opts ...config.ContainerOption) *config.WorkflowConfig {
	t.Helper()
	opts = append([]config.ContainerOption{config.WithStorageDriver(config.Memory)}, opts...)
	cfg, err := config.NewWorkflowConfig("test-instance", opts...)
	require.NoError(t, err)
	return cfg
}

func practiceWithEmployee() *practice.StaticClient {
	p := practice.NewStaticClient()
	p.AddEmployee("P", types.Employee{ExternalID: "E", Email: "e@example.com", FirstName: "Eve", LastName: "Doe"})
	return p
}

func TestNewContainer_MemoryDriver(t *testing.T) {
	c, err := NewContainer(context.Background(), memoryConfig(t), logging.Discard(),
		WithPracticeClient(practiceWithEmployee()))
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.DB)
	assert.Nil(t, c.LockManager)
	assert.Nil(t, c.MessageBroker)
	assert.Equal(t, []types.WorkflowType{
		types.ContractDistribution, types.HoursReminder, types.InvoiceGeneration,
	}, c.Registry.List())
	require.NoError(t, c.Migrate(context.Background()))
}

func TestNewContainer_EndToEndOverHTTP(t *testing.T) {
	broker := &mocks.MockMessageBroker{}
	var published []string
	broker.PublishFunc = func(_ context.Context, topic string, _ []byte) error {
		published = append(published, topic)
		return nil
	}

	cfg := memoryConfig(t, config.WithTriggerSecret("s"))
	c, err := NewContainer(context.Background(), cfg, logging.Discard(),
		WithPracticeClient(practiceWithEmployee()),
		WithMessageBroker(broker, "notifications"))
	require.NoError(t, err)
	defer c.Close()

	handler := c.HTTPServer().Routes()
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer s")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/api/workflows", `{"workflow_type":"CONTRACT_DISTRIBUTION","payload":{"project_id":"P","employee_id":"E"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/api/queue/process", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"processed":1,"succeeded":1,"failed":0,"retried":0,"exhausted":0}`, rec.Body.String())

	contracts := c.ContractStore.(*memory.ContractStore).All()
	require.Len(t, contracts, 1)
	assert.Equal(t, types.ContractSent, contracts[0].Status)
	assert.Equal(t, []string{"notifications"}, published)

	stats, err := c.Workflows.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
}

func TestNewContainer_RedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	c, err := NewContainer(context.Background(), memoryConfig(t), logging.Discard(),
		WithRedis(rdb), WithPracticeClient(practice.NewStaticClient()))
	require.NoError(t, err)
	defer c.Close()

	require.IsType(t, &lock.RedisDistributedLockManager{}, c.LockManager)

	// another instance holding the sweep lock makes this one skip
	other := lock.NewRedisDistributedLockManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), redisLockTTL)
	ok, err := other.TryAcquire(context.Background(), constants.StuckRecoveryLock)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Maintenance.RecoverStuck(context.Background())
	assert.ErrorIs(t, err, maintenance.ErrLockHeld)

	require.NoError(t, other.Release(context.Background(), constants.StuckRecoveryLock))
	result, err := c.Maintenance.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
}

func TestEnsureAdmin(t *testing.T) {
	cfg := memoryConfig(t, config.WithAdminConfig("ops", "pw", "key"))
	c, err := NewContainer(context.Background(), cfg, logging.Discard(), WithPracticeClient(practice.NewStaticClient()))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.EnsureAdmin(context.Background()))
	op, err := c.OperatorStore.Find(context.Background(), "ops", "pw")
	require.NoError(t, err)
	require.NotNil(t, op)

	counts, err := c.QueueStore.CountGroupedByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts[state.StatusPending])
}
