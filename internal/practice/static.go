package practice

import (
	"context"
	"net/http"
	"sync"

	"github.com/RezaEskandarii/workflowq/types"
)

// StaticClient serves fixed data from memory. It backs local development when
// no practice API is configured, and tests.
type StaticClient struct {
	mu        sync.RWMutex
	employees map[string][]types.Employee
	hours     map[string][]types.HoursEntry

	// Err, when set, is returned by every call.
	Err error
}

func NewStaticClient() *StaticClient {
	return &StaticClient{
		employees: make(map[string][]types.Employee),
		hours:     make(map[string][]types.HoursEntry),
	}
}

func (c *StaticClient) AddEmployee(projectID string, e types.Employee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.employees[projectID] = append(c.employees[projectID], e)
}

func (c *StaticClient) SetHours(projectID, period string, entries []types.HoursEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hours[projectID+"/"+period] = entries
}

func (c *StaticClient) GetProjectEmployees(_ context.Context, projectID string) ([]types.Employee, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Employee(nil), c.employees[projectID]...), nil
}

func (c *StaticClient) GetProjectHours(_ context.Context, projectID, period string) ([]types.HoursEntry, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.HoursEntry(nil), c.hours[projectID+"/"+period]...), nil
}

func (c *StaticClient) GetEmployee(_ context.Context, employeeID string) (*types.Employee, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, employees := range c.employees {
		for _, e := range employees {
			if e.ExternalID == employeeID {
				e := e
				return &e, nil
			}
		}
	}
	return nil, &APIError{StatusCode: http.StatusNotFound, Body: "employee not found"}
}
