package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*types.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]*types.User)}
}

var _ store.UserStore = (*UserStore)(nil)

func (s *UserStore) FindByExternalID(_ context.Context, externalID string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *UserStore) Create(_ context.Context, user types.User) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) ||
			(user.ExternalID != nil && u.ExternalID != nil && *u.ExternalID == *user.ExternalID) {
			return nil, fmt.Errorf("user %s: %w", user.Email, store.ErrAlreadyExists)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	c := user
	s.users[user.ID] = &c
	return &user, nil
}

func (s *UserStore) LinkExternalID(_ context.Context, userID uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	u.ExternalID = &externalID
	return nil
}

type ContractStore struct {
	mu        sync.Mutex
	contracts map[uuid.UUID]*types.Contract
}

func NewContractStore() *ContractStore {
	return &ContractStore{contracts: make(map[uuid.UUID]*types.Contract)}
}

var _ store.ContractStore = (*ContractStore)(nil)

func (s *ContractStore) FindByProjectAndUser(_ context.Context, projectID string, userID uuid.UUID) (*types.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.ProjectID == projectID && c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *ContractStore) Create(_ context.Context, contract types.Contract) (*types.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.ProjectID == contract.ProjectID && c.UserID == contract.UserID {
			return nil, fmt.Errorf("contract %s/%s: %w", contract.ProjectID, contract.UserID, store.ErrAlreadyExists)
		}
	}
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = time.Now().UTC()
	}
	cp := contract
	s.contracts[contract.ID] = &cp
	return &contract, nil
}

func (s *ContractStore) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("contract %s: %w", id, store.ErrNotFound)
	}
	c.Status = types.ContractSent
	c.SentAt = &at
	return nil
}

// All returns every contract. Tests use it to assert idempotence.
func (s *ContractStore) All() []types.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, *c)
	}
	return out
}

type NotificationStore struct {
	mu            sync.Mutex
	notifications []types.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

var _ store.NotificationStore = (*NotificationStore)(nil)

func (s *NotificationStore) Create(_ context.Context, n types.Notification) (*types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupKey != nil {
		for _, existing := range s.notifications {
			if existing.UserID == n.UserID && existing.DedupKey != nil && *existing.DedupKey == *n.DedupKey {
				return nil, fmt.Errorf("notification %s: %w", *n.DedupKey, store.ErrAlreadyExists)
			}
		}
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, n)
	return &n, nil
}

func (s *NotificationStore) FindByDedupKey(_ context.Context, userID, dedupKey string) (*types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.UserID == userID && n.DedupKey != nil && *n.DedupKey == dedupKey {
			cp := n
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *NotificationStore) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].DeliveredAt = &at
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
}

func (s *NotificationStore) ListByUser(_ context.Context, userID string, limit int) ([]types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID != userID {
			continue
		}
		out = append(out, s.notifications[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every notification in creation order.
func (s *NotificationStore) All() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Notification(nil), s.notifications...)
}

type InvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]types.Invoice
}

func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]types.Invoice)}
}

var _ store.InvoiceStore = (*InvoiceStore)(nil)

func (s *InvoiceStore) FindByProjectAndPeriod(_ context.Context, projectID, period string) (*types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[projectID+"/"+period]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (s *InvoiceStore) Create(_ context.Context, invoice types.Invoice) (*types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invoice.ProjectID + "/" + invoice.Period
	if _, ok := s.invoices[key]; ok {
		return nil, fmt.Errorf("invoice %s: %w", key, store.ErrAlreadyExists)
	}
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	s.invoices[key] = invoice
	return &invoice, nil
}

type AutomationRunStore struct {
	mu   sync.Mutex
	runs []types.AutomationRun
}

func NewAutomationRunStore() *AutomationRunStore {
	return &AutomationRunStore{}
}

var _ store.AutomationRunStore = (*AutomationRunStore)(nil)

func (s *AutomationRunStore) Record(_ context.Context, run types.AutomationRun) (*types.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Metadata = maps.Clone(run.Metadata)
	s.runs = append(s.runs, run)
	return &run, nil
}

func (s *AutomationRunStore) CountSince(_ context.Context, since time.Time) (types.RunCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts types.RunCounts
	for _, r := range s.runs {
		if r.CreatedAt.Before(since) {
			continue
		}
		counts.Total++
		if r.Status == types.RunFailed {
			counts.Failed++
		}
	}
	return counts, nil
}

// All returns every run ordered by creation time.
func (s *AutomationRunStore) All() []types.AutomationRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]types.AutomationRun(nil), s.runs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type OperatorStore struct {
	mu        sync.Mutex
	nextID    int64
	operators map[string]types.Operator
}

func NewOperatorStore() *OperatorStore {
	return &OperatorStore{operators: make(map[string]types.Operator)}
}

var _ store.OperatorStore = (*OperatorStore)(nil)

func (s *OperatorStore) Create(_ context.Context, username, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.operators[username] = types.Operator{ID: s.nextID, Username: username, Password: string(hashed)}
	return s.nextID, nil
}

func (s *OperatorStore) Find(_ context.Context, username, password string) (*types.Operator, error) {
	s.mu.Lock()
	op, ok := s.operators[username]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(password)); err != nil {
		return nil, errors.New("operator not found")
	}
	op.Password = ""
	return &op, nil
}

func (s *OperatorStore) FindByUsername(_ context.Context, username string) (*types.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[username]
	if !ok {
		return nil, nil
	}
	op.Password = ""
	return &op, nil
}

func (s *OperatorStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operators[username]; !ok {
		return errors.New("no operator found to delete")
	}
	delete(s.operators, username)
	return nil
}
