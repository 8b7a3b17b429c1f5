package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/server/mailer"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/users"
)

// --- clock ---

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- in-memory store shared by the fake repositories ---

type memStore struct {
	mu sync.Mutex

	now      func() time.Time
	seq      int
	users    map[string]models.User
	sessions map[string]models.Session
	order    []string // session ids in creation order
	subs     map[string]models.Subscription
	plans    map[models.PlanType]models.Plan

	// createConflict makes the next user insert fail like a unique
	// violation that raced past the pre-check.
	createConflict bool

	// afterFindByID runs after every user lookup by id, outside the lock.
	afterFindByID func()
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:      now,
		users:    map[string]models.User{},
		sessions: map[string]models.Session{},
		subs:     map[string]models.Subscription{},
		plans: map[models.PlanType]models.Plan{
			models.PlanBasic: {ID: "plan-basic", Name: "Básico", Type: models.PlanBasic, MaxCards: intptr(1)},
		},
	}
}

func intptr(v int) *int { return &v }

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

type snapshot struct {
	users    map[string]models.User
	sessions map[string]models.Session
	order    []string
	subs     map[string]models.Subscription
}

func (m *memStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		users:    make(map[string]models.User, len(m.users)),
		sessions: make(map[string]models.Session, len(m.sessions)),
		order:    append([]string(nil), m.order...),
		subs:     make(map[string]models.Subscription, len(m.subs)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	for k, v := range m.subs {
		s.subs[k] = v
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users, m.sessions, m.order, m.subs = s.users, s.sessions, s.order, s.subs
}

func (m *memStore) user(id string) (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

func (m *memStore) userByEmail(email string) (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *memStore) sessionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memStore) putUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// --- transactor: all-or-nothing over the in-memory store ---

type fakeTx struct {
	st *memStore
}

func (f fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	snap := f.st.snapshot()
	if err := fn(ctx, nil); err != nil {
		f.st.restore(snap)
		return err
	}
	return nil
}

// --- repository manager ---

type fakeManager struct {
	st *memStore
}

func (f fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (f fakeManager) Users(dbx.DBTX) users.Repository { return &fakeUsers{f.st} }

func (f fakeManager) Sessions(dbx.DBTX) sessions.Repository { return &fakeSessions{f.st} }

func (f fakeManager) Subscriptions(dbx.DBTX) subscriptions.Repository {
	return &fakeSubscriptions{f.st}
}

var _ repomanager.RepositoryManager = fakeManager{}

// --- users ---

type fakeUsers struct {
	st *memStore
}

func (r *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if r.st.createConflict {
		r.st.createConflict = false
		return nil, common.ErrorConflict
	}
	for _, existing := range r.st.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, common.ErrorConflict
		}
	}
	c := *u
	c.ID = r.st.nextID("user")
	c.CreatedAt = r.st.now()
	c.UpdatedAt = c.CreatedAt
	r.st.users[c.ID] = c
	out := c
	return &out, nil
}

func (r *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := r.st.user(id)
	if hook := r.st.afterFindByID; hook != nil {
		hook()
	}
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := r.st.userByEmail(email)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *fakeUsers) ListPendingVerification(context.Context) ([]*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.User
	for _, u := range r.st.users {
		if !u.IsEmailVerified && u.DeletedAt == nil && u.EmailVerifyToken != nil {
			c := u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeUsers) ListActivePasswordResets(_ context.Context, now time.Time) ([]*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.User
	for _, u := range r.st.users {
		if u.DeletedAt == nil && u.IsActive && u.PasswordResetToken != nil && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			c := u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeUsers) update(id string, fn func(u *models.User)) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	u, ok := r.st.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&u)
	u.UpdatedAt = r.st.now()
	r.st.users[id] = u
	return nil
}

func (r *fakeUsers) SetTwoFactorCode(_ context.Context, id string, code *string, expires *time.Time) error {
	return r.update(id, func(u *models.User) { u.TwoFactorCode, u.TwoFactorExpires = code, expires })
}

func (r *fakeUsers) ConsumeTwoFactorCode(_ context.Context, id string, code string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	u, ok := r.st.users[id]
	if !ok || u.TwoFactorCode == nil || *u.TwoFactorCode != code {
		return common.ErrorNotFound
	}
	u.TwoFactorCode, u.TwoFactorExpires = nil, nil
	u.UpdatedAt = r.st.now()
	r.st.users[id] = u
	return nil
}

func (r *fakeUsers) SetTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	return r.update(id, func(u *models.User) {
		u.TwoFactorEnabled = enabled
		u.TwoFactorCode, u.TwoFactorExpires = nil, nil
	})
}

func (r *fakeUsers) SetEmailVerifyToken(_ context.Context, id string, token *string, expires *time.Time) error {
	return r.update(id, func(u *models.User) { u.EmailVerifyToken, u.EmailVerifyExpires = token, expires })
}

func (r *fakeUsers) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) {
		u.IsEmailVerified = true
		u.EmailVerifyToken, u.EmailVerifyExpires = nil, nil
	})
}

func (r *fakeUsers) SetPasswordResetToken(_ context.Context, id string, token *string, expires *time.Time) error {
	return r.update(id, func(u *models.User) { u.PasswordResetToken, u.PasswordResetExpires = token, expires })
}

func (r *fakeUsers) UpdatePassword(_ context.Context, id string, hash string) error {
	return r.update(id, func(u *models.User) {
		u.PasswordHash = hash
		u.PasswordResetToken, u.PasswordResetExpires = nil, nil
	})
}

func (r *fakeUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *models.User) { u.LastLoginAt = &at })
}

func (r *fakeUsers) Anonymize(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *models.User) {
		u.Email = "deleted_" + id + "@deleted.local"
		u.FirstName, u.LastName = "Deleted", "User"
		u.Phone = nil
		u.PasswordHash = ""
		u.IsActive = false
		u.DeletedAt = &at
		u.TwoFactorEnabled = false
		u.TwoFactorCode, u.TwoFactorExpires = nil, nil
		u.EmailVerifyToken, u.EmailVerifyExpires = nil, nil
		u.PasswordResetToken, u.PasswordResetExpires = nil, nil
	})
}

// --- sessions ---

type fakeSessions struct {
	st *memStore
}

func (r *fakeSessions) Create(_ context.Context, userID, token, refreshToken, userAgent, ip string, now time.Time, ttl time.Duration) (*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s := models.Session{
		ID:           r.st.nextID("sess"),
		UserID:       userID,
		Token:        token,
		RefreshToken: refreshToken,
		UserAgent:    userAgent,
		IPAddress:    ip,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	r.st.sessions[s.ID] = s
	r.st.order = append(r.st.order, s.ID)
	out := s
	return &out, nil
}

func (r *fakeSessions) FindByID(_ context.Context, id string) (*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *fakeSessions) UpdateTokens(_ context.Context, id, token, refreshToken string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.Token, s.RefreshToken = token, refreshToken
	r.st.sessions[id] = s
	return nil
}

func (r *fakeSessions) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.sessions, id)
	return nil
}

func (r *fakeSessions) DeleteByUser(_ context.Context, userID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for id, s := range r.st.sessions {
		if s.UserID == userID {
			delete(r.st.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessions) ListByUser(_ context.Context, userID string, now time.Time) ([]*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*models.Session
	for i := len(r.st.order) - 1; i >= 0; i-- {
		s, ok := r.st.sessions[r.st.order[i]]
		if ok && s.UserID == userID && s.ExpiresAt.After(now) {
			c := s
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- subscriptions ---

type fakeSubscriptions struct {
	st *memStore
}

func (r *fakeSubscriptions) FindPlanByType(_ context.Context, t models.PlanType) (*models.Plan, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.plans[t]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *fakeSubscriptions) Create(_ context.Context, sub *models.Subscription) (*models.Subscription, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c := *sub
	c.ID = r.st.nextID("sub")
	c.CreatedAt = r.st.now()
	r.st.subs[c.UserID] = c
	out := c
	return &out, nil
}

func (r *fakeSubscriptions) FindByUserID(_ context.Context, userID string) (*models.Subscription, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.subs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for _, p := range r.st.plans {
		if p.ID == s.PlanID {
			pc := p
			s.Plan = &pc
		}
	}
	return &s, nil
}

func (r *fakeSubscriptions) CancelForUser(_ context.Context, userID string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.subs[userID]
	if !ok {
		return nil
	}
	s.Status = models.SubscriptionCancelled
	s.CancelledAt = &at
	r.st.subs[userID] = s
	return nil
}

// --- mailer ---

type sentMail struct {
	Kind mailer.Kind
	To   string
	Data map[string]string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(_ context.Context, kind mailer.Kind, to string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Data: data})
	return m.err
}

func (m *captureMailer) count(kind mailer.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// last returns the most recent message of kind.
func (m *captureMailer) last(kind mailer.Kind) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}
