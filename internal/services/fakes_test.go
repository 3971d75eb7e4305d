package services

import (
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/meincms/apiserver/internal/notify"
	"github.com/meincms/apiserver/internal/store"
	"github.com/meincms/apiserver/types"
)

var errInjected = errors.New("injected failure")

type memoryState struct {
	users       map[int]types.User
	resets      map[int]types.PasswordResetToken
	nextUserID  int
	nextResetID int
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		users:       maps.Clone(s.users),
		resets:      maps.Clone(s.resets),
		nextUserID:  s.nextUserID,
		nextResetID: s.nextResetID,
	}
}

// fakeRepos is an in-memory Repositories. WithTx snapshots state and
// restores it when fn fails.
type fakeRepos struct {
	state *memoryState

	failPasswordUpdate error
	failMarkUsed       error
	hideExisting       bool

	existsCalls int
	createCalls int
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{state: &memoryState{
		users:  map[int]types.User{},
		resets: map[int]types.PasswordResetToken{},
	}}
}

func (f *fakeRepos) Users() UserRepository             { return fakeUsers{f} }
func (f *fakeRepos) ResetTokens() ResetTokenRepository { return fakeResets{f} }

func (f *fakeRepos) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	snapshot := f.state.clone()
	if err := fn(ctx, f); err != nil {
		f.state = snapshot
		return err
	}
	return nil
}

// seedUser inserts a user directly, bypassing service logic.
func (f *fakeRepos) seedUser(user types.User) types.User {
	f.state.nextUserID++
	user.ID = f.state.nextUserID
	f.state.users[user.ID] = user
	return user
}

func (f *fakeRepos) user(id int) types.User {
	return f.state.users[id]
}

type fakeUsers struct{ f *fakeRepos }

func (u fakeUsers) find(match func(types.User) bool) (types.User, error) {
	for _, user := range u.f.state.users {
		if match(user) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := u.f.state.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	return u.find(func(user types.User) bool { return user.Email == email })
}

func (u fakeUsers) GetByVerificationToken(_ context.Context, tokenHash string) (types.User, error) {
	return u.find(func(user types.User) bool {
		return user.VerificationTokenHash != nil && *user.VerificationTokenHash == tokenHash
	})
}

func (u fakeUsers) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, error) {
	u.f.existsCalls++
	if u.f.hideExisting {
		return false, nil
	}
	_, err := u.find(func(user types.User) bool { return user.Email == email || user.Username == username })
	return err == nil, nil
}

func (u fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	u.f.createCalls++
	if _, err := u.find(func(existing types.User) bool {
		return existing.Email == user.Email || existing.Username == user.Username
	}); err == nil {
		return types.User{}, &pq.Error{Code: "23505"}
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	return u.f.seedUser(user), nil
}

func (u fakeUsers) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := u.f.state.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	if _, err := u.find(func(existing types.User) bool {
		return existing.ID != user.ID && (existing.Email == user.Email || existing.Username == user.Username)
	}); err == nil {
		return types.User{}, &pq.Error{Code: "23505"}
	}
	user.UpdatedAt = time.Now()
	u.f.state.users[user.ID] = user
	return user, nil
}

func (u fakeUsers) Delete(_ context.Context, id int) error {
	if _, ok := u.f.state.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(u.f.state.users, id)
	return nil
}

func (u fakeUsers) mutate(id int, fn func(*types.User)) error {
	user, ok := u.f.state.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&user)
	u.f.state.users[id] = user
	return nil
}

func (u fakeUsers) UpdatePasswordHash(_ context.Context, id int, passwordHash string) error {
	if u.f.failPasswordUpdate != nil {
		return u.f.failPasswordUpdate
	}
	return u.mutate(id, func(user *types.User) { user.PasswordHash = passwordHash })
}

func (u fakeUsers) TouchLastLogin(_ context.Context, id int, at time.Time) error {
	return u.mutate(id, func(user *types.User) { user.LastLoginAt = &at })
}

func (u fakeUsers) SetVerificationToken(_ context.Context, id int, tokenHash string, expiresAt time.Time) error {
	return u.mutate(id, func(user *types.User) {
		user.VerificationTokenHash = &tokenHash
		user.VerificationExpiresAt = &expiresAt
	})
}

func (u fakeUsers) MarkVerified(_ context.Context, id int, tokenHash string) error {
	user, ok := u.f.state.users[id]
	if !ok || user.VerificationTokenHash == nil || *user.VerificationTokenHash != tokenHash {
		return store.ErrNotFound
	}
	user.IsVerified = true
	user.VerificationTokenHash = nil
	user.VerificationExpiresAt = nil
	u.f.state.users[id] = user
	return nil
}

func (u fakeUsers) CountByRole(context.Context) ([]types.RoleCount, error) {
	byRole := map[types.Role]int{}
	for _, user := range u.f.state.users {
		byRole[user.Role]++
	}
	var counts []types.RoleCount
	for _, role := range types.AllRoles() {
		if byRole[role] > 0 {
			counts = append(counts, types.RoleCount{Role: role, Count: byRole[role]})
		}
	}
	return counts, nil
}

func (u fakeUsers) List(_ context.Context, limit int) ([]types.User, error) {
	users := slices.Collect(maps.Values(u.f.state.users))
	slices.SortFunc(users, func(a, b types.User) int { return cmp.Compare(b.ID, a.ID) })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

type fakeResets struct{ f *fakeRepos }

func (r fakeResets) Create(_ context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error) {
	r.f.state.nextResetID++
	token.ID = r.f.state.nextResetID
	token.CreatedAt = time.Now()
	r.f.state.resets[token.ID] = token
	return token, nil
}

func (r fakeResets) GetByTokenHash(_ context.Context, tokenHash string) (types.PasswordResetToken, error) {
	for _, token := range r.f.state.resets {
		if token.TokenHash == tokenHash {
			return token, nil
		}
	}
	return types.PasswordResetToken{}, store.ErrNotFound
}

func (r fakeResets) MarkUsed(_ context.Context, id int) error {
	if r.f.failMarkUsed != nil {
		return r.f.failMarkUsed
	}
	token, ok := r.f.state.resets[id]
	if !ok || token.Used {
		return store.ErrNotFound
	}
	token.Used = true
	r.f.state.resets[id] = token
	return nil
}

type sentNotification struct {
	kind        string
	to          string
	token       string
	displayName string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) record(kind, to, token, displayName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, to: to, token: token, displayName: displayName})
	return n.err
}

func (n *fakeNotifier) SendVerificationEmail(_ context.Context, to, token, displayName string) error {
	return n.record(notify.KindVerification, to, token, displayName)
}

func (n *fakeNotifier) SendPasswordResetEmail(_ context.Context, to, token, displayName string) error {
	return n.record(notify.KindPasswordReset, to, token, displayName)
}

func (n *fakeNotifier) SendWelcomeEmail(_ context.Context, to, displayName string) error {
	return n.record(notify.KindWelcome, to, "", displayName)
}

func (n *fakeNotifier) last(kind string) (sentNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sentNotification{}, false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
