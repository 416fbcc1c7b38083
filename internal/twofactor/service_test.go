package twofactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/authgate/server/internal/model"
	"github.com/authgate/server/internal/repo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenRepo is an in-memory TwoFactorRepo that mirrors the SQL
// semantics: conditional increment, consume-once, one token per user.
type fakeTokenRepo struct {
	mu            sync.Mutex
	tokens        map[uuid.UUID]model.TwoFactorToken
	confirmations map[uuid.UUID]uuid.UUID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		tokens:        make(map[uuid.UUID]model.TwoFactorToken),
		confirmations: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeTokenRepo) ReplaceForUser(_ context.Context, userID, sessionID uuid.UUID, codeHash []byte, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sid, tok := range f.tokens {
		if tok.UserID == userID {
			delete(f.tokens, sid)
		}
	}
	f.tokens[sessionID] = model.TwoFactorToken{
		SessionID: sessionID,
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (f *fakeTokenRepo) GetBySessionID(_ context.Context, sessionID uuid.UUID) (model.TwoFactorToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[sessionID]
	if !ok {
		return model.TwoFactorToken{}, repo.ErrNotFound
	}
	return tok, nil
}

func (f *fakeTokenRepo) Delete(_ context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, sessionID)
	return nil
}

func (f *fakeTokenRepo) IncrementAttemptBelow(_ context.Context, sessionID uuid.UUID, ceiling int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[sessionID]
	if !ok || tok.AttemptCount >= ceiling {
		return 0, false, nil
	}
	tok.AttemptCount++
	f.tokens[sessionID] = tok
	return tok.AttemptCount, true, nil
}

func (f *fakeTokenRepo) ConsumeAndConfirm(_ context.Context, sessionID, userID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[sessionID]; !ok {
		return uuid.Nil, repo.ErrNotFound
	}
	delete(f.tokens, sessionID)
	id := uuid.New()
	f.confirmations[userID] = id
	return id, nil
}

// fakeUserRepo is an in-memory UserRepo.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newFakeUserRepo(users ...model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) Create(_ context.Context, email string, passwordHash []byte, role string) (model.User, error) {
	u := model.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, Role: role}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

// capturingMailer records the last dispatched code.
type capturingMailer struct {
	mu        sync.Mutex
	email     string
	code      string
	sessionID uuid.UUID
	sent      int
}

func (m *capturingMailer) SendCode(_ context.Context, email, code string, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email = email
	m.code = code
	m.sessionID = sessionID
	m.sent++
	return nil
}

func (m *capturingMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code
}

const testTTL = 300 * time.Second

func newTestService(maxAttempts int) (*Service, *fakeTokenRepo, *fakeUserRepo, *capturingMailer, model.User) {
	user := model.User{ID: uuid.New(), Email: "user@example.com", Role: "user", TwoFactorEnabled: true}
	tokens := newFakeTokenRepo()
	users := newFakeUserRepo(user)
	mailer := &capturingMailer{}
	svc := NewService(tokens, users, mailer, testTTL, maxAttempts)
	return svc, tokens, users, mailer, user
}

func TestIssueStoresTokenAndMailsCode(t *testing.T) {
	svc, tokens, _, mailer, user := newTestService(3)
	ctx := context.Background()

	sid, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, sid)

	assert.Equal(t, 1, mailer.sent)
	assert.Equal(t, user.Email, mailer.email)
	assert.Len(t, mailer.lastCode(), 6)

	tok, err := tokens.GetBySessionID(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, user.ID, tok.UserID)
	assert.Equal(t, 0, tok.AttemptCount)
	// only the hash is stored, never the code
	assert.NotContains(t, string(tok.CodeHash), mailer.lastCode())
}

func TestIssueUnknownUser(t *testing.T) {
	svc, _, _, _, _ := newTestService(3)

	_, err := svc.Issue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestResendInvalidatesPriorToken(t *testing.T) {
	svc, _, _, mailer, user := newTestService(3)
	ctx := context.Background()

	sid1, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	code1 := mailer.lastCode()

	sid2, err := svc.Resend(ctx, sid1)
	require.NoError(t, err)
	require.NotEqual(t, sid1, sid2)

	// the first code is dead after the resend
	_, err = svc.Verify(ctx, sid1, code1)
	assert.ErrorIs(t, err, ErrSessionMissing)

	// the fresh one works
	v, err := svc.Verify(ctx, sid2, mailer.lastCode())
	require.NoError(t, err)
	assert.Equal(t, user.ID, v.UserID)
}

func TestResendUnknownSession(t *testing.T) {
	svc, _, _, _, _ := newTestService(3)

	_, err := svc.Resend(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestVerifyHappyPathConsumesOnce(t *testing.T) {
	svc, tokens, _, mailer, user := newTestService(3)
	ctx := context.Background()

	sid, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	code := mailer.lastCode()

	v, err := svc.Verify(ctx, sid, code)
	require.NoError(t, err)
	assert.Equal(t, user.ID, v.UserID)
	assert.Equal(t, user.Email, v.Email)
	assert.NotEqual(t, uuid.Nil, v.ConfirmationID)
	assert.Len(t, tokens.confirmations, 1)

	// token is single use: the same session id no longer resolves
	_, err = svc.Verify(ctx, sid, code)
	assert.ErrorIs(t, err, ErrSessionMissing)
	assert.Len(t, tokens.confirmations, 1)
}

func TestVerifyWrongCodeIncrementsAndRetains(t *testing.T) {
	svc, tokens, _, mailer, user := newTestService(3)
	ctx := context.Background()

	sid, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, sid, "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)
	_, err = svc.Verify(ctx, sid, "999999")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	tok, err := tokens.GetBySessionID(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 2, tok.AttemptCount)

	// two wrong tries never lock out the correct code below the ceiling
	v, err := svc.Verify(ctx, sid, mailer.lastCode())
	require.NoError(t, err)
	assert.Equal(t, user.ID, v.UserID)
}

func TestVerifyCeilingBeatsCorrectCode(t *testing.T) {
	svc, _, _, mailer, user := newTestService(3)
	ctx := context.Background()

	sid, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Verify(ctx, sid, "000000")
		assert.ErrorIs(t, err, ErrCodeInvalid)
	}

	// the ceiling check runs before the code comparison, so the correct
	// code cannot sneak through once attempts are exhausted
	_, err = svc.Verify(ctx, sid, mailer.lastCode())
	assert.ErrorIs(t, err, ErrMaxAttempts)

	// the token was deleted as a side effect
	_, err = svc.Verify(ctx, sid, mailer.lastCode())
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestVerifyExpiry(t *testing.T) {
	svc, _, _, mailer, user := newTestService(3)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	sid, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	// a check at the exact expiry instant is accepted
	svc.now = func() time.Time { return base.Add(testTTL) }
	_, err = svc.Verify(ctx, sid, "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	// one second past expiry fails and deletes the token
	svc.now = func() time.Time { return base.Add(testTTL + time.Second) }
	_, err = svc.Verify(ctx, sid, mailer.lastCode())
	assert.ErrorIs(t, err, ErrCodeExpired)

	_, err = svc.Verify(ctx, sid, mailer.lastCode())
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestVerifyUnknownSession(t *testing.T) {
	svc, _, _, _, _ := newTestService(3)

	_, err := svc.Verify(context.Background(), uuid.New(), "123456")
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestVerifyVanishedUserDeletesToken(t *testing.T) {
	svc, tokens, users, mailer, user := newTestService(3)
	ctx := context.Background()

	sid, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	users.remove(user.ID)

	_, err = svc.Verify(ctx, sid, mailer.lastCode())
	assert.ErrorIs(t, err, ErrSessionMissing)

	_, err = tokens.GetBySessionID(ctx, sid)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}

func TestHashCodeBoundToSession(t *testing.T) {
	sid1, sid2 := uuid.New(), uuid.New()
	assert.Equal(t, hashCode(sid1, "123456"), hashCode(sid1, "123456"))
	assert.NotEqual(t, hashCode(sid1, "123456"), hashCode(sid2, "123456"))
	assert.NotEqual(t, hashCode(sid1, "123456"), hashCode(sid1, "654321"))
}
