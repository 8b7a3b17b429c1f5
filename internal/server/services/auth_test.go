package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/cryptox"
	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/auth"
	"github.com/dmitrijs2005/cardflow/internal/server/challenges"
	"github.com/dmitrijs2005/cardflow/internal/server/credentials"
	"github.com/dmitrijs2005/cardflow/internal/server/mailer"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testKey      = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testPassword = "StrongPass1!"
)

type testEnv struct {
	svc    *AuthService
	st     *memStore
	mail   *captureMailer
	mr     *miniredis.Miniredis
	clock  *testClock
	codec  *cryptox.Codec
	issuer *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := cryptox.NewCodec(testKey)
	require.NoError(t, err)

	clock := newTestClock()
	st := newMemStore(clock.Now)
	mail := &captureMailer{}
	issuer := auth.NewIssuer("access-secret-access-secret-0001", "refresh-secret-refresh-secret-01", AccessTokenTTL, RefreshTokenTTL)

	svc := NewAuthService(Dependencies{
		Tx:         fakeTx{st: st},
		Repos:      fakeManager{st: st},
		Codec:      codec,
		Hasher:     credentials.NewBcryptHasher(bcrypt.MinCost),
		Challenges: challenges.NewRedisStore(rdb),
		Mailer:     mail,
		Issuer:     issuer,
		Logger:     logging.Nop(),
		Now:        clock.Now,
	})

	return &testEnv{svc: svc, st: st, mail: mail, mr: mr, clock: clock, codec: codec, issuer: issuer}
}

// register signs up email and returns the user id and raw verification token.
func (e *testEnv) register(t *testing.T, email string) (string, string) {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  testPassword,
		FirstName: "Alice",
		LastName:  "Test",
	})
	require.NoError(t, err)

	m, ok := e.mail.last(mailer.KindVerifyEmail)
	require.True(t, ok, "verification mail expected")
	return res.UserID, m.Data[mailer.DataToken]
}

// verified registers and verifies email, returning the user id.
func (e *testEnv) verified(t *testing.T, email string) string {
	t.Helper()
	id, token := e.register(t, email)
	_, err := e.svc.VerifyEmail(context.Background(), token)
	require.NoError(t, err)
	return id
}

func (e *testEnv) login(t *testing.T, email, password string) *TokenResult {
	t.Helper()
	ctx := context.Background()
	user, err := e.svc.ValidateCredentials(ctx, email, password)
	require.NoError(t, err)
	require.NotNil(t, user, "credentials must validate")
	res, err := e.svc.Login(ctx, user, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	return res
}

func (e *testEnv) enable2FA(t *testing.T, userID string) {
	t.Helper()
	_, err := e.svc.Enable2FA(context.Background(), userID)
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, kind error, code common.Code) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	assert.Equal(t, code, common.CodeOf(err), "error %v", err)
}

func TestValidateCredentials(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.verified(t, "bob@test.com")

	u, err := e.svc.ValidateCredentials(ctx, " BOB@test.com ", testPassword)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)

	u, err = e.svc.ValidateCredentials(ctx, "bob@test.com", "WrongPass1!")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = e.svc.ValidateCredentials(ctx, "nobody@test.com", testPassword)
	require.NoError(t, err)
	assert.Nil(t, u)

	stored, _ := e.st.user(id)
	stored.IsActive = false
	e.st.putUser(stored)
	u, err = e.svc.ValidateCredentials(ctx, "bob@test.com", testPassword)
	require.NoError(t, err)
	assert.Nil(t, u, "inactive users must not validate")

	stored.IsActive = true
	now := e.clock.Now()
	stored.DeletedAt = &now
	e.st.putUser(stored)
	u, err = e.svc.ValidateCredentials(ctx, "bob@test.com", testPassword)
	require.NoError(t, err)
	assert.Nil(t, u, "deleted users must not validate")
}

func TestLogin_RejectsUnverifiedEmail(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "carol@test.com")

	u, err := e.svc.ValidateCredentials(ctx, "carol@test.com", testPassword)
	require.NoError(t, err)
	require.NotNil(t, u)

	_, err = e.svc.Login(ctx, u, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeEmailNotVerified)
	assert.Equal(t, 0, e.st.sessionCount(u.ID))
}

func TestLogin_WithoutTwoFactorIssuesSession(t *testing.T) {
	e := newTestEnv(t)
	id := e.verified(t, "dave@test.com")

	res := e.login(t, "dave@test.com", testPassword)
	assert.False(t, res.Requires2FA)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, 900, res.ExpiresIn)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Empty(t, res.TempToken)

	access, err := e.issuer.ParseAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, access.Subject)
	assert.Equal(t, "dave@test.com", access.Email)
	assert.Equal(t, string(models.RoleIndividual), access.Role)

	refresh, err := e.issuer.ParseRefresh(res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, access.SessionID, refresh.SessionID)

	sess, err := fakeManager{e.st}.Sessions(nil).FindByID(context.Background(), access.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.AccessToken, sess.Token)
	assert.Equal(t, res.RefreshToken, sess.RefreshToken)
	assert.Equal(t, "test-agent", sess.UserAgent)
	assert.Equal(t, "127.0.0.1", sess.IPAddress)
	assert.Equal(t, SessionTTL, sess.ExpiresAt.Sub(sess.CreatedAt))

	u, _ := e.st.user(id)
	require.NotNil(t, u.LastLoginAt)
	assert.True(t, u.LastLoginAt.Equal(e.clock.Now()))
}

func TestLogin_WithTwoFactorIssuesChallenge(t *testing.T) {
	e := newTestEnv(t)
	id := e.verified(t, "erin@test.com")
	e.enable2FA(t, id)

	res := e.login(t, "erin@test.com", testPassword)
	assert.True(t, res.Requires2FA)
	assert.Empty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)
	assert.Equal(t, 0, res.ExpiresIn)
	require.NotEmpty(t, res.TempToken)

	got, err := e.mr.Get(challenges.KeyPrefix + res.TempToken)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, TempTokenTTL, e.mr.TTL(challenges.KeyPrefix+res.TempToken))

	m, ok := e.mail.last(mailer.KindTwoFactorCode)
	require.True(t, ok)
	assert.Equal(t, "erin@test.com", m.To)
	code := m.Data[mailer.DataCode]
	assert.Len(t, code, TwoFactorCodeDigits)

	u, _ := e.st.user(id)
	require.NotNil(t, u.TwoFactorCode)
	assert.NotEqual(t, code, *u.TwoFactorCode, "code must be stored encrypted")
	plain, err := e.codec.Decrypt(*u.TwoFactorCode)
	require.NoError(t, err)
	assert.Equal(t, code, plain)
	assert.True(t, u.TwoFactorExpires.Equal(e.clock.Now().Add(TwoFactorCodeTTL)))

	assert.Equal(t, 0, e.st.sessionCount(id), "no session before the second factor")
}

func startTwoFactor(t *testing.T, e *testEnv, email string) (userID, tempToken, code string) {
	t.Helper()
	userID = e.verified(t, email)
	e.enable2FA(t, userID)
	res := e.login(t, email, testPassword)
	m, ok := e.mail.last(mailer.KindTwoFactorCode)
	require.True(t, ok)
	return userID, res.TempToken, m.Data[mailer.DataCode]
}

func TestVerify2FA_SuccessIsSingleUse(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id, temp, code := startTwoFactor(t, e, "frank@test.com")

	res, err := e.svc.Verify2FA(ctx, temp, code, "ua", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Requires2FA)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, 1, e.st.sessionCount(id))

	u, _ := e.st.user(id)
	assert.Nil(t, u.TwoFactorCode)
	assert.Nil(t, u.TwoFactorExpires)
	assert.False(t, e.mr.Exists(challenges.KeyPrefix+temp))

	_, err = e.svc.Verify2FA(ctx, temp, code, "ua", "10.0.0.1")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidTempToken)
}

func TestVerify2FA_ConcurrentSameCodeIssuesOneSession(t *testing.T) {
	e := newTestEnv(t)
	id, temp, code := startTwoFactor(t, e, "gina@test.com")

	// both verifies load the user before either clears the code
	var arrived sync.WaitGroup
	arrived.Add(2)
	var lookups atomic.Int32
	e.st.afterFindByID = func() {
		if lookups.Add(1) <= 2 {
			arrived.Done()
			arrived.Wait()
		}
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.svc.Verify2FA(context.Background(), temp, code, "ua", "10.0.0.1")
			errs <- err
		}()
	}

	var ok, rejected int
	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			ok++
		} else {
			requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidTempToken)
			rejected++
		}
	}

	assert.Equal(t, 1, ok, "successful verifications")
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, e.st.sessionCount(id))
}

func TestVerify2FA_WrongCode(t *testing.T) {
	e := newTestEnv(t)
	_, temp, code := startTwoFactor(t, e, "gina@test.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err := e.svc.Verify2FA(context.Background(), temp, wrong, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidTwoFactorCode)
	assert.True(t, e.mr.Exists(challenges.KeyPrefix+temp), "a wrong code keeps the challenge")
}

func TestVerify2FA_ExpiredCode(t *testing.T) {
	e := newTestEnv(t)
	_, temp, code := startTwoFactor(t, e, "hank@test.com")

	e.clock.Advance(TwoFactorCodeTTL + time.Second)
	_, err := e.svc.Verify2FA(context.Background(), temp, code, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeTwoFactorCodeExpired)
}

func TestVerify2FA_UnknownOrExpiredTempToken(t *testing.T) {
	e := newTestEnv(t)
	_, temp, code := startTwoFactor(t, e, "ivy@test.com")

	_, err := e.svc.Verify2FA(context.Background(), "unknown", code, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidTempToken)

	e.mr.FastForward(TempTokenTTL + time.Second)
	_, err = e.svc.Verify2FA(context.Background(), temp, code, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidTempToken)
}

func TestVerify2FA_NoCodeIssued(t *testing.T) {
	e := newTestEnv(t)
	id := e.verified(t, "jack@test.com")
	require.NoError(t, e.mr.Set(challenges.KeyPrefix+"manual", id))

	_, err := e.svc.Verify2FA(context.Background(), "manual", "123456", "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeNoTwoFactorCode)
}

func TestRequest2FACode_ReissuesCode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, temp, _ := startTwoFactor(t, e, "kate@test.com")
	require.Equal(t, 1, e.mail.count(mailer.KindTwoFactorCode))

	msg, err := e.svc.Request2FACode(ctx, temp)
	require.NoError(t, err)
	assert.Equal(t, MsgTwoFactorCodeSent, msg)
	assert.Equal(t, 2, e.mail.count(mailer.KindTwoFactorCode))

	m, _ := e.mail.last(mailer.KindTwoFactorCode)
	_, err = e.svc.Verify2FA(ctx, temp, m.Data[mailer.DataCode], "", "")
	require.NoError(t, err)

	_, err = e.svc.Request2FACode(ctx, "nope")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidTempToken)
}

func TestRefreshWithToken_RotatesAndRejectsReplay(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.verified(t, "liam@test.com")
	first := e.login(t, "liam@test.com", testPassword)
	oldClaims, err := e.issuer.ParseRefresh(first.RefreshToken)
	require.NoError(t, err)

	second, err := e.svc.RefreshWithToken(ctx, first.RefreshToken, "ua", "ip")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, 1, e.st.sessionCount(id))

	_, err = fakeManager{e.st}.Sessions(nil).FindByID(ctx, oldClaims.SessionID)
	assert.ErrorIs(t, err, common.ErrorNotFound, "old session must be gone")

	_, err = e.svc.RefreshWithToken(ctx, first.RefreshToken, "ua", "ip")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeSessionExpired)

	_, err = e.svc.RefreshWithToken(ctx, "garbage", "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeSessionExpired)

	_, err = e.svc.RefreshWithToken(ctx, second.RefreshToken, "ua", "ip")
	require.NoError(t, err)
}

func TestRefreshWithToken_ExpiredSession(t *testing.T) {
	e := newTestEnv(t)
	e.verified(t, "mia@test.com")
	res := e.login(t, "mia@test.com", testPassword)

	e.clock.Advance(SessionTTL)
	_, err := e.svc.RefreshWithToken(context.Background(), res.RefreshToken, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeSessionExpired)
}

func TestRefreshTokens_TolerantToMissingSession(t *testing.T) {
	e := newTestEnv(t)
	id := e.verified(t, "noah@test.com")

	res, err := e.svc.RefreshTokens(context.Background(), id, "already-gone", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, 1, e.st.sessionCount(id))
}

func TestRefreshTokens_InactiveUser(t *testing.T) {
	e := newTestEnv(t)
	id := e.verified(t, "olga@test.com")
	u, _ := e.st.user(id)
	u.IsActive = false
	e.st.putUser(u)

	_, err := e.svc.RefreshTokens(context.Background(), id, "s", "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeAccountDisabled)

	_, err = e.svc.RefreshTokens(context.Background(), "missing", "s", "", "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogout_OneAndAll(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.verified(t, "paul@test.com")
	a := e.login(t, "paul@test.com", testPassword)
	b := e.login(t, "paul@test.com", testPassword)
	e.login(t, "paul@test.com", testPassword)
	require.Equal(t, 3, e.st.sessionCount(id))

	pa, err := e.svc.Authenticate(ctx, a.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(ctx, id, pa.SessionID))
	assert.Equal(t, 2, e.st.sessionCount(id))
	require.NoError(t, e.svc.Logout(ctx, id, pa.SessionID), "logout is idempotent")

	_, err = e.svc.Authenticate(ctx, b.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(ctx, id, ""))
	assert.Equal(t, 0, e.st.sessionCount(id))

	_, err = e.svc.Authenticate(ctx, b.AccessToken)
	requireCode(t, err, common.ErrorUnauthorized, common.CodeSessionExpired)
}

func TestAuthenticate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.verified(t, "quinn@test.com")
	res := e.login(t, "quinn@test.com", testPassword)

	p, err := e.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, "quinn@test.com", p.Email)
	assert.Equal(t, models.RoleIndividual, p.Role)
	assert.NotEmpty(t, p.SessionID)

	_, err = e.svc.Authenticate(ctx, "not-a-token")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidToken)

	_, err = e.svc.Authenticate(ctx, res.RefreshToken)
	requireCode(t, err, common.ErrorUnauthorized, common.CodeInvalidToken)

	u, _ := e.st.user(id)
	u.IsActive = false
	e.st.putUser(u)
	_, err = e.svc.Authenticate(ctx, res.AccessToken)
	requireCode(t, err, common.ErrorUnauthorized, common.CodeAccountDisabled)
}

func TestMailerFailureNeverFailsOperation(t *testing.T) {
	e := newTestEnv(t)
	e.mail.err = errors.New("smtp down")

	res, err := e.svc.Register(context.Background(), RegisterInput{Email: "rose@test.com", Password: testPassword, FirstName: "R", LastName: "T"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.UserID)

	msg, err := e.svc.ForgotPassword(context.Background(), "rose@test.com")
	require.NoError(t, err)
	assert.Equal(t, MsgPasswordResetSent, msg)
}

// Register, verify, log in, log out: the old access token must stop
// resolving to a session.
func TestEndToEnd_RegisterVerifyLoginLogout(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	reg, err := e.svc.Register(ctx, RegisterInput{
		Email:     "alice@test.com",
		Password:  "StrongPass1!",
		FirstName: "Alice",
		LastName:  "Test",
	})
	require.NoError(t, err)
	assert.Equal(t, MsgRegistered, reg.Message)

	m, ok := e.mail.last(mailer.KindVerifyEmail)
	require.True(t, ok)
	assert.Equal(t, "alice@test.com", m.To)

	msg, err := e.svc.VerifyEmail(ctx, m.Data[mailer.DataToken])
	require.NoError(t, err)
	assert.Equal(t, MsgEmailVerified, msg)

	user, err := e.svc.ValidateCredentials(ctx, "alice@test.com", "StrongPass1!")
	require.NoError(t, err)
	require.NotNil(t, user)

	tokens, err := e.svc.Login(ctx, user, "Mozilla/5.0", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, tokens.Requires2FA)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	p, err := e.svc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(ctx, p.UserID, p.SessionID))

	_, err = e.svc.Authenticate(ctx, tokens.AccessToken)
	requireCode(t, err, common.ErrorUnauthorized, common.CodeSessionExpired)

	_, err = e.svc.RefreshWithToken(ctx, tokens.RefreshToken, "", "")
	requireCode(t, err, common.ErrorUnauthorized, common.CodeSessionExpired)
}
