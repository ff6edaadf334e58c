package link

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/gamelink/gamelink/apperr"
	"github.com/gamelink/gamelink/audit"
	"github.com/gamelink/gamelink/identity"
	"github.com/gamelink/gamelink/store"
)

type fakeStore struct {
	byToken    map[string]*store.Account
	acquireErr error
	updateErr  error
	createErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byToken: map[string]*store.Account{}}
}

func (f *fakeStore) Acquire(ctx context.Context) error { return f.acquireErr }

func (f *fakeStore) AccountByToken(ctx context.Context, token string) (*store.Account, error) {
	if acct, ok := f.byToken[token]; ok {
		copy := *acct
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) AccountByDiscordID(ctx context.Context, discordID int64) (*store.Account, error) {
	for _, acct := range f.byToken {
		if acct.DiscordID == discordID {
			copy := *acct
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) CreateAccount(ctx context.Context, token string, discordID int64, betaTester bool, progress store.Progress) (*store.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byToken[token]; ok {
		return nil, errors.New("UNIQUE constraint failed: accounts.user_token")
	}
	for _, acct := range f.byToken {
		if acct.DiscordID == discordID {
			return nil, errors.New("UNIQUE constraint failed: accounts.discord_id")
		}
	}
	acct := &store.Account{
		ID:           int64(len(f.byToken) + 1),
		UserToken:    token,
		DiscordID:    discordID,
		BetaTester:   betaTester,
		HighestLevel: progress.HighestLevel,
		TotalDeaths:  progress.TotalDeaths,
		GameComplete: progress.GameComplete,
		SecretsFound: progress.SecretsFound,
	}
	f.byToken[token] = acct
	copy := *acct
	return &copy, nil
}

func (f *fakeStore) UpdateAccount(ctx context.Context, token string, betaTester bool, progress store.Progress) (*store.Account, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	acct, ok := f.byToken[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	acct.BetaTester = betaTester
	acct.HighestLevel = progress.HighestLevel
	acct.TotalDeaths = progress.TotalDeaths
	acct.GameComplete = progress.GameComplete
	acct.SecretsFound = progress.SecretsFound
	copy := *acct
	return &copy, nil
}

type fakeAuthority struct {
	gained []string
	err    error
	calls  int
}

func (f *fakeAuthority) Reconcile(ctx context.Context, acct *store.Account) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.gained, nil
}

type sinkEntry struct {
	message string
	level   audit.Level
}

type fakeSink struct {
	entries []sinkEntry
}

func (f *fakeSink) Log(ctx context.Context, message string, level audit.Level) {
	f.entries = append(f.entries, sinkEntry{message: message, level: level})
}

func (f *fakeSink) at(level audit.Level) []sinkEntry {
	var out []sinkEntry
	for _, e := range f.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func testService(st *fakeStore, auth *fakeAuthority, sink *fakeSink) *Service {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Service{
		Store:     st,
		Authority: auth,
		Audit:     sink,
		Logger:    logger,
		Config:    Config{TokenSecret: "k"},
	}
}

func TestOGUpdateEndToEnd(t *testing.T) {
	st := newFakeStore()
	token := identity.DeriveLegacy("p1", "t1", "k")
	st.byToken[token] = &store.Account{UserToken: token, DiscordID: 1001, BetaTester: true}

	auth := &fakeAuthority{gained: []string{"EarlyBird"}}
	sink := &fakeSink{}
	s := testService(st, auth, sink)

	res, err := s.OGUpdate(context.Background(), "p1", OGUpdateRequest{PlayerToken: "t1", BetaTester: true})

	assert.NoError(t, err)
	assert.Equal(t, "The request was successful, you've gained the following roles: EarlyBird", res.Message)
	assert.Empty(t, sink.at(audit.Failure))
	info := sink.at(audit.Informational)
	if assert.Len(t, info, 1) {
		assert.Contains(t, info[0].message, "1001")
		assert.Contains(t, info[0].message, "EarlyBird")
	}
}

func TestOGUpdateUnlinkedAccount(t *testing.T) {
	st := newFakeStore()
	sink := &fakeSink{}
	s := testService(st, &fakeAuthority{}, sink)

	_, err := s.OGUpdate(context.Background(), "p1", OGUpdateRequest{PlayerToken: "t1"})

	assert.Error(t, err)
	assert.Equal(t, 500, apperr.Status(err))
	assert.Equal(t, "Failed at retrieving existing data, you may not have your account linked yet", apperr.Message(err))
	// the failure entry carries the derived token
	failures := sink.at(audit.Failure)
	if assert.Len(t, failures, 1) {
		assert.Contains(t, failures[0].message, identity.DeriveLegacy("p1", "t1", "k"))
	}
	// and no record was created as a side effect
	assert.Empty(t, st.byToken)
}

func TestUpdateNoNewRoles(t *testing.T) {
	st := newFakeStore()
	token := identity.Derive("a@b.c", "tok", "k")
	st.byToken[token] = &store.Account{UserToken: token, DiscordID: 2002}

	sink := &fakeSink{}
	s := testService(st, &fakeAuthority{gained: []string{}}, sink)

	res, err := s.Update(context.Background(), "a@b.c", "tok", "Beta", UpdateRequest{Progress: store.Progress{HighestLevel: 7}})

	assert.NoError(t, err)
	assert.Equal(t, "The request was successful, but you've already gained all of the possible roles with your current progress", res.Message)
	assert.True(t, st.byToken[token].BetaTester)
	assert.Equal(t, 7, st.byToken[token].HighestLevel)
	info := sink.at(audit.Informational)
	if assert.Len(t, info, 1) {
		assert.Contains(t, info[0].message, "2002")
		assert.Contains(t, info[0].message, "gained no roles")
	}
}

func TestUpdateChannelFlagIsCaseSensitive(t *testing.T) {
	st := newFakeStore()
	token := identity.Derive("a@b.c", "tok", "k")
	st.byToken[token] = &store.Account{UserToken: token, DiscordID: 2002, BetaTester: true}

	s := testService(st, &fakeAuthority{}, &fakeSink{})
	_, err := s.Update(context.Background(), "a@b.c", "tok", "beta", UpdateRequest{})

	assert.NoError(t, err)
	assert.False(t, st.byToken[token].BetaTester)
}

func TestUpdateRoleHandlingFailure(t *testing.T) {
	st := newFakeStore()
	token := identity.Derive("a@b.c", "tok", "k")
	st.byToken[token] = &store.Account{UserToken: token, DiscordID: 2002}

	sink := &fakeSink{}
	s := testService(st, &fakeAuthority{err: errors.New("discord 502")}, sink)

	_, err := s.Update(context.Background(), "a@b.c", "tok", "", UpdateRequest{})

	assert.Error(t, err)
	assert.Equal(t, "The role-handling process has failed", apperr.Message(err))
	failures := sink.at(audit.Failure)
	if assert.Len(t, failures, 1) {
		assert.Contains(t, failures[0].message, token)
		assert.Contains(t, failures[0].message, "discord 502")
	}
}

func TestCreateWithDefaultsReconcilesRoles(t *testing.T) {
	st := newFakeStore()
	auth := &fakeAuthority{gained: []string{"Veteran", "Beta"}}
	sink := &fakeSink{}
	s := testService(st, auth, sink)

	res, err := s.Create(context.Background(), "a@b.c", "tok", "", CreateRequest{DiscordID: 3003})

	assert.NoError(t, err)
	assert.Nil(t, res.Account)
	assert.Equal(t, "The request was successful, you've gained the following roles: Veteran, Beta", res.Message.Message)
	assert.Equal(t, 1, auth.calls)
	assert.Len(t, st.byToken, 1)
}

func TestCreateWithExplicitDataSkipsSync(t *testing.T) {
	st := newFakeStore()
	auth := &fakeAuthority{gained: []string{"Veteran"}}
	sink := &fakeSink{}
	s := testService(st, auth, sink)

	data := &store.Progress{HighestLevel: 12, GameComplete: true}
	res, err := s.Create(context.Background(), "a@b.c", "tok", "Beta", CreateRequest{DiscordID: 3003, Data: data})

	assert.NoError(t, err)
	assert.Nil(t, res.Message)
	if assert.NotNil(t, res.Account) {
		assert.Equal(t, int64(3003), res.Account.DiscordID)
		assert.Equal(t, 12, res.Account.HighestLevel)
		assert.True(t, res.Account.BetaTester)
	}
	assert.Equal(t, 0, auth.calls)
	success := sink.at(audit.Successful)
	if assert.Len(t, success, 1) {
		assert.Equal(t, "created userdata for user of id '3003'", success[0].message)
	}
}

func TestCreateTwiceSameToken(t *testing.T) {
	st := newFakeStore()
	s := testService(st, &fakeAuthority{}, &fakeSink{})
	ctx := context.Background()

	_, err := s.Create(ctx, "a@b.c", "tok", "", CreateRequest{DiscordID: 3003})
	assert.NoError(t, err)

	_, err = s.Create(ctx, "a@b.c", "tok", "", CreateRequest{DiscordID: 3003})
	assert.Error(t, err)
	assert.Equal(t, 500, apperr.Status(err))
	assert.Equal(t, "You're already linked, please use the update endpoint", apperr.Message(err))
	assert.Len(t, st.byToken, 1)
}

func TestCreateTokenBoundToOtherDiscordID(t *testing.T) {
	st := newFakeStore()
	s := testService(st, &fakeAuthority{}, &fakeSink{})
	ctx := context.Background()

	_, err := s.Create(ctx, "a@b.c", "tok", "", CreateRequest{DiscordID: 3003})
	assert.NoError(t, err)

	_, err = s.Create(ctx, "a@b.c", "tok", "", CreateRequest{DiscordID: 4004})
	assert.Error(t, err)
	assert.Equal(t, 400, apperr.Status(err))
	assert.Equal(t, "This account is already bound to another discord id", apperr.Message(err))
}

func TestCreateDiscordIDAlreadyTaken(t *testing.T) {
	st := newFakeStore()
	s := testService(st, &fakeAuthority{}, &fakeSink{})
	ctx := context.Background()

	_, err := s.Create(ctx, "first@b.c", "tok", "", CreateRequest{DiscordID: 3003})
	assert.NoError(t, err)

	_, err = s.Create(ctx, "second@b.c", "tok", "", CreateRequest{DiscordID: 3003})
	assert.Error(t, err)
	assert.Equal(t, 400, apperr.Status(err))
	assert.Equal(t, "This discord id is already bound to another account", apperr.Message(err))
	// the losing attempt must not have created a record
	assert.Len(t, st.byToken, 1)
}

func TestCreateStorageFailure(t *testing.T) {
	st := newFakeStore()
	st.createErr = errors.New("pq: connection reset")
	sink := &fakeSink{}
	s := testService(st, &fakeAuthority{}, sink)

	_, err := s.Create(context.Background(), "a@b.c", "tok", "", CreateRequest{DiscordID: 3003})

	assert.Error(t, err)
	assert.Equal(t, "The request has unfortunately failed at creating your account", apperr.Message(err))
}

func TestDeleteIsNonDestructive(t *testing.T) {
	st := newFakeStore()
	token := identity.Derive("a@b.c", "tok", "k")
	st.byToken[token] = &store.Account{UserToken: token, DiscordID: 5005}

	s := testService(st, &fakeAuthority{}, &fakeSink{})
	err := s.Delete(context.Background(), "a@b.c", "tok")

	assert.NoError(t, err)
	// the record is still retrievable afterwards
	_, ok := st.byToken[token]
	assert.True(t, ok)
}

func TestDeleteUnknownToken(t *testing.T) {
	sink := &fakeSink{}
	s := testService(newFakeStore(), &fakeAuthority{}, sink)

	err := s.Delete(context.Background(), "a@b.c", "tok")

	assert.Error(t, err)
	assert.Equal(t, 500, apperr.Status(err))
	assert.Equal(t, "Failed at deleting userdata, this token may not be valid", apperr.Message(err))
}

func TestAcquireFailureLogsWithoutToken(t *testing.T) {
	st := newFakeStore()
	st.acquireErr = errors.New("nil db")
	sink := &fakeSink{}
	s := testService(st, &fakeAuthority{}, sink)

	_, err := s.Update(context.Background(), "a@b.c", "tok", "", UpdateRequest{})

	assert.Error(t, err)
	assert.Equal(t, "request failed at creating database client, please try again", apperr.Message(err))
	failures := sink.at(audit.Failure)
	if assert.Len(t, failures, 1) {
		assert.NotContains(t, failures[0].message, "token:")
		assert.Contains(t, failures[0].message, "nil db")
	}
}

func TestRoleMessageOrderPreserved(t *testing.T) {
	st := newFakeStore()
	token := identity.Derive("a@b.c", "tok", "k")
	st.byToken[token] = &store.Account{UserToken: token, DiscordID: 2002}

	gained := []string{"Veteran", "Beta"}
	s := testService(st, &fakeAuthority{gained: gained}, &fakeSink{})

	res, err := s.Update(context.Background(), "a@b.c", "tok", "", UpdateRequest{})

	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Message, fmt.Sprintf("gained the following roles: %s", "Veteran, Beta")), res.Message)
}
