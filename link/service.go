// Package link implements the account-linking and role-synchronization
// workflow: derive an identity token from credentials, mutate the account
// record, reconcile Discord roles, and record the outcome to the audit sink.
package link

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gamelink/gamelink/apperr"
	"github.com/gamelink/gamelink/audit"
	"github.com/gamelink/gamelink/identity"
	"github.com/gamelink/gamelink/store"
)

// Accounts is the storage surface the workflow needs.
type Accounts interface {
	Acquire(ctx context.Context) error
	AccountByToken(ctx context.Context, token string) (*store.Account, error)
	AccountByDiscordID(ctx context.Context, discordID int64) (*store.Account, error)
	CreateAccount(ctx context.Context, token string, discordID int64, betaTester bool, progress store.Progress) (*store.Account, error)
	UpdateAccount(ctx context.Context, token string, betaTester bool, progress store.Progress) (*store.Account, error)
}

// Authority reconciles an account's privileges and reports the newly granted
// role names. An empty result is a valid "nothing new" outcome.
type Authority interface {
	Reconcile(ctx context.Context, acct *store.Account) ([]string, error)
}

// Service is the linking workflow. It is stateless between invocations; the
// collaborators and config are read-only after construction.
type Service struct {
	Store     Accounts
	Authority Authority
	Audit     audit.Sink
	Logger    *logrus.Logger
	Config    Config
}

// betaChannel is the distribution-channel header value that flags a beta
// client. The comparison is case-sensitive.
const betaChannel = "Beta"

// reject classifies a collaborator failure and records it to the audit sink
// before the workflow short-circuits. token may be empty for failures that
// happen before a token exists; those are logged as internal-only entries.
func (s *Service) reject(ctx context.Context, err error, base *apperr.Error, message, token string) error {
	cerr := apperr.Wrap(err, base, message)
	if s.Logger != nil {
		s.Logger.Printf("%v", err)
	}
	content := apperr.Detail(cerr)
	if token != "" {
		content = fmt.Sprintf("Error with a user\n\ntoken: %s\n\n%s", token, content)
	}
	s.Audit.Log(ctx, content, audit.Failure)
	return cerr
}

// roleOutcome formats the caller-facing message for a synchronization result
// and emits the parallel informational audit entry keyed by discord id.
func (s *Service) roleOutcome(ctx context.Context, acct *store.Account, gained []string) *MessageResponse {
	var message, logged string
	if len(gained) == 0 {
		message = "The request was successful, but you've already gained all of the possible roles with your current progress"
		logged = fmt.Sprintf("user with ID %d had a successful request but gained no roles", acct.DiscordID)
	} else {
		joined := strings.Join(gained, ", ")
		message = fmt.Sprintf("The request was successful, you've gained the following roles: %s", joined)
		logged = fmt.Sprintf("user with ID %d gained the following roles: %s", acct.DiscordID, joined)
	}
	s.Audit.Log(ctx, logged, audit.Informational)
	return &MessageResponse{Message: message}
}

// OGUpdate is the legacy update flow: the token derives from the in-game
// player ID and player token rather than header credentials. The account must
// already be linked.
func (s *Service) OGUpdate(ctx context.Context, playerID string, req OGUpdateRequest) (*MessageResponse, error) {
	if err := s.Store.Acquire(ctx); err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "request failed at creating database client, please try again", "")
	}

	token := identity.DeriveLegacy(playerID, req.PlayerToken, s.Config.TokenSecret)

	if _, err := s.Store.AccountByToken(ctx, token); err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "Failed at retrieving existing data, you may not have your account linked yet", token)
	}

	updated, err := s.Store.UpdateAccount(ctx, token, req.BetaTester, req.Progress)
	if err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "The request has unfortunately failed the update", token)
	}

	gained, err := s.Authority.Reconcile(ctx, updated)
	if err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "The role-handling process has failed", token)
	}
	return s.roleOutcome(ctx, updated, gained), nil
}

// Update is the keyed-credential update flow. The channel header value "Beta"
// flips the distribution flag; anything else clears it.
func (s *Service) Update(ctx context.Context, email, authToken, channel string, req UpdateRequest) (*MessageResponse, error) {
	if err := s.Store.Acquire(ctx); err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "request failed at creating database client, please try again", "")
	}

	token := identity.Derive(email, authToken, s.Config.TokenSecret)

	if _, err := s.Store.AccountByToken(ctx, token); err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "Failed at retrieving existing data, you may not have your account linked yet", token)
	}

	updated, err := s.Store.UpdateAccount(ctx, token, channel == betaChannel, req.Progress)
	if err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "The request has unfortunately failed the update", token)
	}

	gained, err := s.Authority.Reconcile(ctx, updated)
	if err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "The role-handling process has failed", token)
	}
	return s.roleOutcome(ctx, updated, gained), nil
}

// Create links a Discord user to a new account. Both lookup keys must be free:
// the derived token and the submitted discord id. A default-progress create
// reconciles roles right away; an explicit progress payload is caller-managed
// and returns the created record without synchronization.
func (s *Service) Create(ctx context.Context, email, authToken, channel string, req CreateRequest) (*CreateResult, error) {
	isDefault := req.Data == nil
	progress := store.Progress{}
	if req.Data != nil {
		progress = *req.Data
	}

	if err := s.Store.Acquire(ctx); err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "request failed at creating database client, please try again", "")
	}

	token := identity.Derive(email, authToken, s.Config.TokenSecret)

	existing, err := s.Store.AccountByToken(ctx, token)
	if err == nil {
		if req.DiscordID != existing.DiscordID {
			return nil, s.reject(ctx, errors.New("token already linked to a different discord id"),
				apperr.ErrBadRequest, "This account is already bound to another discord id", token)
		}
		return nil, s.reject(ctx, errors.New("token already linked"),
			apperr.ErrInternal, "You're already linked, please use the update endpoint", token)
	}
	// the probe is expected to miss; the miss still reaches the audit trail
	s.reject(ctx, err, apperr.ErrNotFound, "", token)

	if _, err := s.Store.AccountByDiscordID(ctx, req.DiscordID); err == nil {
		return nil, s.reject(ctx, errors.New("discord id already linked to a different account"),
			apperr.ErrBadRequest, "This discord id is already bound to another account", token)
	} else {
		s.reject(ctx, err, apperr.ErrNotFound, "", token)
	}

	created, err := s.Store.CreateAccount(ctx, token, req.DiscordID, channel == betaChannel, progress)
	if err != nil {
		return nil, s.reject(ctx, err, apperr.ErrInternal, "The request has unfortunately failed at creating your account", token)
	}

	if isDefault {
		gained, err := s.Authority.Reconcile(ctx, created)
		if err != nil {
			return nil, s.reject(ctx, err, apperr.ErrInternal, "The role-handling process has failed", token)
		}
		return &CreateResult{Message: s.roleOutcome(ctx, created, gained)}, nil
	}

	s.Audit.Log(ctx, fmt.Sprintf("created userdata for user of id '%d'", created.DiscordID), audit.Successful)
	return &CreateResult{Account: created}, nil
}

// Delete only verifies the record exists; the persistence layer has no delete
// statement yet, so the operation is read-verify-only by design.
func (s *Service) Delete(ctx context.Context, email, authToken string) error {
	if err := s.Store.Acquire(ctx); err != nil {
		return s.reject(ctx, err, apperr.ErrInternal, "request failed at creating database client, please try again", "")
	}

	token := identity.Derive(email, authToken, s.Config.TokenSecret)

	if _, err := s.Store.AccountByToken(ctx, token); err != nil {
		return s.reject(ctx, err, apperr.ErrInternal, "Failed at deleting userdata, this token may not be valid", token)
	}
	return nil
}
