package link

import "github.com/gamelink/gamelink/store"

// MessageResponse is the caller-facing success payload for role-synchronizing
// operations.
type MessageResponse struct {
	Message string `json:"message"`
}

// OGUpdateRequest is the legacy in-game update body. The player ID arrives in
// the query string; the player token in the body completes the credential pair.
type OGUpdateRequest struct {
	PlayerToken string `json:"playerToken" binding:"required"`
	BetaTester  bool   `json:"beta_tester"`
	store.Progress
}

// UpdateRequest carries the replacement progress snapshot for a linked account.
type UpdateRequest struct {
	store.Progress
}

// CreateRequest links a Discord user to a fresh account. Data is optional: a
// nil payload means "start from default progress".
type CreateRequest struct {
	DiscordID int64           `json:"discord_id" binding:"required,snowflake"`
	Data      *store.Progress `json:"data"`
}

// CreateResult carries exactly one of the two create outcomes: the
// message-with-roles response for a default-progress create, or the created
// record itself when the caller supplied explicit progress.
type CreateResult struct {
	Message *MessageResponse
	Account *store.Account
}
