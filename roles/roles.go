// Package roles reconciles an account's unlocked privileges against the
// Discord guild that owns them. Reconciliation grants whatever earned roles
// the member does not hold yet and reports only that newly granted subset.
package roles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/gamelink/gamelink/store"
)

const DefaultBaseURL = "https://discord.com/api/v10"

// Rule maps a progress condition to a guild role.
type Rule struct {
	Name   string
	RoleID string
	Earned func(acct *store.Account) bool
}

// Client talks to the Discord REST API with a bot token.
type Client struct {
	BotToken string
	GuildID  string
	BaseURL  string
	HTTP     *http.Client
	Logger   *logrus.Logger
	Rules    []Rule
}

func NewClient(botToken, guildID string, rules []Rule, logger *logrus.Logger) *Client {
	return &Client{
		BotToken: botToken,
		GuildID:  guildID,
		BaseURL:  DefaultBaseURL,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Logger:   logger,
		Rules:    rules,
	}
}

// DefaultRules builds the rule set from the configured role-name to role-ID
// map. Rules evaluate in a fixed order so the reported names are stable.
func DefaultRules(roleIDs map[string]string) []Rule {
	rules := []Rule{
		{Name: "Beta", Earned: func(a *store.Account) bool { return a.BetaTester }},
		{Name: "Veteran", Earned: func(a *store.Account) bool { return a.HighestLevel >= 25 }},
		{Name: "Finisher", Earned: func(a *store.Account) bool { return a.GameComplete }},
		{Name: "Determined", Earned: func(a *store.Account) bool { return a.TotalDeaths >= 1000 }},
		{Name: "Secret Hunter", Earned: func(a *store.Account) bool { return a.SecretsFound >= 10 }},
	}
	bound := rules[:0]
	for _, rule := range rules {
		if id, ok := roleIDs[rule.Name]; ok && id != "" {
			rule.RoleID = id
			bound = append(bound, rule)
		}
	}
	return bound
}

type member struct {
	Roles []string `json:"roles"`
}

// Reconcile grants every earned-but-missing role to the account's guild member
// and returns the names of the roles granted by this call, in rule order. An
// empty result means the member already held everything their progress earns.
func (c *Client) Reconcile(ctx context.Context, acct *store.Account) ([]string, error) {
	current, err := c.memberRoles(ctx, acct.DiscordID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(current))
	for _, id := range current {
		held[id] = true
	}

	gained := []string{}
	for _, rule := range c.Rules {
		if !rule.Earned(acct) || held[rule.RoleID] {
			continue
		}
		if err := c.grantRole(ctx, acct.DiscordID, rule.RoleID); err != nil {
			return nil, err
		}
		gained = append(gained, rule.Name)
	}
	return gained, nil
}

func (c *Client) memberRoles(ctx context.Context, discordID int64) ([]string, error) {
	url := fmt.Sprintf("%s/guilds/%s/members/%d", c.BaseURL, c.GuildID, discordID)
	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.BotToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		recordRoleMetrics("member", http.MethodGet, 0, err, time.Since(started))
		c.Logger.WithFields(logrus.Fields{
			"code": err.Error(),
		}).Error("Error in establishing connection to the guild host")
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	recordRoleMetrics("member", http.MethodGet, resp.StatusCode, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.Logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("guild member lookup failed")
		return nil, fmt.Errorf("guild member lookup returned %d", resp.StatusCode)
	}
	var m member
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return m.Roles, nil
}

func (c *Client) grantRole(ctx context.Context, discordID int64, roleID string) error {
	url := fmt.Sprintf("%s/guilds/%s/members/%d/roles/%s", c.BaseURL, c.GuildID, discordID, roleID)
	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.BotToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		recordRoleMetrics("grant", http.MethodPut, 0, err, time.Since(started))
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	recordRoleMetrics("grant", http.MethodPut, resp.StatusCode, nil, time.Since(started))
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("role grant returned %d", resp.StatusCode)
	}
	return nil
}
