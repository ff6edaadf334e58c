package link

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/gamelink/gamelink/apperr"
)

// discordEpochFloor is below every real snowflake; anything smaller is a
// sequence number or a typo, not a Discord ID.
const discordEpochFloor = int64(1) << 22

var registerOnce sync.Once

// RegisterValidations installs the custom binding rules used by the request
// payloads. Safe to call more than once.
func RegisterValidations() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
				return fl.Field().Int() >= discordEpochFloor
			})
		}
	})
}

// credentials splits the Authorization header into the email/token pair. The
// expected form is "<email>:<token>".
func credentials(c *gin.Context) (string, string, bool) {
	header := c.GetHeader("Authorization")
	email, token, ok := strings.Cut(header, ":")
	if !ok || email == "" || token == "" {
		return "", "", false
	}
	return email, token, true
}

func abortClassified(c *gin.Context, err error) {
	c.JSON(apperr.Status(err), apperr.Payload(err))
}

func abortBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": message})
}

// OGUpdateHandler serves the legacy in-game update endpoint. The player ID
// rides in the query string as playerId.
func (s *Service) OGUpdateHandler(c *gin.Context) {
	playerID := c.Query("playerId")
	if playerID == "" {
		abortBadRequest(c, "playerId query parameter is required")
		return
	}
	var req OGUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	res, err := s.OGUpdate(c.Request.Context(), playerID, req)
	if err != nil {
		abortClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) UpdateHandler(c *gin.Context) {
	email, token, ok := credentials(c)
	if !ok {
		abortBadRequest(c, "missing or malformed Authorization header")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	channel := c.GetHeader("Distribution-Channel")
	res, err := s.Update(c.Request.Context(), email, token, channel, req)
	if err != nil {
		abortClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) CreateHandler(c *gin.Context) {
	email, token, ok := credentials(c)
	if !ok {
		abortBadRequest(c, "missing or malformed Authorization header")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	channel := c.GetHeader("Distribution-Channel")
	res, err := s.Create(c.Request.Context(), email, token, channel, req)
	if err != nil {
		abortClassified(c, err)
		return
	}
	if res.Account != nil {
		c.JSON(http.StatusOK, res.Account)
		return
	}
	c.JSON(http.StatusOK, res.Message)
}

func (s *Service) DeleteHandler(c *gin.Context) {
	email, token, ok := credentials(c)
	if !ok {
		abortBadRequest(c, "missing or malformed Authorization header")
		return
	}
	if err := s.Delete(c.Request.Context(), email, token); err != nil {
		abortClassified(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
