package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/apikeyd/internal/application/dto"
	"github.com/turtacn/apikeyd/internal/application/service"
	"github.com/turtacn/apikeyd/internal/domain/rbac"
	"github.com/turtacn/apikeyd/internal/interfaces/http/middleware"
	"github.com/turtacn/apikeyd/pkg/constants"
	"github.com/turtacn/apikeyd/pkg/errors"
)

// KeyHandler handles HTTP requests for key verification.
type KeyHandler struct {
	keyService service.KeyAppService
	region     string
}

// NewKeyHandler creates a new KeyHandler. region is reported when the edge
// does not send an X-Region header.
func NewKeyHandler(keyService service.KeyAppService, region string) *KeyHandler {
	return &KeyHandler{
		keyService: keyService,
		region:     region,
	}
}

// VerifyKey handles POST /v1/keys.verifyKey.
//
// The secret comes from the body, or from an "Authorization: Bearer" header
// when the body omits it. Every verification outcome, valid or not, is a 200;
// only request and server errors map to other statuses.
func (h *KeyHandler) VerifyKey(c *gin.Context) {
	var body dto.VerifyKeyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		SendError(c, errors.ErrInvalidRequest("request body is not valid JSON").WithCause(err))
		return
	}

	req := &dto.VerifyKeyRequest{
		Key:        body.Key,
		APIID:      body.APIID,
		Ratelimits: body.Ratelimits,
		ClientIP:   strings.TrimSpace(c.GetHeader(constants.HeaderTrueClientIP)),
		Region:     c.GetHeader(constants.HeaderRegion),
		RequestID:  middleware.GetRequestID(c),
	}
	if req.Key == "" {
		req.Key = bearerToken(c.GetHeader(constants.HeaderAuthorization))
	}
	if req.Key == "" {
		SendError(c, errors.ErrUnauthorized("no key was provided"))
		return
	}
	if req.Region == "" {
		req.Region = h.region
	}
	if body.Remaining != nil {
		req.RemainingCost = body.Remaining.Cost
	}
	if len(body.Permissions) > 0 && string(body.Permissions) != "null" {
		q, err := rbac.ParseJSON(body.Permissions)
		if err != nil {
			SendError(c, errors.ErrInvalidPermissionQuery(err))
			return
		}
		req.Permissions = &q
	}

	result, err := h.keyService.VerifyKey(c.Request.Context(), req)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewVerifyKeyResponse(result))
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
