package handlers

import (
	"net/http"

	"github.com/geocoder89/eventhub/internal/security"
	"github.com/gin-gonic/gin"
)

// TokenIssuer is the narrow slice of auth.Manager the admin login endpoint
// needs: issue one access token for the single operator identity.
type TokenIssuer interface {
	GenerateAccessToken(userID, email, role string) (string, error)
}

// AdminAuthHandler gates the admin control surface (disable/enable a job,
// force a run) behind a single operator credential — there is no user
// domain in this service, so the teacher's full signup/login/refresh-token
// flow is collapsed down to one login endpoint.
type AdminAuthHandler struct {
	username     string
	passwordHash string
	jwt          TokenIssuer
}

func NewAdminAuthHandler(username, passwordHash string, jwt TokenIssuer) *AdminAuthHandler {
	return &AdminAuthHandler{username: username, passwordHash: passwordHash, jwt: jwt}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/login
func (h *AdminAuthHandler) Login(ctx *gin.Context) {
	var req loginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if req.Username != h.username {
		RespondUnAuthorized(ctx, "unauthorized", "Invalid credentials")
		return
	}

	if err := security.CheckPassword(h.passwordHash, req.Password); err != nil {
		RespondUnAuthorized(ctx, "unauthorized", "Invalid credentials")
		return
	}

	token, err := h.jwt.GenerateAccessToken(h.username, "", "admin")
	if err != nil {
		RespondInternal(ctx, "Could not issue token")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"accessToken": token})
}
