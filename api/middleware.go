package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/token"
	"github.com/gin-gonic/gin"
)

const (
	authorizationHeaderKey  = "Authorization"
	authorizationTypeBearer = "Bearer"
	authorizationQueryKey   = "token"
	authorizationPayloadKey = "authPayload"
)

// authMiddleware authenticates the user. The access token normally travels
// in the Authorization header; the browser EventSource API cannot set
// headers, so a `?token=` query parameter is accepted as a fallback.
func authMiddleware(tokenMaker token.Maker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		accessToken := ""

		authorizationHeader := ctx.GetHeader(authorizationHeaderKey)
		switch {
		case authorizationHeader != "":
			fields := strings.Fields(authorizationHeader)
			if len(fields) != 2 {
				err := errors.New("invalid authorization header format")
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
				return
			}

			if fields[0] != authorizationTypeBearer {
				err := errors.New("unsupported authorization header type")
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
				return
			}

			accessToken = fields[1]
		case ctx.Query(authorizationQueryKey) != "":
			accessToken = ctx.Query(authorizationQueryKey)
		default:
			err := errors.New("authorization header is not provided")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		payload, err := tokenMaker.VerifyToken(accessToken)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		ctx.Set(authorizationPayloadKey, payload)
		ctx.Next()
	}
}

func requiredAdminRole(dbStore db.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authPayload := ctx.MustGet(authorizationPayloadKey).(*token.Payload)

		user, err := dbStore.GetUserByID(ctx, authPayload.Subject)
		if err != nil {
			if errors.Is(err, db.ErrRecordNotFound) {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("user not found")))
				return
			}

			ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(err))
			return
		}

		if user.Role != db.UserRoleAdmin {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(ErrInsufficientPermission))
			return
		}

		ctx.Next()
	}
}
