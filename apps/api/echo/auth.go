package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

const (
	tokenContextKey  = "userToken"
	tenantContextKey = "tenant"
	tokenAudience    = "feeledger"
)

// Claims represents the authorization claims transmitted via a JWT.
// Organization and role are informative: every request re-resolves them from the user store.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt   int64       `json:"oriat,omitempty"`
	Email          string      `json:"email,omitempty"`
	OrganizationID string      `json:"organization_id,omitempty"`
	Role           tenant.Role `json:"role,omitempty"`
}

// Auth issues and verifies the API's JWTs.
type Auth struct {
	issuer            string
	signingKey        []byte
	expiration        time.Duration
	refreshExpiration time.Duration
}

func NewAuth(conf *core.Config) *Auth {
	return &Auth{
		issuer:            conf.AppName,
		signingKey:        []byte(conf.SecretKey),
		expiration:        conf.Server.JWTExpirationDelta,
		refreshExpiration: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (a *Auth) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    a.signingKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

func (a *Auth) UserClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt:   oriat,
		Email:          usr.Email,
		OrganizationID: usr.OrganizationID,
		Role:           usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *Auth) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// UserToken is a shortcut for GenerateToken(UserClaims(usr)).
func (a *Auth) UserToken(usr user.User) (string, error) {
	return a.GenerateToken(a.UserClaims(usr))
}

func (a *Auth) refreshToken(ctx echo.Context, svc *user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", errUnauthorized
		}
		return "", errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshExpiration)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	return a.GenerateToken(a.UserClaims(usr, claims.OrigIssuedAt))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// tenantMiddleware resolves the caller's tenant context once per request.
func tenantMiddleware(resolver *tenant.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			tc, err := resolver.Resolve(ctx.Request().Context(), &tenant.Principal{ID: claims.Subject})
			if err != nil {
				return err
			}
			ctx.Set(tenantContextKey, tc)
			return next(ctx)
		}
	}
}

func getTenantContext(ctx echo.Context) tenant.Context {
	tc, _ := ctx.Get(tenantContextKey).(tenant.Context)
	return tc
}
