package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// TokenHeader is the legacy header clients may use instead of
// "Authorization: Bearer <token>".
const TokenHeader = "x-auth-token"

const issuer = "stratadrive"

// ErrInvalidToken is returned by Authenticate for any token that is missing,
// malformed, signed with the wrong key or expired.
var ErrInvalidToken = errors.New("invalid or expired token")

// Token error classification for logging.
type tokenErrorType int

const (
	tokenErrUnknown   tokenErrorType = iota
	tokenErrExpired                  // normal
	tokenErrSignature                // signature invalid - potential attack
	tokenErrMalformed                // garbage or truncated
)

// Claims holds JWT token claims.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

/*─────────────────────────────────────────────────────────────────────────────*
| TokenManager - injectable token management                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// TokenManager issues and validates bearer tokens and provides the
// authentication middleware for the API.
type TokenManager struct {
	secret      []byte
	ttl         time.Duration
	logger      *zap.Logger
	userFetcher UserFetcher
}

// NewTokenManager creates a TokenManager.
//
// Parameters:
//   - secret: HMAC signing key (must be ≥32 chars in production)
//   - ttl: lifetime of issued tokens (e.g., 24*time.Hour)
//   - strict: if true, a weak secret fails startup instead of logging a warning
//   - logger: zap logger for authentication failures
func NewTokenManager(secret string, ttl time.Duration, strict bool, logger *zap.Logger) (*TokenManager, error) {
	if secret == "" {
		return nil, &TokenConfigError{Message: "jwt secret is empty; provide ≥32 random chars"}
	}
	if ttl <= 0 {
		return nil, &TokenConfigError{Message: "jwt ttl must be positive"}
	}

	isWeak := len(secret) < 32 || isDefaultKey(secret)
	if strict && isWeak {
		return nil, &TokenConfigError{
			Message: "jwt secret is too weak for production; provide ≥32 random chars (not the default dev key)",
		}
	} else if isWeak {
		logger.Warn("jwt secret is weak; 32+ random chars required in production",
			zap.Int("length", len(secret)),
			zap.Bool("is_default", isDefaultKey(secret)))
	}

	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// TokenConfigError is returned when token configuration is invalid.
type TokenConfigError struct {
	Message string
}

func (e *TokenConfigError) Error() string {
	return e.Message
}

// SetUserFetcher sets the UserFetcher used by RequireUser to load the
// account behind a token. This must be called after database initialization.
func (tm *TokenManager) SetUserFetcher(uf UserFetcher) {
	tm.userFetcher = uf
}

// TTL returns the lifetime of issued tokens.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a token for the given user.
func (tm *TokenManager) Issue(userID primitive.ObjectID, email string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		UserID: userID.Hex(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Authenticate validates a token and returns the user id it was issued for.
func (tm *TokenManager) Authenticate(tokenStr string) (primitive.ObjectID, error) {
	claims, err := tm.parse(tokenStr)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidToken
	}
	oid, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidToken
	}
	return oid, nil
}

func (tm *TokenManager) parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| UserFetcher interface                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// UserFetcher loads the account a token was issued for.
// Implementations should return nil if the user no longer exists.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID primitive.ObjectID) *User
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// User represents the authenticated caller in the request context.
// Email is needed by the sharing checks, so it is loaded fresh on each
// request rather than trusted from the token.
type User struct {
	ID    primitive.ObjectID
	Email string
	Name  string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag from the request context.
func CurrentUser(r *http.Request) (*User, bool) {
	u, ok := r.Context().Value(currentUserKey).(*User)
	return u, ok
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// RequireUser returns middleware that rejects requests without a valid token
// with 401 and otherwise injects the caller into the request context.
func (tm *TokenManager) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := ExtractToken(r)
		if tokenStr == "" {
			jsonutil.Unauthorized(w, "no token, authorization denied")
			return
		}

		claims, err := tm.parse(tokenStr)
		if err != nil {
			errType, category := classifyTokenError(err)
			switch errType {
			case tokenErrExpired:
				tm.logger.Debug("token expired",
					zap.String("path", r.URL.Path))
			case tokenErrSignature:
				tm.logger.Warn("token signature invalid (possible tampering)",
					zap.String("category", category),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("user_agent", r.UserAgent()))
			default:
				tm.logger.Info("token rejected",
					zap.String("category", category),
					zap.String("path", r.URL.Path))
			}
			jsonutil.Unauthorized(w, "token is not valid")
			return
		}

		oid, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			jsonutil.Unauthorized(w, "token is not valid")
			return
		}

		u := &User{ID: oid, Email: claims.Email}
		if tm.userFetcher != nil {
			u = tm.userFetcher.FetchUser(r.Context(), oid)
			if u == nil {
				tm.logger.Info("token rejected: user not found",
					zap.String("user_id", claims.UserID),
					zap.String("path", r.URL.Path))
				jsonutil.Unauthorized(w, "token is not valid")
				return
			}
		}

		next.ServeHTTP(w, withUser(r, u))
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func withUser(r *http.Request, u *User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a User into the request context for testing.
func WithTestUser(r *http.Request, u *User) *http.Request {
	return withUser(r, u)
}

// ExtractToken returns the bearer token from the Authorization header, or
// from the x-auth-token header when no Authorization header is present.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get(TokenHeader))
}

// isDefaultKey checks if the secret appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classifyTokenError categorizes a parse error for appropriate logging.
func classifyTokenError(err error) (tokenErrorType, string) {
	switch {
	case err == nil:
		return tokenErrUnknown, "none"
	case errors.Is(err, jwt.ErrTokenExpired):
		return tokenErrExpired, "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return tokenErrSignature, "signature_invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return tokenErrMalformed, "malformed"
	default:
		return tokenErrUnknown, "other"
	}
}
