package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/patrickmn/go-cache"

	"github.com/neatchat/neatchat/common/config"
	"github.com/neatchat/neatchat/common/ctxkey"
	"github.com/neatchat/neatchat/common/network"
	"github.com/neatchat/neatchat/ratelimit"
)

// tokenCache remembers verified access tokens so a chatty client does not pay
// signature verification on every request.
var tokenCache = cache.New(5*time.Minute, 10*time.Minute)

// AccessClaims is the verified content of an access token. Tier and the admin
// flag come exclusively from here, never from request input.
type AccessClaims struct {
	UserId  int    `json:"user_id"`
	Tier    string `json:"tier"`
	IsAdmin bool   `json:"is_admin"`
	jwt.StandardClaims
}

// IssueAccessToken signs an access token for the given account. Used by the
// session bootstrap and by tests.
func IssueAccessToken(userId int, tier string, isAdmin bool, ttl time.Duration) (string, error) {
	claims := AccessClaims{
		UserId:  userId,
		Tier:    tier,
		IsAdmin: isAdmin,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.SessionSecret))
	return signed, errors.Wrap(err, "sign access token")
}

func parseAccessToken(raw string) (*AccessClaims, error) {
	if cached, ok := tokenCache.Get(raw); ok {
		return cached.(*AccessClaims), nil
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(config.SessionSecret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse access token")
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}

	tokenCache.SetDefault(raw, claims)
	return claims, nil
}

// Auth resolves the caller's identity. A valid bearer token yields the
// account's tier and admin flag; no token at all is a legitimate anonymous
// caller keyed by client IP. A token that is present but invalid is rejected,
// it never degrades to anonymous.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.Request.Header.Get("Authorization"), "Bearer ")
		clientIP := network.NormalizeClientIP(c.ClientIP())

		if raw == "" {
			identity := ratelimit.Identity{Tier: ratelimit.TierAnonymous, ClientIP: clientIP}
			setIdentity(c, identity)
			c.Next()
			return
		}

		claims, err := parseAccessToken(raw)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		identity := ratelimit.Identity{
			UserId:   claims.UserId,
			Tier:     ratelimit.ParseTier(claims.Tier),
			IsAdmin:  claims.IsAdmin,
			ClientIP: clientIP,
		}
		setIdentity(c, identity)
		c.Next()
	}
}

// AdminOnly gates a route to accounts carrying the admin flag. It runs after
// Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxkey.IsAdmin) {
			AbortWithError(c, http.StatusForbidden, errors.New("admin access required"))
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, id ratelimit.Identity) {
	c.Set(ctxkey.UserId, id.UserId)
	c.Set(ctxkey.Tier, string(id.Tier))
	c.Set(ctxkey.IsAdmin, id.IsAdmin)
	c.Set(ctxkey.RateLimitIdentity, id)
}

// GetIdentity returns the identity Auth resolved for this request. The
// anonymous zero identity is returned when Auth did not run.
func GetIdentity(c *gin.Context) ratelimit.Identity {
	if v, ok := c.Get(ctxkey.RateLimitIdentity); ok {
		if id, ok := v.(ratelimit.Identity); ok {
			return id
		}
	}
	return ratelimit.Identity{
		Tier:     ratelimit.TierAnonymous,
		ClientIP: network.NormalizeClientIP(c.ClientIP()),
	}
}
