package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"patent_explorer_go_backend/cmd/api/config"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, userService *services.UserService) {
	auth := r.Group("/auth")
	{
		auth.GET("/user", RequireAuth(cfg, userService), getUser)
	}
}

// RequireAuth rejects requests without a valid bearer token. In development
// mode it synthesizes a local user instead, so the whole product works
// without an identity provider.
func RequireAuth(cfg *config.Config, userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Development() {
			user, err := devUser(userService)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create development user"})
				c.Abort()
				return
			}
			c.Set("user", user)
			c.Next()
			return
		}

		user, err := authenticate(c, cfg, userService)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

// OptionalAuth resolves a user when a token is present but lets anonymous
// requests through; the chat endpoint rate-limits them by client address.
func OptionalAuth(cfg *config.Config, userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Development() {
			if user, err := devUser(userService); err == nil {
				c.Set("user", user)
			}
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "" {
			if user, err := authenticate(c, cfg, userService); err == nil {
				c.Set("user", user)
			}
		}
		c.Next()
	}
}

// IdentityFromContext builds the turn identity: the authenticated user, or
// an anonymous key derived from the client address.
func IdentityFromContext(c *gin.Context) services.Identity {
	if user, exists := c.Get("user"); exists {
		if userModel, ok := user.(*models.User); ok {
			return services.Identity{User: userModel}
		}
	}
	return services.Identity{AnonymousKey: "anon:" + c.ClientIP()}
}

func devUser(userService *services.UserService) (*models.User, error) {
	user, err := userService.CreateOrUpdateUser("dev|local", "dev@localhost", "Local Developer", "dev")
	if err != nil {
		return nil, err
	}
	user.Tier = models.TierUnlimited
	return user, nil
}

func authenticate(c *gin.Context, cfg *config.Config, userService *services.UserService) (*models.User, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errors.New("Authorization header is required")
	}
	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 {
		return nil, errors.New("Invalid authorization header")
	}

	claims, err := verifyToken(bearerToken[1], cfg.Auth0Domain)
	if err != nil {
		return nil, err
	}

	auth0ID, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	nickname, _ := claims["nickname"].(string)

	user, err := userService.CreateOrUpdateUser(auth0ID, email, name, nickname)
	if err != nil {
		return nil, errors.New("Failed to process user information")
	}
	return user, nil
}

func getUser(c *gin.Context) {
	user, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func verifyToken(tokenString, domain string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		cert, err := getPemCert(token, domain)
		if err != nil {
			return nil, err
		}

		return jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func getPemCert(token *jwt.Token, domain string) (string, error) {
	cert := ""
	resp, err := http.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", domain))
	if err != nil {
		return cert, err
	}
	defer resp.Body.Close()

	var jwks = struct {
		Keys []struct {
			Kty string   `json:"kty"`
			Kid string   `json:"kid"`
			Use string   `json:"use"`
			N   string   `json:"n"`
			E   string   `json:"e"`
			X5c []string `json:"x5c"`
		} `json:"keys"`
	}{}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return cert, err
	}

	for k := range jwks.Keys {
		if token.Header["kid"] == jwks.Keys[k].Kid {
			cert = "-----BEGIN CERTIFICATE-----\n" + jwks.Keys[k].X5c[0] + "\n-----END CERTIFICATE-----"
		}
	}

	if cert == "" {
		return cert, errors.New("unable to find appropriate key")
	}
	return cert, nil
}
