package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

// issue-token mints a bearer token the API accepts, for local development
// against a deployment without the external auth service.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Development Token ===")

	// Role
	fmt.Print("Enter Role [author/taker] (default taker): ")
	roleStr, _ := reader.ReadString('\n')
	role := service.Role(strings.TrimSpace(roleStr))
	if role == "" {
		role = service.RoleTaker
	}
	if role != service.RoleAuthor && role != service.RoleTaker {
		fmt.Println("Error: Role must be author or taker")
		return
	}

	// User ID
	fmt.Print("Enter User ID (blank for a new one): ")
	userStr, _ := reader.ReadString('\n')
	userStr = strings.TrimSpace(userStr)
	userID := uuid.New()
	if userStr != "" {
		parsed, err := uuid.Parse(userStr)
		if err != nil {
			fmt.Println("Error: User ID must be a UUID")
			return
		}
		userID = parsed
	}

	// TTL
	fmt.Print("Enter validity in hours (default 12): ")
	ttlStr, _ := reader.ReadString('\n')
	ttlStr = strings.TrimSpace(ttlStr)
	ttl := 12
	if ttlStr != "" {
		h, err := strconv.Atoi(ttlStr)
		if err != nil || h < 1 {
			fmt.Println("Error: Validity must be a positive number of hours")
			return
		}
		ttl = h
	}

	// Secret, only prompted when JWT_SECRET is not set.
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Print("Enter JWT Secret (blank for the configured default): ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading secret")
			return
		}
		secret = string(b)
		if secret == "" {
			secret = cfg.JWTSecret
		}
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	now := time.Now()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttl) * time.Hour)),
		},
		Role: role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error: failed to sign token: %v\n", err)
		os.Exit(1)
	}

	// Reject a token the API would not accept.
	if _, err := service.NewAuthService(secret).ValidateToken(token); err != nil {
		fmt.Printf("Error: issued token does not validate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser ID: %s\nRole:    %s\nExpires: %s\n\n%s\n", userID, role, claims.ExpiresAt.Time.Format(time.RFC3339), token)
}
