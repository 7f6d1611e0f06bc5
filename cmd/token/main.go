// Command token は開発用にアクセストークンの発行と失効を行います。
//
//	token issue  --user <uuid>
//	token revoke --token <jwt>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/webcoletivo/coletivosend/internal/infrastructure/cache"
	"github.com/webcoletivo/coletivosend/pkg/config"
	"github.com/webcoletivo/coletivosend/pkg/jwt"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: token <issue|revoke> [flags]")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc := jwt.NewJWTService(cfg.JWT.Service())

	switch args[0] {
	case "issue":
		return issue(svc, args[1:])
	case "revoke":
		return revoke(cfg, svc, args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func issue(svc *jwt.JWTService, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	user := fs.String("user", "", "user ID (UUID). A random ID is generated when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID := uuid.New()
	if *user != "" {
		parsed, err := uuid.Parse(*user)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		userID = parsed
	}

	token, err := svc.GenerateAccessToken(userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "user: %s (expires in %s)\n", userID, svc.GetAccessTokenExpiry())
	fmt.Println(token)
	return nil
}

func revoke(cfg *config.Config, svc *jwt.JWTService, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	token := fs.String("token", "", "access token to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("--token is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is not configured; revocation requires Redis")
	}

	claims, err := svc.ValidateAccessToken(*token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	expiry := time.Now().Add(svc.GetAccessTokenExpiry())
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	if err := cache.NewJWTBlacklist(client.Client).Revoke(ctx, claims.ID, expiry); err != nil {
		return err
	}
	fmt.Printf("revoked token %s\n", claims.ID)
	return nil
}
