package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/repository"
	"github.com/penletter/penletter/internal/secret"
)

type output struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Created  bool   `json:"created"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		username    = flag.String("username", "admin", "Operator username")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "username is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	// 26 base32 characters, 130 bits
	password := rand.Text()
	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash password:", err)
		os.Exit(1)
	}

	userID, created, err := upsertOperator(ctx, repo, *username, secret.New(hash))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	out := output{
		UserID:   userID,
		Username: *username,
		Password: password,
		Created:  created,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Password)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// upsertOperator creates the operator account, or resets its password if the
// username is already taken.
func upsertOperator(ctx context.Context, repo *repository.Repository, username string, hash secret.String) (string, bool, error) {
	existing, err := repo.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if err := repo.UpdatePassword(ctx, existing.ID, hash); err != nil {
			return "", false, fmt.Errorf("reset password: %w", err)
		}
		return existing.ID, false, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return "", false, fmt.Errorf("look up user: %w", err)
	}

	user := &model.User{
		ID:        ulid.Make().String(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user, hash); err != nil {
		return "", false, fmt.Errorf("create user: %w", err)
	}
	return user.ID, true, nil
}
