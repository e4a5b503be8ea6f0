package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iudanet/facegate/internal/client/api"
	"github.com/iudanet/facegate/internal/client/storage"
	"github.com/iudanet/facegate/internal/validation"
	pkgapi "github.com/iudanet/facegate/pkg/api"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	email, err := c.argOrInput(nil, 0, "Email: ")
	if err != nil {
		return err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}

	password, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	// Подтверждение спрашиваем только при интерактивном вводе
	confirm := password
	if c.interactivePassword() {
		confirm, err = c.io.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	resp, err := c.gateway.Register(ctx, pkgapi.RegisterRequest{
		Email:           email,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Printf("✓ %s\n", resp.Message)
	c.io.Printf("Email: %s\n", email)
	return nil
}

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	email, err := c.argOrInput(nil, 0, "Email: ")
	if err != nil {
		return err
	}

	password, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}

	c.io.Println("Authenticating...")

	resp, err := c.gateway.LoginPassword(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}

	if err := c.saveSession(ctx, email, resp.Token, "password", resp.ExpiresAt); err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Session expires at: %s\n", resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	err := c.sessions.DeleteSession(ctx)
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.io.Println("Not logged in")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	c.io.Println("✓ Logged out")
	return nil
}

func (c *Cli) runMe(ctx context.Context) error {
	sess, err := c.sessions.GetSession(ctx)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return ErrNotLoggedIn
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	me, err := c.gateway.Me(ctx, sess.Token)
	if err != nil {
		if api.StatusCode(err) == http.StatusUnauthorized {
			// Сервер больше не принимает токен, локальная копия бесполезна
			_ = c.sessions.DeleteSession(ctx)
			return fmt.Errorf("session expired: %w", ErrNotLoggedIn)
		}
		return err
	}

	c.io.Printf("Account ID: %s\n", me.AccountID)
	c.io.Printf("Email:      %s\n", me.Email)
	if !me.ExpiresAt.IsZero() {
		c.io.Printf("Expires at: %s\n", me.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Printf("Server: %s\n", c.serverURL)

	health, err := c.gateway.Health(ctx)
	if err != nil {
		c.io.Printf("Server status: unreachable (%v)\n", err)
	} else {
		c.io.Printf("Server status: %s %s\n", health.Status, health.Version)
	}

	sess, err := c.sessions.GetSession(ctx)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		c.io.Println("Session: not logged in")
	case err != nil:
		return fmt.Errorf("failed to load session: %w", err)
	case sess.Expired(c.now()):
		c.io.Printf("Session: expired (%s, via %s)\n", sess.Email, sess.Method)
	default:
		c.io.Printf("Session: active (%s, via %s)\n", sess.Email, sess.Method)
		c.io.Printf("Expires in: %s\n", sess.ExpiresAt.Sub(c.now()).Round(time.Second))
	}
	return nil
}
