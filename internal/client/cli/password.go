package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/facegate/internal/validation"
	"github.com/iudanet/facegate/pkg/api"
)

func (c *Cli) runResetRequest(ctx context.Context, args []string) error {
	email, err := c.argOrInput(args, 0, "Email: ")
	if err != nil {
		return err
	}

	if err := c.gateway.RequestPasswordReset(ctx, email); err != nil {
		return err
	}

	c.io.Printf("✓ Password reset link sent to %s\n", email)
	return nil
}

func (c *Cli) runReset(ctx context.Context, args []string) error {
	token, err := c.argOrInput(args, 0, "Reset token: ")
	if err != nil {
		return err
	}

	password, err := c.getPassword("New password: ")
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	if err := c.gateway.ResetPassword(ctx, api.PasswordResetConfirm{Token: token, NewPassword: password}); err != nil {
		return err
	}

	c.io.Println("✓ Password reset successful")
	return nil
}
