package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/facegate/internal/validation"
	"github.com/iudanet/facegate/pkg/api"
)

func (c *Cli) runOTPSend(ctx context.Context, args []string) error {
	email, err := c.argOrInput(args, 0, "Email: ")
	if err != nil {
		return err
	}

	if err := c.gateway.SendOTP(ctx, email); err != nil {
		return err
	}

	c.io.Printf("✓ OTP sent to %s\n", email)
	return nil
}

func (c *Cli) runOTPVerify(ctx context.Context, args []string) error {
	email, err := c.argOrInput(args, 0, "Email: ")
	if err != nil {
		return err
	}
	code, err := c.argOrInput(args, 1, "Code: ")
	if err != nil {
		return err
	}
	if err := validation.ValidateOTP(code); err != nil {
		return fmt.Errorf("invalid code: %w", err)
	}

	resp, err := c.gateway.VerifyOTP(ctx, api.OTPVerifyRequest{Email: email, OTP: code})
	if err != nil {
		return err
	}

	if !resp.Verified {
		return fmt.Errorf("code was not verified")
	}
	c.io.Println("✓ OTP verified")
	return nil
}
