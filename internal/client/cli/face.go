package cli

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

func (c *Cli) runFaceEnroll(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: facegate face-enroll <image> [email]")
	}

	image, contentType, err := readImage(args[0])
	if err != nil {
		return err
	}

	email, err := c.argOrInput(args, 1, "Email: ")
	if err != nil {
		return err
	}

	resp, err := c.gateway.StoreFace(ctx, email, image, contentType)
	if err != nil {
		return err
	}

	c.io.Printf("✓ %s\n", resp.Message)
	return nil
}

func (c *Cli) runFaceLogin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: facegate face-login <image>")
	}

	image, contentType, err := readImage(args[0])
	if err != nil {
		return err
	}

	c.io.Println("Matching face...")

	resp, err := c.gateway.MatchFace(ctx, image, contentType)
	if err != nil {
		return err
	}

	if err := c.saveSession(ctx, resp.Email, resp.Token, "face", resp.ExpiresAt); err != nil {
		return err
	}

	c.io.Println("✓ Face login successful!")
	c.io.Printf("Email: %s\n", resp.Email)
	return nil
}

// readImage читает файл изображения и определяет его тип
func readImage(path string) ([]byte, string, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(image) == 0 {
		return nil, "", fmt.Errorf("image file %s is empty", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, "", fmt.Errorf("failed to detect image type: %w", err)
	}
	return image, mediaType, nil
}
