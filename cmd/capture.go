package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warka/warka/internal/capture"
	"github.com/warka/warka/internal/config"
	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/server"
)

// buildApp is a variable so tests can inject a fake browser.
var buildApp = func(ctx context.Context, cfg *config.Config) (frameCapturer, error) {
	return server.Build(ctx, cfg)
}

type frameCapturer interface {
	Capture(ctx context.Context) (*frame.Frame, error)
	Close(ctx context.Context) error
}

func newCaptureCmd() *cobra.Command {
	var (
		out       string
		targetURL string
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Captures the page once and writes the 1-bit bitmap",
		Long: `Runs a single capture with the configured browser settings and writes
the converted frame as a BMP file. Use "-" to write to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if targetURL != "" {
				cfg.Capture.TargetURL = targetURL
			}
			cfg.Capture.RestoreOnStart = false
			return runCapture(cmd.Context(), cfg, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "screenshot.bmp", "output file, - for stdout")
	cmd.Flags().StringVar(&targetURL, "url", "", "override capture.target_url")
	return cmd
}

func runCapture(ctx context.Context, cfg *config.Config, out string, stdout io.Writer) (err error) {
	app, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() {
		err = errors.Join(err, app.Close(context.WithoutCancel(ctx)))
	}()

	f, err := app.Capture(ctx)
	if err != nil {
		if stage := capture.StageOf(err); stage != "" {
			zap.L().Error("capture failed", zap.String("stage", string(stage)), zap.Error(err))
		}
		return err
	}
	var buf bytes.Buffer
	if err := frame.EncodeBMP(&buf, f); err != nil {
		return err
	}
	if out == "-" {
		if _, err := stdout.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write bitmap: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write bitmap: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %dx%d frame %s to %s\n", f.Width(), f.Height(), f.Digest()[:12], out)
	return nil
}
