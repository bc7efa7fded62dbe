package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Serve builds config once, keeps esbuild watching the sources and serves the
// output folder until ctx is cancelled.
func Serve(ctx context.Context, config *Configuration) error {
	if config.DevServer == nil {
		return errors.New("configuration has no dev server")
	}
	if _, err := Bundle(ctx, config); err != nil {
		return err
	}

	b := newBundler(config)
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing sass compiler")
		}
	}()
	opts, err := b.BuildOptions()
	if err != nil {
		return err
	}
	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return messagesError(ctxErr.Errors)
	}
	defer buildCtx.Dispose()
	if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("watching sources: %w", err)
	}

	app := newDevServer(config.DevServer)
	addr := net.JoinHostPort(config.DevServer.Host, strconv.Itoa(config.DevServer.Port))
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", "http://"+addr).Str("folder", config.DevServer.Static).Msg("Serving")
		errCh <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Stopping dev server")
		return app.Shutdown()
	case err := <-errCh:
		return err
	}
}

func newDevServer(ds *DevServer) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Static("/", ds.Static)
	if ds.HistoryAPIFallback {
		index := filepath.Join(ds.Static, "index.html")
		app.Use(func(c *fiber.Ctx) error {
			if _, err := os.Stat(index); err != nil {
				return fiber.ErrNotFound
			}
			return c.SendFile(index)
		})
	}
	return app
}
