package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/medusa"
	"storefront-gateway/internal/prerender"
	"storefront-gateway/internal/transport"
)

// routesCmd reads the backend settings from the gateway's configuration
// and talks to the backend directly, so it works without a running gateway.
func routesCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List every prerenderable storefront route",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			rt, err := transport.New(transport.Kind(cfg.Backend.Transport), cfg.Backend.Timeout)
			if err != nil {
				return err
			}
			backend, err := medusa.New(medusa.Config{
				BaseURL:        cfg.Backend.URL,
				PublishableKey: cfg.Backend.PublishableKey,
				Transport:      rt,
				Timeout:        cfg.Backend.Timeout,
			})
			if err != nil {
				return err
			}

			routes, err := prerender.Routes(ctx, backend)
			if err != nil {
				return err
			}
			for _, r := range routes {
				fmt.Println(r)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit")
	return cmd
}
