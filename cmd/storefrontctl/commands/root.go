package commands

import (
	"os"

	"github.com/spf13/cobra"
)

// Global flags (apply to all commands)
var (
	gatewayURL string
	country    string
	cartID     string
	quiet      bool
	noColor    bool
	verbose    bool
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Storefront gateway test tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				disableColors()
			}
		},
	}

	root.PersistentFlags().StringVar(&gatewayURL, "gateway", "http://localhost:8080", "gateway base URL")
	root.PersistentFlags().StringVar(&country, "country", "", "country code sent in the session header")
	root.PersistentFlags().StringVar(&cartID, "cart", "", "cart id sent in the session header")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print the essential value")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show full request/response")

	root.AddCommand(regionsCmd(), cartCmd(), routesCmd())

	if err := root.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}
