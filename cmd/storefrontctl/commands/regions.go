package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"storefront-gateway/internal/model"
)

func regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the countries the store sells to",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Regions []model.Region `json:"regions"`
			}
			if err := doRequest("GET", "/api/regions", nil, &resp); err != nil {
				return err
			}

			for _, c := range model.CountriesFromRegions(resp.Regions) {
				if quiet {
					fmt.Println(c.ISO2)
					continue
				}
				fmt.Printf("  %s%s%s  %s (%s)\n", colorCyan, c.ISO2, colorReset, c.DisplayName, c.RegionID)
			}
			printSuccess("%d regions", len(resp.Regions))
			return nil
		},
	}
}
