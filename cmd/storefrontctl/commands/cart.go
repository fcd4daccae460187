package commands

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"storefront-gateway/internal/model"
)

// cartResponse mirrors the gateway's cart payload.
type cartResponse struct {
	Cart *model.Cart `json:"cart"`
}

func cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change a cart through the gateway",
	}
	cmd.AddCommand(cartGetCmd(), cartAddCmd(), cartRemoveCmd(), cartCompleteCmd())
	return cmd
}

func cartGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp cartResponse
			if err := doRequest("GET", "/api/cart", nil, &resp); err != nil {
				return err
			}
			if resp.Cart == nil {
				printWarning("no cart in this session")
				return nil
			}
			printCart(resp.Cart)
			return nil
		},
	}
}

func cartAddCmd() *cobra.Command {
	var variantID string
	var quantity int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a variant, creating the cart if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp cartResponse
			body := map[string]interface{}{"variant_id": variantID, "quantity": quantity}
			if err := doRequest("POST", "/api/cart/line-items", body, &resp); err != nil {
				return err
			}
			if resp.Cart == nil {
				return errors.New("gateway returned no cart")
			}

			if quiet {
				fmt.Println(resp.Cart.ID)
				return nil
			}
			printSuccess("Added %s", variantID)
			printCart(resp.Cart)
			return nil
		},
	}
	cmd.Flags().StringVar(&variantID, "variant", "", "variant id (required)")
	cmd.Flags().IntVar(&quantity, "qty", 1, "quantity")
	cmd.MarkFlagRequired("variant")
	return cmd
}

func cartRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <line-item-id>",
		Short: "Remove a line item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				ID      string `json:"id"`
				Deleted bool   `json:"deleted"`
			}
			if err := doRequest("DELETE", "/api/cart/line-items/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			if !resp.Deleted {
				printWarning("line item %s was not deleted", args[0])
				return nil
			}
			printSuccess("Removed %s", resp.ID)
			return nil
		},
	}
}

func cartCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete",
		Short: "Place the order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.CompleteResult
			if err := doRequest("POST", "/api/cart/complete", nil, &result); err != nil {
				return err
			}

			if !result.Completed() {
				reason := "unknown reason"
				if result.Error != nil {
					reason = result.Error.Message
				}
				return fmt.Errorf("order refused: %s", reason)
			}

			if quiet {
				fmt.Println(result.Order.ID)
				return nil
			}
			printSuccess("Order placed")
			fmt.Printf("  ID: %s%s%s\n", colorCyan, result.Order.ID, colorReset)
			fmt.Printf("  Total: %s%s%s\n", colorGreen, formatAmount(result.Order.Total, result.Order.CurrencyCode), colorReset)
			return nil
		},
	}
}

func printCart(c *model.Cart) {
	if quiet {
		return
	}
	fmt.Printf("  Cart: %s%s%s (region %s)\n", colorCyan, c.ID, colorReset, c.RegionID)
	for _, it := range c.Items {
		fmt.Printf("    - %s %s x%d (%s)\n", it.ID, it.VariantID, it.Quantity, formatAmount(it.UnitPrice, c.CurrencyCode))
	}
	fmt.Printf("  Total: %s%s%s\n", colorGreen, formatAmount(c.Total, c.CurrencyCode), colorReset)
}
