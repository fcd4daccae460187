// storefrontctl is a CLI for exercising a running storefront gateway and
// for listing the storefront's prerenderable routes.
//
// Examples:
//
//	storefrontctl regions
//	CART=$(storefrontctl cart add --country de --variant variant_01 -q)
//	storefrontctl cart get --country de --cart "$CART"
//	storefrontctl cart complete --cart "$CART"
//	storefrontctl routes > routes.txt
package main

import (
	"os"

	"storefront-gateway/cmd/storefrontctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
