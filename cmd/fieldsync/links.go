package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

var directionsCmd = &cobra.Command{
	Use:     "directions <order-id>",
	GroupID: "view",
	Short:   "Print a navigation link to a shipment",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		switch shipment.Platform(platform) {
		case shipment.PlatformIOS, shipment.PlatformAndroid, shipment.PlatformWeb:
		default:
			return fmt.Errorf("--platform must be ios, android or web")
		}

		s, err := lookupShipment(cmd, args[0])
		if err != nil {
			return err
		}
		link := shipment.DirectionsURL(s, shipment.Platform(platform))
		if link == "" {
			return fmt.Errorf("order %d has no location", s.OrderID)
		}
		fmt.Println(link)
		return nil
	},
}

var callCmd = &cobra.Command{
	Use:     "call <order-id>",
	GroupID: "view",
	Short:   "Print a tel: link for a shipment's contact",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := lookupShipment(cmd, args[0])
		if err != nil {
			return err
		}
		link := shipment.DialURL(s.ContactPhone)
		if link == "" {
			return fmt.Errorf("order %d has no contact phone", s.OrderID)
		}
		fmt.Println(link)
		return nil
	},
}

func lookupShipment(cmd *cobra.Command, arg string) (*shipment.Shipment, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid order id %q", arg)
	}

	a, err := openApp()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	s, err := a.engine.Get(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %d is not in the cache", id)
	}
	return s, err
}

func init() {
	directionsCmd.Flags().String("platform", string(shipment.PlatformWeb), "link style: ios, android or web")

	rootCmd.AddCommand(directionsCmd)
	rootCmd.AddCommand(callCmd)
}
