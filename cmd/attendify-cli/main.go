package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "attendify-cli",
		Short:        "Operator tools for attendance NFTs on the XRP Ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("ledger", "", "ledger URL, http(s) for JSON-RPC or ws(s) for WebSocket (default SELECTED_NETWORK)")
	root.PersistentFlags().String("faucet", "", "faucet URL (default FAUCET_URL)")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	newAccountCmd := &cobra.Command{
		Use:   "new-account",
		Short: "Fund a fresh test-net account from the faucet",
		Args:  cobra.NoArgs,
		RunE:  runNewAccount,
	}
	root.AddCommand(newAccountCmd)

	nftsCmd := &cobra.Command{
		Use:   "nfts <address>",
		Short: "List the NFTs held by an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runNFTs,
	}
	nftsCmd.Flags().Uint32("taxon", 0, "only list tokens with this taxon (event id)")
	root.AddCommand(nftsCmd)

	offersCmd := &cobra.Command{
		Use:   "offers <nft-id>",
		Short: "List the sell offers on a token",
		Args:  cobra.ExactArgs(1),
		RunE:  runOffers,
	}
	root.AddCommand(offersCmd)

	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an event's tokens into a new custodial account",
		Long: "Mint funds a custodial account and mints --count tokens into it. The event\n" +
			"registry lives only in this process; pass --seal-to to keep the custodial\n" +
			"credential, sealed to an age recipient, after the command exits.",
		Args: cobra.NoArgs,
		RunE: runMint,
	}
	mintCmd.Flags().String("owner", "", "organizer wallet address")
	mintCmd.Flags().Int("count", 0, "number of tokens to mint")
	mintCmd.Flags().String("uri", "", "metadata reference stored in every token")
	mintCmd.Flags().String("title", "", "event title")
	mintCmd.Flags().String("desc", "", "event description")
	mintCmd.Flags().String("loc", "", "event location")
	mintCmd.Flags().String("seal-to", "", "age recipient (age1...) to seal the custodial credential to")
	mintCmd.Flags().String("sealed-out", "", "file for the sealed credential (default <account>.age)")
	_ = mintCmd.MarkFlagRequired("owner")
	_ = mintCmd.MarkFlagRequired("count")
	_ = mintCmd.MarkFlagRequired("uri")
	_ = mintCmd.MarkFlagRequired("title")
	root.AddCommand(mintCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow claim-transferred events on Kafka",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	watchCmd.Flags().StringSlice("brokers", nil, "Kafka brokers (default KAFKA_BROKERS)")
	watchCmd.Flags().String("group", "attendify-cli", "consumer group id")
	root.AddCommand(watchCmd)

	return root
}
