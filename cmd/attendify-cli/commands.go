package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"attendify/internal/config"
	"attendify/internal/events"
	"attendify/internal/kafka"
	"attendify/internal/ledger"
	"attendify/internal/logger"
	"attendify/internal/mint"
	"attendify/internal/models"
)

func newLogger(cmd *cobra.Command) *logger.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	log := logger.NewWithWriter(cmd.ErrOrStderr())
	log.SetLevel(logger.ParseLevel(level))
	return log
}

// openLedger builds a gateway from config, with --ledger and --faucet taking
// precedence over the environment.
func openLedger(cmd *cobra.Command, log *logger.Logger) (*ledger.Client, error) {
	cfg := config.Load().Ledger
	if u, _ := cmd.Flags().GetString("ledger"); u != "" {
		cfg.URL = u
	}
	if u, _ := cmd.Flags().GetString("faucet"); u != "" {
		cfg.FaucetURL = u
	}

	transport, err := ledger.Dial(cmd.Context(), cfg.URL, cfg.RequestTimeout, cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	return ledger.NewClient(transport, ledger.NewFaucet(cfg.FaucetURL, cfg.RequestTimeout), log,
		ledger.WithPollInterval(cfg.PollInterval),
		ledger.WithValidationTimeout(cfg.ValidationTimeout),
		ledger.WithMaxPages(cfg.MaxPages),
		ledger.WithPageLimit(cfg.PageLimit),
	), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runNewAccount(cmd *cobra.Command, _ []string) error {
	log := newLogger(cmd)
	client, err := openLedger(cmd, log)
	if err != nil {
		return err
	}
	defer client.Close()

	acct, err := client.FundAccount(cmd.Context())
	if err != nil {
		return fmt.Errorf("fund account: %w", err)
	}
	return printJSON(cmd, acct)
}

func runNFTs(cmd *cobra.Command, args []string) error {
	filter := cmd.Flags().Changed("taxon")
	taxon, _ := cmd.Flags().GetUint32("taxon")

	log := newLogger(cmd)
	client, err := openLedger(cmd, log)
	if err != nil {
		return err
	}
	defer client.Close()

	nfts := []models.NFToken{}
	for page, err := range client.AccountNFTs(cmd.Context(), args[0]) {
		if err != nil {
			return err
		}
		for _, nft := range page {
			if !filter || nft.NFTokenTaxon == taxon {
				nfts = append(nfts, nft)
			}
		}
	}
	return printJSON(cmd, nfts)
}

func runOffers(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd)
	client, err := openLedger(cmd, log)
	if err != nil {
		return err
	}
	defer client.Close()

	offers, err := ledger.Collect(client.SellOffers(cmd.Context(), args[0]))
	if err != nil {
		return err
	}
	if offers == nil {
		offers = []models.SellOffer{}
	}
	return printJSON(cmd, offers)
}

func runMint(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	owner, _ := flags.GetString("owner")
	count, _ := flags.GetInt("count")
	uri, _ := flags.GetString("uri")
	title, _ := flags.GetString("title")
	desc, _ := flags.GetString("desc")
	loc, _ := flags.GetString("loc")
	sealTo, _ := flags.GetString("seal-to")
	sealedOut, _ := flags.GetString("sealed-out")

	var recipient age.Recipient
	if sealTo != "" {
		r, err := age.ParseX25519Recipient(sealTo)
		if err != nil {
			return fmt.Errorf("--seal-to: %w", err)
		}
		recipient = r
	}

	log := newLogger(cmd)
	client, err := openLedger(cmd, log)
	if err != nil {
		return err
	}
	defer client.Close()

	vault, err := events.NewVault()
	if err != nil {
		return err
	}
	registry := events.NewRegistry(vault)
	minter := mint.NewMinter(client, registry, kafka.NoopPublisher{}, log)

	ev, err := minter.Mint(cmd.Context(), mint.Request{
		Owner:       owner,
		Count:       count,
		MetadataRef: uri,
		Title:       title,
		Description: desc,
		Location:    loc,
	})
	if err != nil {
		return err
	}

	if recipient == nil {
		log.Warn("MINT", fmt.Sprintf("custodial credential for %s is discarded on exit; pass --seal-to to keep it", ev.CustodialAccount))
	} else {
		sealed, err := vault.Export(ev.ID, recipient)
		if err != nil {
			return err
		}
		if sealedOut == "" {
			sealedOut = ev.CustodialAccount + ".age"
		}
		if err := os.WriteFile(sealedOut, sealed, 0o600); err != nil {
			return fmt.Errorf("write sealed credential: %w", err)
		}
		log.Info("MINT", fmt.Sprintf("custodial credential sealed to %s", sealedOut))
	}
	return printJSON(cmd, ev)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg := config.Load().Kafka
	brokers, _ := cmd.Flags().GetStringSlice("brokers")
	if len(brokers) == 0 {
		brokers = cfg.Brokers
	}
	group, _ := cmd.Flags().GetString("group")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(brokers, cfg.Topics.ClaimTransferred, group, newLogger(cmd))
	defer consumer.Close()

	return consumer.Run(ctx, func(msg models.ClaimTransferredMessage) error {
		return printJSON(cmd, msg)
	})
}

