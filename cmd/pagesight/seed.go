package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/de3sec/pagesight/internal/seeder"
)

var (
	seedEndpoint   string
	seedTrackingID string
	seedSessions   int
	seedPagesMin   int
	seedPagesMax   int
	seedTimeSpread string
	seedRandomSeed int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send synthetic traffic to a running collector",
	Long: `Generate realistic browsing sessions and post them to the collect
endpoint. Useful for populating a development dashboard.

Examples:
  pagesight seed --tracking-id trk_abc123 --sessions 50
  pagesight seed --endpoint http://localhost:8080 --tracking-id trk_abc123 --spread 72h`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedEndpoint, "endpoint", "http://localhost:8080", "collector base URL")
	seedCmd.Flags().StringVar(&seedTrackingID, "tracking-id", "", "tracking ID of the target website (required)")
	seedCmd.Flags().IntVar(&seedSessions, "sessions", 25, "number of sessions to generate")
	seedCmd.Flags().IntVar(&seedPagesMin, "pages-min", 1, "minimum pageviews per session")
	seedCmd.Flags().IntVar(&seedPagesMax, "pages-max", 6, "maximum pageviews per session")
	seedCmd.Flags().StringVar(&seedTimeSpread, "spread", "24h", "spread sessions over this much history")
	seedCmd.Flags().Int64Var(&seedRandomSeed, "seed", 0, "random seed (0 uses current time)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedTrackingID == "" {
		return fmt.Errorf("--tracking-id is required")
	}

	spread, err := time.ParseDuration(seedTimeSpread)
	if err != nil {
		return fmt.Errorf("invalid --spread: %w", err)
	}

	randomSeed := seedRandomSeed
	if randomSeed == 0 {
		randomSeed = time.Now().UnixNano()
	}

	s := seeder.New(seeder.Options{
		Endpoint:   seedEndpoint,
		TrackingID: seedTrackingID,
		Sessions:   seedSessions,
		PagesMin:   seedPagesMin,
		PagesMax:   seedPagesMax,
		TimeSpread: spread,
	}, randomSeed)

	sent, err := s.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("seeding failed after %d events: %w", sent, err)
	}

	fmt.Printf("Sent %d events across %d sessions to %s\n", sent, seedSessions, seedEndpoint)
	return nil
}
