package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupelabs/loupe/pkg/metastore"
	"github.com/loupelabs/loupe/pkg/preflight"
	"github.com/loupelabs/loupe/pkg/queue"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks against the configured backends",
	Long: `Run diagnostic checks and report what is broken.

Each configured backend is probed independently: Postgres and Redis
connectivity, write access to the archive directory, and the index
path. All checks run even when an early one fails, so one pass shows
the full picture.

Examples:
  loupe doctor
  loupe doctor --timeout 2s`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorTimeout time.Duration

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", preflight.DefaultTimeout, "Per-check timeout")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Open without dialing; the probes do the dialing under their own
	// timeout so a dead backend shows up as a failed check, not a hang.
	store, err := metastore.Open(ctx, pgConfig(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	q := queue.New(redisConfig(cfg))
	defer q.Close()

	checks := []preflight.Check{
		preflight.Postgres(store),
		preflight.Redis(q),
		preflight.ArchiveRoot(cfg.Archive.Root),
		preflight.IndexPath(cfg.Index.Path),
	}

	cmd.Println("Running diagnostic checks...")
	cmd.Println()

	results := preflight.Run(ctx, doctorTimeout, checks)
	printCheckResults(cmd, results)

	if preflight.Failed(results) {
		failed := 0
		for _, r := range results {
			if !r.OK {
				failed++
			}
		}
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}

	cmd.Println("All checks passed.")
	return nil
}

// printCheckResults renders one line per check.
func printCheckResults(cmd *cobra.Command, results []preflight.Result) {
	for i, res := range results {
		if res.OK {
			cmd.Printf("[%d/%d] Checking %s... ✅ (%s)\n",
				i+1, len(results), res.Name, res.Elapsed.Round(time.Millisecond))
			continue
		}
		cmd.Printf("[%d/%d] Checking %s... ❌ %s\n",
			i+1, len(results), res.Name, res.Detail)
	}
	cmd.Println()
}
