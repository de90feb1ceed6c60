package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"character_asset_compiler/drafts"
	"character_asset_compiler/generator"
	"character_asset_compiler/publisher"
)

type batchResult struct {
	seed string
	id   string
	dir  string
	err  error
}

func batchCmd() *cobra.Command {
	var (
		seedsFile string
		mode      string
		parallel  int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Compile one pack per line of a seeds file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, err := readSeeds(seedsFile)
			if err != nil {
				return err
			}
			if len(seeds) == 0 {
				return fmt.Errorf("no seeds in %s", seedsFile)
			}
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.close()
			store, err := a.openDrafts()
			if err != nil {
				return err
			}
			if parallel <= 0 {
				parallel = a.cfg.BatchParallel
			}

			ctx, stop := signalContext()
			defer stop()

			results := make([]batchResult, len(seeds))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(parallel)
			for i, seed := range seeds {
				g.Go(func() error {
					res := compileOne(gctx, a, store, seed, generator.ParseMode(mode))
					results[i] = res
					if res.err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s\n", res.seed)
					} else {
						fmt.Fprintf(cmd.ErrOrStderr(), "done: %s\n", res.dir)
					}
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			for _, res := range results {
				if res.err != nil {
					failed++
					reportFailure(cmd.ErrOrStderr(), res.id, res.err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.dir)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(seeds))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&seedsFile, "seeds", "", "file with one seed per line")
	cmd.Flags().StringVar(&mode, "mode", "", "content mode for every run")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "runs in flight at once (default batch_parallel from config)")
	_ = cmd.MarkFlagRequired("seeds")
	return cmd
}

// compileOne runs, stores and publishes a single seed. Runs share nothing
// but the controller, the draft store and the packs directory.
func compileOne(ctx context.Context, a *app, store *drafts.Store, seed string, mode generator.Mode) batchResult {
	res := batchResult{seed: seed, id: uuid.NewString()}
	sess := generator.NewSession(res.id, seed, mode, a.controller)
	_, res.err = sess.Propose(ctx, false)
	if err := store.Save(context.WithoutCancel(ctx), drafts.FromSession(sess)); err != nil {
		a.log.Error("failed to save run", "id", res.id, "error", err)
	}
	if res.err != nil {
		return res
	}
	run, _ := sess.Snapshot()
	pack, err := publisher.PackFromRun(run)
	if err == nil {
		res.dir, err = a.publisher.Write(pack)
	}
	res.err = err
	return res
}

// readSeeds returns the non-blank lines of path, skipping # comments.
func readSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var seeds []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	return seeds, sc.Err()
}
