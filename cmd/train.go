package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/distrl/hertrain/agent"
	"github.com/distrl/hertrain/dist"
	"github.com/distrl/hertrain/env"
	"github.com/distrl/hertrain/monitor"
	"github.com/distrl/hertrain/util"
)

func TrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a reaching policy with DDPG+HER",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt) // channel for interrupts from os

			doneCh := make(chan struct{}) // channel for done signal from application

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-sigCh:
				case <-doneCh:
				}
				cancel()
			}()
			defer close(doneCh)

			return runTraining(ctx, flags, workers, monitorAddr)
		},
	}
	return cmd
}

func runTraining(ctx context.Context, cfg agent.Config, workers int, monitorAddr string) error {
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	runID := uuid.New().String()[:8]
	cfg.SavePath = filepath.Join(cfg.SavePath, runID)
	if err := util.SaveJSON(filepath.Join(cfg.SavePath, "config.json"), cfg); err != nil {
		return err
	}
	log.Printf("run %s: %d workers, saving to %s", runID, workers, cfg.SavePath)

	var mon *monitor.Server
	if monitorAddr != "" {
		mon = monitor.NewServer(monitorAddr)
		if err := mon.Start(); err != nil {
			return err
		}
		defer mon.Stop(context.Background())
	}

	group, err := dist.NewGroup(workers)
	if err != nil {
		return err
	}
	printer := util.NewTerminalPrinter(500 * time.Millisecond)
	outputs := make([]*util.WorkerOutput, workers)
	for i := range outputs {
		outputs[i] = printer.NewOutput()
	}
	printer.Start(ctx)
	defer printer.Stop()

	envc := &env.Constructor{Seed: cfg.Seed}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for rank := 0; rank < workers; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()

			member, err := group.Join(rank)
			if err != nil {
				errs[rank] = err
				return
			}
			nets := agent.NewLinearNetworks(envc.Params(), cfg, rand.New(rand.NewSource(cfg.Seed+uint64(rank))))
			trainer, err := agent.NewDDPG(cfg, envc, nets, member)
			if err != nil {
				errs[rank] = err
				return
			}
			out := outputs[rank]
			trainer.Report = func(s agent.EpochStats) {
				out.Set(fmt.Sprintf(
					"[%s] worker %d, epoch %d/%d, success rate %.3f, buffer %d",
					time.Now().Format(time.TimeOnly), s.Worker, s.Epoch+1, cfg.Epochs, s.SuccessRate, s.BufferSize,
				))
				if member.Coordinator() && mon != nil {
					mon.Publish(s)
				}
			}
			errs[rank] = trainer.Train(ctx)
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			return fmt.Errorf("worker %d: %w", rank, err)
		}
	}
	return nil
}
