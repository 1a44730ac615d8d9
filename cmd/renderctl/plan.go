package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
)

type planOutput struct {
	TotalFrames    int `json:"totalFrames"`
	WorkerCeiling  int `json:"workerCeiling"`
	FramesPerChunk int `json:"framesPerChunk"`
	ChunkCount     int `json:"chunkCount"`
}

func plan() *cobra.Command {
	var (
		frames     int
		ceiling    int
		account    int
		hardCap    int
		attempts   int
		rejections []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "show the chunk plan for a render",
		Long: "Show how a render of --frames would be split. Either pass --ceiling directly " +
			"or --account and --hard-cap to derive it. Each --rejection replays a farm " +
			"error message through the launcher's ceiling adjustment.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if frames < 1 {
				return fmt.Errorf("--frames must be at least 1")
			}

			current := ceiling
			if current < 1 {
				current = render.InitialWorkerCeiling(account, hardCap)
			}

			steps := []planOutput{planFor(frames, current)}
			for _, msg := range rejections {
				if len(steps) >= attempts {
					break
				}
				err := &render.FarmError{Message: msg}
				class := render.ClassifyFarmError(err)
				if class == render.RejectionFatal {
					return fmt.Errorf("%q is not a retryable rejection", msg)
				}
				current = render.NextWorkerCeiling(current, class, msg)
				steps = append(steps, planFor(frames, current))
			}

			if len(steps) == 1 {
				return printJSON(cmd.OutOrStdout(), steps[0])
			}
			return printJSON(cmd.OutOrStdout(), steps)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 0, "total frames in the composition")
	cmd.Flags().IntVar(&ceiling, "ceiling", 0, "worker ceiling; derived from --account and --hard-cap when unset")
	cmd.Flags().IntVar(&account, "account", 10, "account-wide concurrency")
	cmd.Flags().IntVar(&hardCap, "hard-cap", 200, "per-render worker cap, 0 for none")
	cmd.Flags().IntVar(&attempts, "attempts", render.DefaultMaxAttempts, "launch attempts to simulate")
	cmd.Flags().StringArrayVar(&rejections, "rejection", nil, "farm rejection message to replay, repeatable")
	return cmd
}

func planFor(frames, ceiling int) planOutput {
	fpc := render.PlanChunks(frames, ceiling)
	return planOutput{
		TotalFrames:    frames,
		WorkerCeiling:  ceiling,
		FramesPerChunk: fpc,
		ChunkCount:     render.ChunkCount(frames, fpc),
	}
}
