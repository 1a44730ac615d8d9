package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
	"github.com/therealutkarshpriyadarshi/render/internal/render"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

func renderCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "launch and inspect renders",
	}

	cmd.AddCommand(renderLaunch(configPath), renderPoll(configPath))
	return cmd
}

func renderLaunch(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "launch TIMELINE_ID",
		Short: "launch a render of a stored timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			farm, err := render.NewHTTPFarm(e.cfg.Farm, e.logger)
			if err != nil {
				return err
			}

			var lookup render.ProxyLookup
			if client, err := proxy.NewClient(e.cfg.Transcode, e.logger); err == nil {
				var c proxy.Cache
				if e.cache != nil {
					c = e.cache
				}
				lookup = proxy.NewService(client, e.repo, c, e.logger)
			}

			record, err := e.repo.GetTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			launcher := render.NewLauncher(e.cfg.Farm, farm, e.repo, lookup, e.logger)
			result, err := launcher.Launch(cmd.Context(), record.ID, &record.Timeline, e.cfg.Farm.AccountConcurrency, e.cfg.Farm.HardCap)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"renderId":         result.Job.RenderID,
				"bucketName":       result.Job.Bucket,
				"framesPerLambda":  result.FramesPerChunk,
				"estimatedChunks":  result.ChunkCount,
				"concurrencyLimit": result.WorkerCeiling,
				"attempt":          result.Attempt,
			})
		},
	}
}

func renderPoll(configPath *string) *cobra.Command {
	var renderID, bucket string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "poll a render once and record its outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if renderID == "" {
				return fmt.Errorf("--render-id is required")
			}

			e, err := connect(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			farm, err := render.NewHTTPFarm(e.cfg.Farm, e.logger)
			if err != nil {
				return err
			}

			if bucket == "" {
				job, err := e.repo.GetRenderJobByRenderID(cmd.Context(), renderID)
				if err != nil {
					return fmt.Errorf("--bucket is required for unknown renders: %w", err)
				}
				bucket = job.Bucket
			}

			var opts []render.TrackerOption
			if e.cache != nil {
				opts = append(opts, render.WithTerminalCache(e.cache))
			}
			tracker := render.NewTracker(farm, e.repo, e.logger, opts...)

			result, err := tracker.Poll(cmd.Context(), renderID, bucket)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), progressView(result))
		},
	}

	cmd.Flags().StringVar(&renderID, "render-id", "", "render id returned by launch")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket the render writes to; looked up when omitted")
	return cmd
}

func progressView(result models.ProgressResult) map[string]interface{} {
	switch result.State {
	case models.ProgressCompleted:
		return map[string]interface{}{"done": true, "url": result.OutputURL, "size": result.SizeBytes}
	case models.ProgressFailed:
		return map[string]interface{}{"done": false, "failed": true, "error": result.Message}
	default:
		return map[string]interface{}{"done": false, "progress": result.Fraction}
	}
}
