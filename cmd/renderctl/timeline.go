package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/render/pkg/models"
)

func timelineCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "manage stored timelines",
	}

	var id string
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "store a timeline JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeline, err := readTimeline(args[0])
			if err != nil {
				return err
			}
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			e, err := connect(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.repo.SaveTimeline(cmd.Context(), &models.TimelineRecord{ID: id, Timeline: *timeline}); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"id":     id,
				"frames": timeline.DurationInFrames,
				"videos": len(timeline.MediaURLs(models.ClipTypeVideo)),
			})
		},
	}
	importCmd.Flags().StringVar(&id, "id", "", "timeline id; defaults to the file name")

	cmd.AddCommand(importCmd)
	return cmd
}

// readTimeline loads and validates a timeline document
func readTimeline(path string) (*models.Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var timeline models.Timeline
	if err := json.Unmarshal(data, &timeline); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := timeline.Validate(); err != nil {
		return nil, err
	}
	return &timeline, nil
}
