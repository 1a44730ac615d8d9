package main

import (
	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/render/internal/proxy"
)

func proxyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "manage accelerated proxies of source media",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ensure URL...",
			Short: "advance the proxy of each URL one step",
			Args:  cobra.MinimumNArgs(1),
			RunE: withProxies(configPath, func(cmd *cobra.Command, svc *proxy.Service, urls []string) error {
				outcomes, err := svc.Ensure(cmd.Context(), urls)
				if err != nil {
					return err
				}

				type row struct {
					URL    string `json:"url"`
					Status string `json:"status"`
					Proxy  string `json:"proxyUrl,omitempty"`
					Error  string `json:"error,omitempty"`
				}
				rows := make([]row, 0, len(outcomes))
				for _, o := range outcomes {
					r := row{URL: o.URL}
					switch {
					case o.Record != nil:
						r.Status = o.Record.Status
						r.Proxy = o.Record.ProxyURL
						r.Error = o.Record.ErrorMessage
					case o.Err != nil:
						r.Status = "error"
						r.Error = o.Err.Error()
					}
					rows = append(rows, r)
				}

				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"summary": proxy.Summarize(outcomes),
					"proxies": rows,
				})
			}),
		},
		&cobra.Command{
			Use:   "status URL...",
			Short: "show known proxies, refreshing unsettled ones",
			Args:  cobra.MinimumNArgs(1),
			RunE: withProxies(configPath, func(cmd *cobra.Command, svc *proxy.Service, urls []string) error {
				records, err := svc.Status(cmd.Context(), urls)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			}),
		},
		&cobra.Command{
			Use:   "cleanup URL...",
			Short: "delete proxies and their transcoded streams",
			Args:  cobra.MinimumNArgs(1),
			RunE: withProxies(configPath, func(cmd *cobra.Command, svc *proxy.Service, urls []string) error {
				deleted, err := svc.Cleanup(cmd.Context(), urls)
				if perr := printJSON(cmd.OutOrStdout(), map[string]int{"deleted": deleted}); perr != nil {
					return perr
				}
				return err
			}),
		},
	)

	return cmd
}

func withProxies(configPath *string, run func(*cobra.Command, *proxy.Service, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := connect(*configPath)
		if err != nil {
			return err
		}
		defer e.Close()

		client, err := proxy.NewClient(e.cfg.Transcode, e.logger)
		if err != nil {
			return err
		}

		var c proxy.Cache
		if e.cache != nil {
			c = e.cache
		}
		return run(cmd, proxy.NewService(client, e.repo, c, e.logger), args)
	}
}
