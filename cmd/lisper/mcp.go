package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the playground as an MCP Server on Standard Input/Output.
This allows AI agents to evaluate and highlight Lisp and drive playground sessions as tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ensure logs don't corrupt JSON-RPC on Stdout
		log.SetOutput(os.Stderr)

		pg, err := newPlayground(cmd)
		if err != nil {
			return err
		}
		defer pg.Close(cmd.Context())

		srv := mcp.NewServer(pg.Sessions,
			mcp.WithHighlighter(pg.Highlighter),
			mcp.WithRenderer(pg.Renderer),
			mcp.WithMaxSourceBytes(pg.Config.Evaluation.MaxSourceBytes),
			mcp.WithLogger(pg.Logger()),
		)
		pg.Logger().Info("Starting Lisper MCP Server (Stdio)...")
		if err := srv.ServeStdio(); err != nil {
			pg.Logger().Error("MCP Server execution failed", "err", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
