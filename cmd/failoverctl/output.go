package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func printSuccess(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.ErrOrStderr(), "✓ "+fmt.Sprintf(format, args...))
}

func printWarning(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.ErrOrStderr(), "! "+fmt.Sprintf(format, args...))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
