package main

import (
	"fmt"
	"io"

	"tvhook/internal/config"
	cfgloader "tvhook/internal/config/loader"

	"github.com/spf13/cobra"
)

func newSymbolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Inspect per-symbol reporting settings",
	}
	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the loaded symbol settings back as normalized YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cleanup, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return exportSymbols(cfg, out, cmd.OutOrStdout())
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "destination file (default stdout)")
	cmd.AddCommand(export)
	return cmd
}

// exportSymbols 读取 symbols.path，输出规范化后的配置（symbol 统一为 BTCUSDT 形式）。
func exportSymbols(cfg *config.Config, out string, stdout io.Writer) error {
	l, err := cfgloader.NewSymbolLoader(cfg.Symbols.Path)
	if err != nil {
		return err
	}
	snap := l.Snapshot()
	if out == "" {
		return cfgloader.EncodeSymbolFile(stdout, snap.File())
	}
	if err := cfgloader.WriteSymbolFile(out, snap.File()); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", out, err)
	}
	fmt.Fprintf(stdout, "exported %d symbols to %s\n", snap.Len(), out)
	return nil
}
