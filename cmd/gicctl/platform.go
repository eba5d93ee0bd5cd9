package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

func runPlatform(args []string) error {
	fs := flag.NewFlagSet("platform", flag.ExitOnError)
	path := fs.String("platform", "", "platform description (default: built-in FVP)")
	dtb := fs.String("dtb", "", "also write the platform as a flattened device tree to this file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	plat, err := loadPlatform(*path)
	if err != nil {
		return err
	}

	if *dtb != "" {
		blob, err := plat.DeviceTree()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*dtb, blob, 0o644); err != nil {
			return fmt.Errorf("write device tree: %w", err)
		}
		slog.Info("gicctl: wrote device tree", "path", *dtb, "bytes", len(blob))
	}
	return plat.Write(os.Stdout)
}
