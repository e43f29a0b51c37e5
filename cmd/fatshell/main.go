// Command fatshell mounts a FAT32 volume and drops into an interactive
// shell for browsing it and exercising raw block operations. It is the
// host-side counterpart to the AVR firmware's menu-driven test harness,
// rebuilt as a cobra command so it can also be scripted non-interactively.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "fatshell"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName + " <image>",
		Short: appName + " - browse a FAT32 volume and exercise SD block I/O",
		Long: appName + ` mounts a FAT32 volume backed by a disk image file and opens
an interactive shell supporting cd, ls, cat, readblock, writeblock and
writemulti. erase and wellwritten are also accepted but report an error
for image-file devices, since they require a real SD card's ACMD22/erase
support (package sdspi) rather than a plain file.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runShell,
	}
	root.Flags().Bool("partition-relative-fat", false,
		"fold the boot sector's partition offset into FAT sector addressing (see DESIGN.md)")
	root.Flags().Int("max-file-clusters", 0,
		"cap ReadFile/cat at this many clusters (0 = unbounded; the original firmware capped this at 5)")
	root.Flags().Bool("no-partition-table", false,
		"treat the image as starting directly at the boot sector, skipping the MBR scan")
	return root
}
