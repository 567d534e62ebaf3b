package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hfs",
		Short: "Filesystem in Userspace backed by an append-only log",
		Long: `hfs serves a directory tree from an image made of append-only logs.
Every change is appended to the image before the kernel is answered, and the
tree is rebuilt from the logs on mount.

Example:
  hfs mkimage ./img
  hfs mount --image ./img/image.yaml --mountpoint /mnt/hfs`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMountCmd(), newMkimageCmd(), newCompactCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
