package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/S1riyS/hfs/internal/config"
	"github.com/S1riyS/hfs/internal/handler"
	"github.com/S1riyS/hfs/internal/service"
	"github.com/S1riyS/hfs/internal/storage"
	"github.com/S1riyS/hfs/internal/storage/pglog"
	"github.com/S1riyS/hfs/internal/storage/yamllog"
	"github.com/S1riyS/hfs/pkg/database/postgresql"
	"github.com/S1riyS/hfs/pkg/logging"
	"github.com/S1riyS/hfs/pkg/logging/slogext"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"
)

func newMountCmd() *cobra.Command {
	var (
		configPath string
		mountpoint string
		image      string
	)

	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Mount an image and serve it until unmounted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad(configPath)
			if mountpoint != "" {
				cfg.App.Mountpoint = mountpoint
			}
			if image != "" {
				cfg.Image.Location = image
			}
			if cfg.App.Mountpoint == "" {
				return fmt.Errorf("mountpoint is not set")
			}

			return runMount(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to the config file")
	cmd.Flags().StringVar(&mountpoint, "mountpoint", "", "Directory to mount at (overrides app.mountpoint)")
	cmd.Flags().StringVar(&image, "image", "", "Image manifest or filesystem name (overrides image.location)")

	return cmd
}

func runMount(ctx context.Context, cfg *config.Config) error {
	const op = "main.runMount"

	logger := logging.NewLogger(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	ctx = logging.MakeContextWithLogger(ctx, logger)
	log := logging.GetLoggerFromContextWithOp(ctx, op)

	if cfg.App.CheckInvariants {
		syncutil.EnableInvariantChecking()
	}

	clock := timeutil.RealClock()

	// Dependencies
	imageLog, closeBackend, err := openBackend(ctx, cfg, clock)
	if err != nil {
		log.Error("Failed to open image backend", slogext.Err(err), slog.String("backend", cfg.Image.Backend))
		return err
	}
	defer closeBackend()
	defer func() {
		if err := imageLog.Close(); err != nil {
			log.Error("Failed to close image", slogext.Err(err))
		}
	}()

	svc := service.NewFileSystemService(imageLog, clock, service.Options{
		DefaultUid: cfg.App.DefaultUid,
		DefaultGid: cfg.App.DefaultGid,
		WholeRead:  cfg.App.WholeRead,
	})
	if err := svc.Init(ctx, cfg.Image.Location); err != nil {
		return err
	}

	h := handler.NewHandler(svc, logger)
	mfs, err := handler.Mount(ctx, cfg.App.Mountpoint, h, handler.MountOptions{
		FSName: cfg.App.FSName,
		Debug:  logging.ParseLevel(cfg.Log.Level) == slog.LevelDebug,
	})
	if err != nil {
		return err
	}

	registerSignalHandler(log, cfg.App.Mountpoint)

	if err := mfs.Join(ctx); err != nil {
		log.Error("Serving failed", slogext.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("Unmounted", slog.String("mountpoint", cfg.App.Mountpoint))
	return nil
}

// openBackend returns the log selected by image.backend and a function that
// releases whatever the backend holds besides the log itself.
func openBackend(ctx context.Context, cfg *config.Config, clock timeutil.Clock) (storage.Log, func(), error) {
	switch cfg.Image.Backend {
	case "yaml":
		return yamllog.New(), func() {}, nil

	case "postgres":
		db, err := postgresql.NewClient(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		root := storage.NewRootAttr(cfg.App.DefaultUid, cfg.App.DefaultGid, clock.Now())
		return pglog.New(db, root), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown image backend %q", cfg.Image.Backend)
	}
}

func registerSignalHandler(log *slog.Logger, mountpoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range signalChan {
			log.Info("Received signal, attempting to unmount", slog.String("signal", sig.String()))

			if err := fuse.Unmount(mountpoint); err != nil {
				log.Error("Failed to unmount", slogext.Err(err))
				continue
			}
			return
		}
	}()
}

func newMkimageCmd() *cobra.Command {
	var uid, gid uint32

	cmd := &cobra.Command{
		Use:   "mkimage <dir>",
		Short: "Create an empty YAML image in dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := storage.NewRootAttr(uid, gid, time.Now())

			manifest, err := yamllog.CreateImage(cmd.Context(), args[0], root)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), manifest)
			return err
		},
	}

	cmd.Flags().Uint32Var(&uid, "uid", service.DefaultUid, "Owner of the root directory")
	cmd.Flags().Uint32Var(&gid, "gid", service.DefaultGid, "Group of the root directory")

	return cmd
}

func newCompactCmd() *cobra.Command {
	var image string

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite a YAML image so it holds one record per live inode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd.Context(), image, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Image manifest to compact (required)")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func runCompact(ctx context.Context, image string, out io.Writer) (err error) {
	imageLog := yamllog.New()
	defer func() {
		if closeErr := imageLog.Close(); err == nil {
			err = closeErr
		}
	}()

	snap, err := imageLog.Init(ctx, image)
	if err != nil {
		return err
	}
	if err := imageLog.Compact(ctx, snap); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "compacted %s: %d inodes\n", image, len(snap.Attrs))
	return err
}
