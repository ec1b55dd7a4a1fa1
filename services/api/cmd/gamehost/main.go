package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gamehost/pkg/archive"
	"gamehost/pkg/render"
	"gamehost/services/api/internal/config"
	"gamehost/services/bundle"
	"gamehost/services/feedback"
	"gamehost/services/games"
)

const serviceName = "gamehost"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Store and serve uploaded WebGL game bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file; environment variables take precedence")

	load := func(cmd *cobra.Command) (config.Config, error) {
		return config.Load(cmd.Context(), configPath)
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newUploadCommand(load))
	cmd.AddCommand(newDeleteCommand(load))
	cmd.AddCommand(newStatCommand(load))
	cmd.AddCommand(newResolveCommand(load))
	return cmd
}

type loadFunc func(cmd *cobra.Command) (config.Config, error)

// core holds the filesystem components shared by the server and the
// offline commands.
type core struct {
	games    *games.Store
	resolver *bundle.Resolver
	feedback *feedback.Log
}

func newCore(cfg config.Config, logger zerolog.Logger) (*core, error) {
	extractor := archive.New(cfg.MaxArchiveFileBytes, cfg.MaxArchiveTotalBytes)
	gameStore, err := games.New(cfg.GamesDir, extractor, games.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init game store: %w", err)
	}
	engine, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	resolver, err := bundle.New(engine, cfg.CompanyName)
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}
	fb, err := feedback.New(cfg.FeedbackDir)
	if err != nil {
		return nil, fmt.Errorf("init feedback log: %w", err)
	}
	return &core{games: gameStore, resolver: resolver, feedback: fb}, nil
}

func newUploadCommand(load loadFunc) *cobra.Command {
	var (
		id        string
		zipPath   string
		imagePath string
		replace   bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Unpack an archive and cover image into the local games directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			c, err := newCore(cfg, cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			archiveData, err := readOptional(zipPath)
			if err != nil {
				return err
			}
			image, err := readOptional(imagePath)
			if err != nil {
				return err
			}
			if archiveData == nil && image == nil {
				return errors.New("at least one of --zip or --img is required")
			}

			mode := games.ModeCreate
			if replace {
				mode = games.ModeReplace
			}
			res, err := c.games.CreateOrReplace(cmd.Context(), id, archiveData, image, mode)
			if err != nil {
				return err
			}
			if res.ArchiveIgnored != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "archive ignored: %v\n", res.ArchiveIgnored)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d files, %d bytes\n", mode, id, res.Stats.Files, res.Stats.Bytes)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Game identifier")
	cmd.Flags().StringVar(&zipPath, "zip", "", "Path to the game zip archive")
	cmd.Flags().StringVar(&imagePath, "img", "", "Path to the cover image (img.png)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Fail on an invalid archive instead of ignoring it")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDeleteCommand(load loadFunc) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a game directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			c, err := newCore(cfg, cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			existed, err := c.games.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s did not exist\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Game identifier")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newStatCommand(load loadFunc) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Print what is stored for a game as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			c, err := newCore(cfg, cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			art, err := c.games.Stat(id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(art)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Game identifier")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newResolveCommand(load loadFunc) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the player page that would be served for a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			c, err := newCore(cfg, cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			dir, err := c.games.Dir(id)
			if err != nil {
				return err
			}
			if games.HasEntryPage(dir) {
				data, err := os.ReadFile(filepath.Join(dir, games.EntryPage))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			page, err := c.resolver.Resolve(dir)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(page.Body)
			return err
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Game identifier")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func cliLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
}
