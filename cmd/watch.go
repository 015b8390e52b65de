package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tripnest/tripsync"
	"github.com/tripnest/tripsync/pkg/connection"
	"github.com/tripnest/tripsync/pkg/connection/gorillaws"
	"github.com/tripnest/tripsync/pkg/connection/gwsws"
	"github.com/tripnest/tripsync/pkg/connection/nhooyrws"
	"github.com/tripnest/tripsync/pkg/logger"
	"github.com/tripnest/tripsync/pkg/snapshot"
	"github.com/tripnest/tripsync/pkg/toast"
)

type watchOptions struct {
	userID    string
	token     string
	duration  time.Duration
	transport string
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect and print pushed notices until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(nil)
			if err != nil {
				return err
			}
			if opts.userID != "" {
				s.UserID = opts.userID
			}
			if opts.token != "" {
				s.Token = opts.token
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			return runWatch(ctx, s, opts.transport, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id (overrides user_id)")
	cmd.Flags().StringVar(&opts.token, "token", "", "access token (overrides token)")
	cmd.Flags().DurationVar(&opts.duration, "for", 0, "stop after this long (default: until interrupted)")
	cmd.Flags().StringVar(&opts.transport, "transport", "gorilla", "websocket library: gorilla, nhooyr or gws")
	return cmd
}

func dialerFor(transport string, log logger.Logger) (connection.Dialer, error) {
	switch transport {
	case "", "gorilla":
		return gorillaws.New(gorillaws.WithLogger(log)), nil
	case "nhooyr":
		return nhooyrws.New(), nil
	case "gws":
		return gwsws.New(gwsws.WithLogger(log)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func snapshotsFor(s Settings) (snapshot.Backend, func() error, error) {
	switch {
	case s.PostgresDSN != "":
		b, err := snapshot.NewPostgresBackend(s.PostgresDSN, snapshot.WithKey(s.UserID))
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case s.SnapshotPath != "":
		return snapshot.NewFileBackend(s.SnapshotPath), func() error { return nil }, nil
	default:
		return nil, func() error { return nil }, nil
	}
}

// printSurface writes one line per toast.
type printSurface struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printSurface) Show(t toast.Toast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("[%s] %s", t.Level, t.Title)
	if t.Message != "" {
		line += ": " + t.Message
	}
	fmt.Fprintln(p.w, line)
}

func runWatch(ctx context.Context, s Settings, transport string, stdout, stderr io.Writer) error {
	if s.UserID == "" {
		return errors.New("no user id: set user_id in the config file or pass --user")
	}

	build := logger.NewBuild().FromBuffer(stderr).Verbose(s.Verbose)
	if s.LogPath != "" {
		build = build.FromPath(s.LogPath)
	}
	log, err := build.Make()
	if err != nil {
		return err
	}
	defer log.Close()

	dialer, err := dialerFor(transport, log)
	if err != nil {
		return err
	}
	backend, closeBackend, err := snapshotsFor(s)
	if err != nil {
		return err
	}
	defer closeBackend()

	opts := []tripsync.Option{
		tripsync.WithLogger(log),
		tripsync.WithDialer(dialer),
		tripsync.WithToasts(&printSurface{w: stdout}),
	}
	if backend != nil {
		opts = append(opts, tripsync.WithSnapshots(backend))
	}

	client, err := tripsync.New(*s.clientConfig(), opts...)
	if err != nil {
		return err
	}
	if err := client.Init(); err != nil {
		return err
	}
	defer client.Dispose()

	// A failed first dial still schedules retries, so keep watching.
	session := connection.Session{Token: s.Token, UserID: s.UserID}
	if err := client.Connect(ctx, session); err != nil {
		log.Warn("watch: initial connect failed", "error", err)
	}

	if backend != nil {
		if restored, err := client.LoadSnapshot(ctx); err != nil {
			log.Warn("watch: snapshot not loaded", "error", err)
		} else if restored {
			log.Info("watch: snapshot restored")
		}
	}

	<-ctx.Done()

	if backend != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.SaveSnapshot(saveCtx); err != nil {
			log.Warn("watch: snapshot not saved", "error", err)
		}
	}
	return nil
}
