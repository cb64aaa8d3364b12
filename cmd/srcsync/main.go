package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/ignore"
	"github.com/yuya-takeyama/srcsync/pkg/events"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/project"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/remote/s3store"
	"github.com/yuya-takeyama/srcsync/pkg/status"
	"github.com/yuya-takeyama/srcsync/pkg/syncer"
	"github.com/yuya-takeyama/srcsync/pkg/tracker"
	"github.com/yuya-takeyama/srcsync/pkg/workspace"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	projectDir string
	remoteID   string
	storeURI   string
	profile    string
	region     string
	wait       time.Duration
	jsonFile   string
	quiet      bool
	verbose    bool

	statusLocal  bool
	statusRemote bool
	force        bool
)

// Output is the JSON document written for every command.
type Output struct {
	Result    any                         `json:"result,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Hints     []string                    `json:"hints,omitempty"`
	Conflicts []errUtils.ConflictEntry    `json:"conflicts,omitempty"`
	Succeeded []string                    `json:"succeeded,omitempty"`
	Failures  []errUtils.ComponentFailure `json:"failures,omitempty"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "srcsync",
		Short: "Synchronize a source-format metadata project with a remote store",
		Long: `srcsync keeps a workspace of decomposed metadata source files in sync with a
remote store, tracking local changes against a baseline and remote changes by revision.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&projectDir, "project-dir", ".", "Project root containing "+project.FileName)
	flags.StringVar(&remoteID, "remote-id", "", "Identity of the remote, used to key local state (defaults to the store URI)")
	flags.StringVar(&storeURI, "store", "", "Remote store location (s3://bucket/prefix)")
	flags.StringVar(&profile, "profile", "", "AWS profile to use")
	flags.StringVar(&region, "region", "", "AWS region (uses default if not specified)")
	flags.DurationVar(&wait, "wait", 0, "Maximum time to wait for a remote job (overrides the project setting)")
	flags.StringVar(&jsonFile, "json-file", "", "Path to output the result as JSON (stdout if empty)")
	flags.BoolVar(&quiet, "quiet", false, "Suppress non-error output")
	flags.BoolVar(&verbose, "verbose", false, "Log every processed file")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report local and remote changes and conflicts",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	statusCmd.Flags().BoolVar(&statusLocal, "local", false, "Report local changes only")
	statusCmd.Flags().BoolVar(&statusRemote, "remote", false, "Report remote changes only")

	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Deploy local changes to the remote",
		Args:  cobra.NoArgs,
		RunE:  runPush,
	}
	pushCmd.Flags().BoolVar(&force, "force", false, "Push even when changes conflict")

	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "Retrieve remote changes into the workspace",
		Args:  cobra.NoArgs,
		RunE:  runPull,
	}
	pullCmd.Flags().BoolVar(&force, "force", false, "Pull over conflicts and overwrite ambiguous components")

	rootCmd.AddCommand(statusCmd, pushCmd, pullCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	req := status.Request{Local: statusLocal, Remote: statusRemote}
	if !req.Local && !req.Remote {
		req = status.Request{Local: true, Remote: true}
	}
	return run(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) (any, error) {
		return s.Status(ctx, req)
	})
}

func runPush(cmd *cobra.Command, _ []string) error {
	return run(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) (any, error) {
		return s.Push(ctx, syncer.PushOptions{Force: force})
	})
}

func runPull(cmd *cobra.Command, _ []string) error {
	return run(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) (any, error) {
		return s.Pull(ctx, syncer.PullOptions{Force: force})
	})
}

// run wires a Syncer, executes op and writes its JSON output, including partial results
// and failure details when op fails.
func run(ctx context.Context, op func(context.Context, *syncer.Syncer) (any, error)) error {
	l := logger.New(os.Stderr, logger.Options{Quiet: quiet, Verbose: verbose})

	s, err := newSyncer(ctx, l)
	if err != nil {
		l.Error("failed to initialize", "err", err)
		return writeOutput(describe(nil, err), err)
	}

	result, err := op(ctx, s)
	if err != nil {
		l.Error("command failed", "err", err)
		for _, hint := range errUtils.Hints(err) {
			l.Info(hint)
		}
	}
	return writeOutput(describe(result, err), err)
}

func newSyncer(ctx context.Context, l *log.Logger) (*syncer.Syncer, error) {
	if storeURI == "" {
		return nil, errUtils.Build(errUtils.ErrInvalidProject).
			WithExplanationf("no remote store given").
			WithHint("pass --store s3://bucket/prefix").
			Err()
	}
	id := remoteID
	if id == "" {
		id = storeURI
	}

	proj, err := project.Load(projectDir)
	if err != nil {
		return nil, err
	}
	if wait > 0 {
		cfg := proj.Config()
		cfg.Wait = wait
		if proj, err = project.New(proj.Root(), cfg); err != nil {
			return nil, err
		}
	}

	matcher, err := ignore.Load(proj.Root(), ignore.DirRule(proj.Root(), proj.Config().StateDir))
	if err != nil {
		return nil, err
	}
	statePath := proj.StatePath(id)
	tr, err := tracker.New(tracker.Options{
		Root:     proj.Root(),
		Packages: proj.Packages(),
		StateDir: statePath,
		Ignore:   matcher,
		Logger:   l,
	})
	if err != nil {
		return nil, err
	}
	adapter, err := workspace.New(workspace.Options{Project: proj, Tracker: tr, Logger: l})
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	store, err := s3store.NewFromConfig(ctx, storeURI, s3store.Options{
		Registry: adapter.Registry(),
		Logger:   l,
	}, configOpts...)
	if err != nil {
		return nil, err
	}

	return syncer.New(syncer.Options{
		Adapter:    adapter,
		Remote:     store,
		Watermarks: remote.NewFileWatermarkStore(statePath),
		Ignore:     matcher,
		Events:     events.NewBus(l),
		Logger:     l,
	}), nil
}

func describe(result any, err error) Output {
	out := Output{Result: result}
	if err == nil {
		return out
	}
	out.Error = err.Error()
	out.Hints = errUtils.Hints(err)

	var conflict *errUtils.ConflictError
	if errors.As(err, &conflict) {
		out.Conflicts = conflict.Entries
	}
	var partial *errUtils.PartialFailureError
	if errors.As(err, &partial) {
		out.Succeeded = partial.Succeeded
		out.Failures = partial.Failed
	}
	return out
}

// writeOutput writes out and returns opErr, or the write error when opErr is nil.
func writeOutput(out Output, opErr error) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.CombineErrors(opErr, errors.Wrap(err, "failed to marshal JSON"))
	}
	data = append(data, '\n')

	if jsonFile == "" {
		_, err = os.Stdout.Write(data)
	} else {
		err = os.WriteFile(jsonFile, data, 0o644)
	}
	if err != nil {
		return errors.CombineErrors(opErr, errors.Wrap(err, "failed to write result"))
	}
	return opErr
}
