package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/config"
	"github.com/harrisonrobin/taskdeck/pkg/controller"
	"github.com/harrisonrobin/taskdeck/pkg/todoapi"
)

const envDebug = "TASKDECK_DEBUG"

// app is the state shared by all subcommands, built once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer
	loc    *time.Location

	baseURL string
	timeout string
	sorting string
	debug   bool

	cfg      *config.Config
	ctrl     *controller.Controller
	// notified is the last error already shown through a notice.
	notified error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskdeck",
		Short:         "taskdeck - manage tasks on a remote task service",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.baseURL, "base-url", "", "Task service URL (overrides config)")
	flags.StringVar(&a.timeout, "timeout", "", "Per-request timeout, e.g. 10s (overrides config)")
	flags.StringVar(&a.sorting, "sort", "", "Sort order: CreateAsc, CreateDesc, PriorityAsc, PriorityDesc, DeadlineAsc or DeadlineDesc")
	flags.BoolVar(&a.debug, "debug", envBool(envDebug), "Enable debug logging")

	root.AddCommand(
		a.listCmd(),
		a.showCmd(),
		a.addCmd(),
		a.editCmd(),
		a.doneCmd(),
		a.rmCmd(),
		a.watchCmd(),
		a.importCmd(),
		a.calendarCmd(),
		a.authCmd(),
		a.configCmd(),
	)
	return root
}

// envBool reports whether the variable holds a true value such as "1" or
// "true". Unset or unparsable values are false.
func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func (a *app) setupLogging() {
	log.SetOutput(a.errOut)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	if a.debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}

// setup loads config, applies flag overrides and wires the controller.
// Validation runs after the overrides so a flag can replace a bad value.
func (a *app) setup() error {
	a.setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.timeout != "" {
		cfg.Timeout = a.timeout
	}
	if a.sorting != "" {
		cfg.Sorting = a.sorting
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return err
	}
	client, err := todoapi.NewClient(cfg.BaseURL, todoapi.WithTimeout(timeout))
	if err != nil {
		return err
	}

	opts := []controller.Option{controller.WithNotifier(controller.NotifierFunc(a.notify))}
	if sort, ok := cfg.SortOrder(); ok {
		opts = append(opts, controller.WithSort(sort))
	}
	a.ctrl = controller.New(client, opts...)
	return nil
}

// notify prints a failed operation; the underlying error is only logged.
func (a *app) notify(n controller.Notice) {
	a.notified = n.Err
	log.WithError(n.Err).WithFields(log.Fields{"op": n.Op, "task": n.TaskID}).Debug("operation failed")
	fmt.Fprintf(a.errOut, "%s failed: %s\n", n.Op, n.Message)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{out: out, errOut: errOut, loc: time.Local}
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if a.notified == nil || !errors.Is(err, a.notified) {
			fmt.Fprintf(errOut, "Error: %s\n", todoapi.Message(err))
		}
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
