package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/auth"
	"github.com/harrisonrobin/taskdeck/pkg/config"
	"github.com/harrisonrobin/taskdeck/pkg/controller"
	"github.com/harrisonrobin/taskdeck/pkg/google"
	"github.com/harrisonrobin/taskdeck/pkg/index"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/orgmode"
	"github.com/harrisonrobin/taskdeck/pkg/view"
	"github.com/harrisonrobin/taskdeck/pkg/watch"
)

var deadlineLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// parseDeadline accepts RFC 3339, a local date and time, or a bare date
// which is due at the end of that day.
func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return d.Add(23*time.Hour + 59*time.Minute), nil
	}
	return time.Time{}, fmt.Errorf("invalid deadline '%s', use YYYY-MM-DD or 'YYYY-MM-DD HH:MM'", s)
}

// resolve reloads the list and finds the task ref points to.
func (a *app) resolve(cmd *cobra.Command, ref string) (controller.TaskView, error) {
	if err := a.ctrl.Reload(cmd.Context()); err != nil {
		return controller.TaskView{}, err
	}
	return view.Resolve(a.ctrl.Tasks(), ref)
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ctrl.Reload(cmd.Context()); err != nil {
				return err
			}
			return view.RenderTasks(a.out, a.ctrl.Tasks(), a.loc)
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			return view.RenderTask(a.out, v, a.loc)
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var description, deadline, priority string
	cmd := &cobra.Command{
		Use:   "add NAME...",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := controller.CreateForm{
				Name:        strings.Join(args, " "),
				Description: description,
			}
			p, err := model.ParsePriority(priority)
			if err != nil {
				return err
			}
			form.Priority = p
			if deadline != "" {
				d, err := parseDeadline(deadline, a.loc)
				if err != nil {
					return err
				}
				form.Deadline = &d
			}

			task, err := a.ctrl.Create(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %s %s\n", view.ShortID(task.ID), task.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Task description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline, e.g. 2025-03-14 or '2025-03-14 17:30'")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Low, Medium, High or Critical")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var name, description, deadline, priority string
	var clearDeadline bool
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deadline != "" && clearDeadline {
				return errors.New("--deadline and --clear-deadline are mutually exclusive")
			}
			v, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			form, ok, err := a.ctrl.BeginEdit(v.ID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no task with id '%s'", args[0])
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				form.Name = name
			}
			if flags.Changed("description") {
				form.Description = description
			}
			if flags.Changed("priority") {
				p, err := model.ParsePriority(priority)
				if err != nil {
					a.ctrl.CancelEdit()
					return err
				}
				form.Priority = p
			}
			switch {
			case clearDeadline:
				form.ClearDeadline()
			case deadline != "":
				d, err := parseDeadline(deadline, a.loc)
				if err != nil {
					a.ctrl.CancelEdit()
					return err
				}
				form.SetDeadline(d)
			}

			task, err := a.ctrl.SubmitEdit(cmd.Context(), form)
			if err != nil {
				a.ctrl.CancelEdit()
				return err
			}
			fmt.Fprintf(a.out, "Updated %s %s\n", view.ShortID(task.ID), task.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description, empty to remove")
	cmd.Flags().StringVar(&deadline, "deadline", "", "New deadline")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "Remove the deadline")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority")
	return cmd
}

func (a *app) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "done ID",
		Aliases: []string{"toggle"},
		Short:   "Toggle a task between done and not done",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			task, err := a.ctrl.ToggleDone(cmd.Context(), v.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s is now %s\n", view.ShortID(task.ID), task.Name, task.Status)
			return nil
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.ctrl.Remove(cmd.Context(), v.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s %s\n", view.ShortID(v.ID), v.Name)
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload and print the list on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = a.cfg.WatchSchedule
			}
			render := func() {
				fmt.Fprintf(a.out, "\n== %s ==\n", time.Now().In(a.loc).Format("2006-01-02 15:04:05"))
				if err := view.RenderTasks(a.out, a.ctrl.Tasks(), a.loc); err != nil {
					log.WithError(err).Warn("watch: render failed")
				}
			}
			w, err := watch.New(a.ctrl, schedule, render, log.StandardLogger())
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule, e.g. '@every 30s' (overrides config)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.org",
		Short: "Create tasks from the TODO and DONE headlines of an Org file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := orgmode.ParseFile(args[0], a.loc)
			if err != nil {
				return err
			}
			failed := 0
			for _, e := range entries {
				task, err := a.ctrl.Create(cmd.Context(), e.Form)
				if err != nil {
					log.WithError(err).WithField("line", e.Line).Debug("import: create failed")
					fmt.Fprintf(a.errOut, "%s:%d: skipped %q\n", args[0], e.Line, e.Form.Name)
					failed++
					continue
				}
				if e.Done {
					if _, err := a.ctrl.ToggleDone(cmd.Context(), task.ID); err != nil {
						fmt.Fprintf(a.errOut, "%s:%d: created %q but could not mark it done\n", args[0], e.Line, e.Form.Name)
						failed++
						continue
					}
				}
				fmt.Fprintf(a.out, "Created %s %s\n", view.ShortID(task.ID), task.Name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d entries were not imported", failed, len(entries))
			}
			return nil
		},
	}
}

func (a *app) calendarCmd() *cobra.Command {
	var calendarName string
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Mirror tasks with deadlines to Google Calendar",
	}
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Create, update and delete calendar events to match the task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if calendarName == "" {
				calendarName = a.cfg.Calendar
			}
			if err := a.ctrl.Reload(ctx); err != nil {
				return err
			}

			dir, err := config.Dir()
			if err != nil {
				return err
			}
			flow := &auth.Flow{Dir: dir, Scopes: google.Scopes, Out: a.out}
			httpClient, err := flow.Client(ctx)
			if err != nil {
				return err
			}
			client, err := google.NewClient(ctx, httpClient, calendarName)
			if err != nil {
				return err
			}
			idx, err := index.NewEventIndex(dir)
			if err != nil {
				return fmt.Errorf("failed to open event index: %w", err)
			}

			report, err := google.NewMirror(client, idx, log.StandardLogger()).Sync(ctx, a.ctrl.Tasks())
			fmt.Fprintf(a.out, "Calendar '%s': %d created, %d updated, %d unchanged, %d deleted, %d failed\n",
				calendarName, report.Created, report.Updated, report.Unchanged, report.Deleted, report.Failed)
			return err
		},
	}
	sync.Flags().StringVar(&calendarName, "calendar", "", "Google Calendar name (overrides config)")
	cmd.AddCommand(sync)
	return cmd
}

func (a *app) authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize taskdeck to manage Google Calendar events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return err
			}
			flow := &auth.Flow{Dir: dir, Scopes: google.Scopes, Out: a.out}
			if err := flow.Reset(); err != nil {
				return err
			}
			if _, err := flow.Client(cmd.Context()); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(a.out, "Authentication successful, token saved in %s\n", dir)
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
		// Skips the root setup so a broken file can still be inspected
		// and repaired.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.setupLogging()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := json.MarshalIndent(a.cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(b))
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a setting: base_url, timeout, sorting, calendar or watch_schedule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveFile(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s set to %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.AddCommand(show, set)
	return cmd
}
