// queuectl runs queue operations against the configured store from the command line.
// It is meant for operators: provisioning rooms, forcing a reset or a reconcile pass,
// and inspecting the board without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/config"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/logging"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/platform"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/queue"
)

const usage = `Usage: queuectl <command> [flags]

Commands:
  provision   create missing rooms (--count, --doctors)
  allocate    issue the next queue number for today
  register    attach patient details to a ticket (--number, --name, --phone, --age, --gender, --notes)
  assign      put a patient into a room (--room, optional --patient; default is next in line)
  complete    finish the consultation in a room (--room)
  cancel      cancel a patient (--patient, --reason)
  pause       toggle a room between available and paused (--room)
  reset       archive earlier days and release every room
  reconcile   repair rooms whose state disagrees with their patient
  board       print rooms and waiting patients
  stats       print counts and averages (--day)
`

var errUsage = errors.New("usage")

type opener func(ctx context.Context) (*queue.Service, func(), error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, openService); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openService(ctx context.Context) (*queue.Service, func(), error) {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, "console", "queuectl")
	if err != nil {
		return nil, nil, err
	}
	res, err := platform.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	res.AttachPublishers(ctx, cfg, logger)
	svc := queue.NewService(res.Store, queue.Options{
		StartNumber: cfg.QueueStartNumber,
		MaxNumber:   cfg.MaxQueueNumber,
		Location:    cfg.Location,
		MaxAttempts: cfg.TxMaxAttempts,
		Logger:      logger,
		Publisher:   res.Publisher,
	})
	cleanup := func() {
		res.Close()
		_ = logger.Sync()
	}
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("memory store selected, changes are discarded on exit", zap.String("driver", cfg.StoreDriver))
	}
	return svc, cleanup, nil
}

func run(ctx context.Context, args []string, out io.Writer, open opener) error {
	if len(args) == 0 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	flags := pflag.NewFlagSet("queuectl "+command, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	var (
		count   = flags.Int("count", 5, "number of rooms to provision")
		doctors = flags.StringSlice("doctors", nil, "doctor names, in room order")
		number  = flags.Int("number", 0, "queue number to register")
		name    = flags.String("name", "", "patient name")
		phone   = flags.String("phone", "", "patient phone number")
		age     = flags.Int("age", 0, "patient age")
		gender  = flags.String("gender", "", "patient gender")
		notes   = flags.String("notes", "", "free-form notes")
		roomID  = flags.String("room", "", "room id, e.g. R1")
		patient = flags.String("patient", "", "patient id")
		reason  = flags.String("reason", "", "cancellation reason")
		day     = flags.String("day", "", "day as YYYY-MM-DD, defaults to today")
	)
	if err := flags.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %s", errUsage, flags.Arg(0))
	}

	needRoom := func() error {
		if strings.TrimSpace(*roomID) == "" {
			return fmt.Errorf("%w: --room is required", errUsage)
		}
		return nil
	}

	var action func(svc *queue.Service) (interface{}, error)
	switch command {
	case "provision":
		action = func(svc *queue.Service) (interface{}, error) {
			return svc.ProvisionRooms(ctx, *count, *doctors)
		}
	case "allocate":
		action = func(svc *queue.Service) (interface{}, error) { return svc.Allocate(ctx) }
	case "register":
		action = func(svc *queue.Service) (interface{}, error) {
			return svc.Register(ctx, *number, queue.Registration{Name: *name, Phone: *phone, Age: *age, Gender: *gender, Notes: *notes})
		}
	case "assign":
		if err := needRoom(); err != nil {
			return err
		}
		action = func(svc *queue.Service) (interface{}, error) {
			if *patient == "" {
				return svc.AssignNext(ctx, *roomID)
			}
			return svc.Assign(ctx, *patient, *roomID)
		}
	case "complete":
		if err := needRoom(); err != nil {
			return err
		}
		action = func(svc *queue.Service) (interface{}, error) { return svc.Complete(ctx, *roomID) }
	case "cancel":
		if *patient == "" {
			return fmt.Errorf("%w: --patient is required", errUsage)
		}
		action = func(svc *queue.Service) (interface{}, error) { return svc.Cancel(ctx, *patient, *reason) }
	case "pause":
		if err := needRoom(); err != nil {
			return err
		}
		action = func(svc *queue.Service) (interface{}, error) {
			status, err := svc.TogglePause(ctx, *roomID)
			return map[string]string{"room_id": *roomID, "status": status}, err
		}
	case "reset":
		action = func(svc *queue.Service) (interface{}, error) { return svc.RunDailyReset(ctx) }
	case "reconcile":
		action = func(svc *queue.Service) (interface{}, error) { return svc.Reconcile(ctx) }
	case "board":
		action = func(svc *queue.Service) (interface{}, error) { return svc.Board(ctx) }
	case "stats":
		action = func(svc *queue.Service) (interface{}, error) { return svc.Stats(ctx, *day) }
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	svc, cleanup, err := open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := action(svc)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
