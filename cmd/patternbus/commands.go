package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/saylorsolutions/patternbus"
	"github.com/saylorsolutions/patternbus/channel"
	"github.com/saylorsolutions/patternbus/cli"
	"github.com/saylorsolutions/patternbus/config"
	"github.com/saylorsolutions/patternbus/logging"
	"github.com/saylorsolutions/patternbus/metrics"
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
	"github.com/saylorsolutions/patternbus/transport/inprocess"
	flag "github.com/spf13/pflag"
)

const patternHelp = "Patterns are written as comma separated key:value pairs, like role:user,cmd:create."

type app struct {
	logOut     io.Writer
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newCommandSet(logOut io.Writer) *cli.CommandSet {
	a := &app{logOut: logOut}
	set := cli.NewCommandSet("patternbus")
	set.Before(a.setup)

	var registered cli.PatternsValue
	match := set.AddCommand("match", "Lists the registered patterns that match a query, most specific first", "m")
	match.Usage("[-r PATTERN]... QUERY\n%s", patternHelp)
	match.Flags().VarP(&registered, "register", "r", "Registers a pattern, may be given more than once")
	a.configFlag(match)
	match.Does(func(_ context.Context, flags *flag.FlagSet, printer *cli.Printer) error {
		query, err := cli.PatternArg(flags.Args(), 0)
		if err != nil {
			return err
		}
		m := pattern.NewComparableMatcher[string]()
		for _, p := range registered.Patterns {
			m.Add(p, "{"+p.String()+"}")
		}
		return printer.Result(m.Find(query))
	})

	var observed cli.PatternsValue
	broadcast := set.AddCommand("broadcast", "Broadcasts an event and prints what each observer receives", "b")
	broadcast.Usage("[-o PATTERN]... PATTERN [PAYLOAD]\n%s\nThe payload is decoded as JSON if possible. Without -o, a single observer is registered on PATTERN.", patternHelp)
	broadcast.Flags().VarP(&observed, "observe", "o", "Registers an observer on a pattern, may be given more than once")
	a.configFlag(broadcast)
	broadcast.Does(func(ctx context.Context, flags *flag.FlagSet, printer *cli.Printer) error {
		p, err := cli.PatternArg(flags.Args(), 0)
		if err != nil {
			return err
		}
		bus, finish, err := a.newBus(ctx, printer)
		if err != nil {
			return err
		}
		defer finish()
		deliveries, err := a.broadcast(ctx, bus, p, cli.PayloadArg(flags.Args(), 1), observed.Patterns)
		if err != nil {
			return err
		}
		return printer.Result(deliveries)
	})

	var sendHandler cli.PatternValue
	send := set.AddCommand("send", "Sends a command to an echo handler and prints its result", "s")
	send.Usage("[-H PATTERN] PATTERN [PAYLOAD]\n%s\nThe echo handler is registered on PATTERN unless -H is given.", patternHelp)
	send.Flags().VarP(&sendHandler, "handler", "H", "Registers the echo handler on this pattern")
	a.configFlag(send)
	send.Does(func(ctx context.Context, flags *flag.FlagSet, printer *cli.Printer) error {
		p, err := cli.PatternArg(flags.Args(), 0)
		if err != nil {
			return err
		}
		bus, finish, err := a.newBus(ctx, printer)
		if err != nil {
			return err
		}
		defer finish()
		handlerPattern := orPattern(sendHandler.Pattern, p)
		if _, err := bus.CommandHandler(handlerPattern, echo(handlerPattern)); err != nil {
			return err
		}
		result, err := bus.SendCommand(p, cli.PayloadArg(flags.Args(), 1))
		if err != nil {
			return err
		}
		return a.awaitResult(ctx, result, printer)
	})

	var requestHandler cli.PatternValue
	request := set.AddCommand("request", "Sends a request to an echo responder and prints the response", "r", "query")
	request.Usage("[-H PATTERN] PATTERN [PAYLOAD]\n%s\nThe echo responder is registered on PATTERN unless -H is given.", patternHelp)
	request.Flags().VarP(&requestHandler, "handler", "H", "Registers the echo responder on this pattern")
	a.configFlag(request)
	request.Does(func(ctx context.Context, flags *flag.FlagSet, printer *cli.Printer) error {
		p, err := cli.PatternArg(flags.Args(), 0)
		if err != nil {
			return err
		}
		bus, finish, err := a.newBus(ctx, printer)
		if err != nil {
			return err
		}
		defer finish()
		handlerPattern := orPattern(requestHandler.Pattern, p)
		if _, err := bus.QueryHandler(handlerPattern, echo(handlerPattern)); err != nil {
			return err
		}
		result, err := bus.Query(p, cli.PayloadArg(flags.Args(), 1))
		if err != nil {
			return err
		}
		return a.awaitResult(ctx, result, printer)
	})

	return set
}

func (a *app) configFlag(cmd *cli.Command) {
	cmd.Flags().StringVarP(&a.configPath, "config", "c", "", "Reads settings from this YAML file")
}

func (a *app) setup(context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger, err := logging.New(a.logOut, level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// newBus creates an in-process bus from the loaded settings.
// The returned function waits for scheduled handlers to finish, and prints metrics if they're enabled.
func (a *app) newBus(ctx context.Context, printer *cli.Printer) (*patternbus.Bus, func(), error) {
	sched, stop, err := a.cfg.Scheduler.Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	channelOpts := []channel.Option{
		channel.WithScheduler(sched),
		channel.WithLogger(a.logger),
	}
	var (
		collector *metrics.Collector
		registry  *prometheus.Registry
	)
	if a.cfg.Metrics.Enabled {
		collector = metrics.NewCollector(a.cfg.Metrics.Namespace)
		registry = prometheus.NewRegistry()
		if err := registry.Register(collector); err != nil {
			return nil, nil, err
		}
		channelOpts = append(channelOpts, channel.WithInstrumentation(collector))
	}
	var transportOpts []inprocess.Option
	if a.cfg.Transport.CopyPayloads {
		transportOpts = append(transportOpts, inprocess.CopyPayloads())
	}
	bus, err := patternbus.NewInProcess(
		patternbus.WithChannelOptions(channelOpts...),
		patternbus.WithTransportOptions(transportOpts...),
	)
	if err != nil {
		return nil, nil, err
	}
	bus.OnError(func(err error) {
		a.logger.Error("Channel error", "error", err)
	})
	finish := func() {
		if err := stop(a.cfg.RequestTimeout); err != nil {
			a.logger.Warn("Scheduled handlers didn't finish in time", "error", err)
		}
		if registry != nil {
			printMetrics(registry, printer)
		}
	}
	return bus, finish, nil
}

type delivery struct {
	Observer string `json:"observer"`
	Payload  any    `json:"payload"`
}

func (a *app) broadcast(ctx context.Context, bus *patternbus.Bus, p pattern.Pattern, payload any, observers []pattern.Pattern) ([]delivery, error) {
	if len(observers) == 0 {
		observers = []pattern.Pattern{p}
	}
	received := make(chan delivery, len(observers))
	for _, op := range observers {
		name := "{" + op.String() + "}"
		if _, err := bus.Observe(op, func(payload any) {
			received <- delivery{Observer: name, Payload: payload}
		}); err != nil {
			return nil, err
		}
	}
	expected := len(bus.Events().Channel().FindHandlers(p))
	if err := bus.Broadcast(p, payload); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	deliveries := make([]delivery, 0, expected)
	for len(deliveries) < expected {
		select {
		case d := <-received:
			deliveries = append(deliveries, d)
		case <-ctx.Done():
			return nil, fmt.Errorf("received %d of %d deliveries: %w", len(deliveries), expected, ctx.Err())
		}
	}
	slices.SortStableFunc(deliveries, func(x, y delivery) int {
		return cmp.Compare(x.Observer, y.Observer)
	})
	return deliveries, nil
}

func (a *app) awaitResult(ctx context.Context, result *syncx.Future[any], printer *cli.Printer) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	val, err := result.AwaitContext(ctx)
	if err != nil {
		return err
	}
	return printer.Result(val)
}

func echo(handlerPattern pattern.Pattern) func(any) (any, error) {
	name := "{" + handlerPattern.String() + "}"
	return func(payload any) (any, error) {
		return map[string]any{
			"handler": name,
			"payload": payload,
		}, nil
	}
}

func orPattern(p, fallback pattern.Pattern) pattern.Pattern {
	if p == nil {
		return fallback
	}
	return p
}

func printMetrics(registry *prometheus.Registry, printer *cli.Printer) {
	families, err := registry.Gather()
	if err != nil {
		printer.Errorln(err)
		return
	}
	printer.Println("METRICS:")
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var labels string
			for _, pair := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", pair.GetName(), pair.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				printer.Printf("  %s%s %g\n", family.GetName(), labels, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				printer.Printf("  %s%s count=%d sum=%g\n", family.GetName(), labels, m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
}
