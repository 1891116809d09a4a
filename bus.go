package patternbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/saylorsolutions/patternbus/channel"
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
	"github.com/saylorsolutions/patternbus/transport/inprocess"
)

// Bus combines an event, command and request channel behind one API.
type Bus struct {
	events   *channel.EventChannel
	commands *channel.CommandChannel
	requests *channel.RequestChannel
}

type busConfig struct {
	events        *channel.EventChannel
	commands      *channel.CommandChannel
	requests      *channel.RequestChannel
	channelOpts   []channel.Option
	transportOpts []inprocess.Option
}

// Option configures a [Bus].
type Option func(conf *busConfig) error

// WithEventChannel uses ch for events instead of creating a new channel.
func WithEventChannel(ch *channel.EventChannel) Option {
	return func(conf *busConfig) error {
		if ch == nil {
			return errors.New("nil event channel")
		}
		conf.events = ch
		return nil
	}
}

// WithCommandChannel uses ch for commands instead of creating a new channel.
func WithCommandChannel(ch *channel.CommandChannel) Option {
	return func(conf *busConfig) error {
		if ch == nil {
			return errors.New("nil command channel")
		}
		conf.commands = ch
		return nil
	}
}

// WithRequestChannel uses ch for requests instead of creating a new channel.
func WithRequestChannel(ch *channel.RequestChannel) Option {
	return func(conf *busConfig) error {
		if ch == nil {
			return errors.New("nil request channel")
		}
		conf.requests = ch
		return nil
	}
}

// WithChannelOptions sets the options used for channels the [Bus] creates.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(conf *busConfig) error {
		conf.channelOpts = append(conf.channelOpts, opts...)
		return nil
	}
}

// WithTransportOptions sets the options for transports mounted by [NewInProcess].
func WithTransportOptions(opts ...inprocess.Option) Option {
	return func(conf *busConfig) error {
		conf.transportOpts = append(conf.transportOpts, opts...)
		return nil
	}
}

func newConfig(opts []Option) *busConfig {
	conf := &busConfig{}
	for _, opt := range opts {
		if err := opt(conf); err != nil {
			panic(fmt.Sprintf("invalid bus configuration: %v", err))
		}
	}
	if conf.events == nil {
		conf.events = channel.NewEventChannel(conf.channelOpts...)
	}
	if conf.commands == nil {
		conf.commands = channel.NewCommandChannel(conf.channelOpts...)
	}
	if conf.requests == nil {
		conf.requests = channel.NewRequestChannel(conf.channelOpts...)
	}
	return conf
}

// New creates a [Bus] without any transports mounted.
// Panics if an [Option] is invalid.
func New(opts ...Option) *Bus {
	conf := newConfig(opts)
	return &Bus{
		events:   conf.events,
		commands: conf.commands,
		requests: conf.requests,
	}
}

// NewInProcess creates a [Bus] with an in-process transport mounted on the empty pattern of each channel.
// Panics if an [Option] is invalid.
func NewInProcess(opts ...Option) (*Bus, error) {
	conf := newConfig(opts)
	b := &Bus{
		events:   conf.events,
		commands: conf.commands,
		requests: conf.requests,
	}
	factory := inprocess.Factory(conf.transportOpts...)
	all := pattern.Pattern{}
	if err := b.events.UseFactory(all, factory); err != nil {
		return nil, fmt.Errorf("failed to mount event transport: %w", err)
	}
	if err := b.commands.UseFactory(all, factory); err != nil {
		return nil, fmt.Errorf("failed to mount command transport: %w", err)
	}
	if err := b.requests.UseFactory(all, factory); err != nil {
		return nil, fmt.Errorf("failed to mount request transport: %w", err)
	}
	return b, nil
}

func (b *Bus) Events() *channel.EventChannel {
	return b.events
}

func (b *Bus) Commands() *channel.CommandChannel {
	return b.commands
}

func (b *Bus) Requests() *channel.RequestChannel {
	return b.requests
}

// OnError observes the error streams of all three channels.
// The returned function removes every observer.
func (b *Bus) OnError(fn func(err error)) (cancel func()) {
	cancels := []func(){
		b.events.OnError(fn),
		b.commands.OnError(fn),
		b.requests.OnError(fn),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Observe registers observer for events, including command completions.
// The returned [channel.HandlerID] removes it with Events().Remove.
func (b *Bus) Observe(p pattern.Pattern, observer any) (channel.HandlerID, error) {
	return b.events.Observe(p, observer)
}

// Broadcast sends an event.
func (b *Bus) Broadcast(p pattern.Pattern, payload any) error {
	return b.events.Broadcast(p, payload)
}

// QueryHandler registers handler to respond to queries that p covers.
func (b *Bus) QueryHandler(p pattern.Pattern, handler any) (channel.HandlerID, error) {
	return b.requests.Respond(p, handler)
}

// Query sends a request and returns a future for the response.
func (b *Bus) Query(p pattern.Pattern, payload any) (*syncx.Future[any], error) {
	return b.requests.Request(p, payload)
}

// CommandHandler registers handler for commands that p covers.
// The handler receives the payload given to [Bus.SendCommand], and its outcome is broadcast as a completed [Action] on the command's pattern.
func (b *Bus) CommandHandler(p pattern.Pattern, handler any) (channel.HandlerID, error) {
	h, err := channel.AsHandler(handler)
	if err != nil {
		return 0, err
	}
	return b.commands.Receive(p, channel.CallbackFunc(func(payload any, done channel.Done) {
		action, err := toAction(payload)
		if err != nil {
			done(nil, err)
			return
		}
		var once sync.Once
		complete := func(res any, err error) {
			once.Do(func() {
				b.complete(action, res, err, done)
			})
		}
		defer func() {
			if r := recover(); r != nil {
				complete(nil, fmt.Errorf("%w: %v", channel.ErrHandlerPanic, r))
			}
		}()
		h.Invoke(action.Payload, func(res any, err error) {
			if aw, ok := res.(channel.Awaitable); ok && err == nil {
				aw.OnComplete(complete)
				return
			}
			complete(res, err)
		})
	}))
}

func (b *Bus) complete(action *Action, res any, err error, done channel.Done) {
	completed := action.WithResult(res)
	if err != nil {
		completed = action.WithError(err)
	}
	if berr := b.events.Broadcast(completed.Pattern, completed); berr != nil {
		done(nil, errors.Join(err, fmt.Errorf("failed to broadcast command completion: %w", berr)))
		return
	}
	if err != nil {
		done(nil, err)
		return
	}
	done(true, nil)
}

// completionObserver waits for the completed copy of one [Action].
// It's a pointer so it can be removed by identity once the completion arrives.
type completionObserver struct {
	bus     *Bus
	pattern pattern.Pattern
	id      string
	result  *syncx.Future[any]
}

func (o *completionObserver) Invoke(payload any, done channel.Done) {
	defer done(nil, nil)
	completed, err := toAction(payload)
	if err != nil || completed.ID != o.id {
		return
	}
	o.finish(completed.Result, completed.Error)
}

func (o *completionObserver) finish(res any, err error) {
	o.bus.events.Remove(o.pattern, o)
	o.result.ResolveErr(res, err)
}

// SendCommand sends a command wrapped in an [Action].
// The returned future resolves with the command handler's result once the completed action is broadcast,
// or is rejected with the handler's error.
// It's also rejected if the command can't be delivered, such as when no handler matches p.
func (b *Bus) SendCommand(p pattern.Pattern, payload any) (*syncx.Future[any], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	action := NewAction(p, payload)
	obs := &completionObserver{
		bus:     b,
		pattern: action.Pattern,
		id:      action.ID,
		result:  syncx.NewFuture[any](),
	}
	if _, err := b.events.Observe(obs.pattern, obs); err != nil {
		return nil, err
	}
	delivered, err := b.commands.Channel().Request(action.Pattern, action)
	if err != nil {
		b.events.Remove(obs.pattern, obs)
		return nil, err
	}
	delivered.OnComplete(func(_ any, err error) {
		if err != nil {
			obs.finish(nil, err)
		}
	})
	return obs.result, nil
}
