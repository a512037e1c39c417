// Package dispatcher interprets inbound chat events against each user's
// persisted dialogue state and produces the outbound response. It is the
// only writer of conversation state and the only caller of the billing
// engine.
package dispatcher

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/utilibot/utilibot/internal/billing/domain"
	"github.com/utilibot/utilibot/internal/clock"
	"github.com/utilibot/utilibot/internal/dialog"
	ledgerdomain "github.com/utilibot/utilibot/internal/ledger/domain"
	paymentdomain "github.com/utilibot/utilibot/internal/payment/domain"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
	"github.com/utilibot/utilibot/pkg/keyedmutex"
	"github.com/utilibot/utilibot/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Option is one selectable menu entry: a label for rendering and an opaque
// selector the transport echoes back on selection.
type Option struct {
	Label string
	Data  string
}

// Response is what the transport renders back to the user. Every inbound
// event yields a response; errors are never silently dropped.
type Response struct {
	Text    string
	Options []Option
}

type command struct {
	adminOnly bool
	fn        func(ctx context.Context, actor *userdomain.User, args []string) Response
}

type selectionRoute struct {
	adminOnly bool
	fn        func(ctx context.Context, actor *userdomain.User, arg string) Response
}

type textHandler func(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response

type Param struct {
	fx.In

	Log       *zap.Logger
	Users     userdomain.Service
	Utilities utilitydomain.Service
	Tariffs   tariffdomain.Service
	Billing   billingdomain.Service
	Payments  paymentdomain.Service
	Ledger    ledgerdomain.Service
	States    *dialog.Store
	Clock     clock.Clock
	Metrics   *telemetry.Metrics `optional:"true"`
}

type Dispatcher struct {
	log       *zap.Logger
	users     userdomain.Service
	utilities utilitydomain.Service
	tariffs   tariffdomain.Service
	billing   billingdomain.Service
	payments  paymentdomain.Service
	ledger    ledgerdomain.Service
	states    *dialog.Store
	clock     clock.Clock
	metrics   *telemetry.Metrics

	// userLocks serializes the read-state, act, write-state cycle per
	// user. The transport gives no ordering guarantee, not even for
	// rapid repeats from the same user.
	userLocks *keyedmutex.KeyedMutex

	commands   map[string]command
	selections map[string]selectionRoute
	texts      map[dialog.Step]textHandler
	adminSteps map[dialog.Step]bool
}

func New(p Param) *Dispatcher {
	d := &Dispatcher{
		log:       p.Log.Named("dispatcher"),
		users:     p.Users,
		utilities: p.Utilities,
		tariffs:   p.Tariffs,
		billing:   p.Billing,
		payments:  p.Payments,
		ledger:    p.Ledger,
		states:    p.States,
		clock:     p.Clock,
		metrics:   p.Metrics,
		userLocks: keyedmutex.New(),
	}

	d.commands = map[string]command{
		"start":                {fn: d.cmdStart},
		"submit_reading":       {fn: d.cmdSubmitReading},
		"add_payment":          {fn: d.cmdAddPayment},
		"balance":              {fn: d.cmdBalance},
		"add_utility":          {adminOnly: true, fn: d.cmdAddUtility},
		"set_tariff":           {adminOnly: true, fn: d.cmdSetTariff},
		"delete_utility":       {adminOnly: true, fn: d.cmdDeleteUtility},
		"delete_tariff":        {adminOnly: true, fn: d.cmdDeleteTariff},
		"list_utilities":       {adminOnly: true, fn: d.cmdListUtilities},
		"list_tariffs":         {adminOnly: true, fn: d.cmdListTariffs},
		"list_users":           {adminOnly: true, fn: d.cmdListUsers},
		"user_balance":         {adminOnly: true, fn: d.cmdUserBalance},
		"admin_submit_reading": {adminOnly: true, fn: d.cmdAdminSubmitReading},
		"admin_add_payment":    {adminOnly: true, fn: d.cmdAdminAddPayment},
	}

	d.selections = map[string]selectionRoute{
		SelUtility:             {fn: d.selUtilityForReading},
		SelTariffUtility:       {adminOnly: true, fn: d.selUtilityForTariff},
		SelDeleteUtility:       {adminOnly: true, fn: d.selDeleteUtility},
		SelDeleteTariffUtility: {adminOnly: true, fn: d.selChooseTariffToDelete},
		SelDeleteTariff:        {adminOnly: true, fn: d.selDeleteTariff},
		SelBackToTariffUtility: {adminOnly: true, fn: d.selBackToTariffUtilities},
		SelAdminReadUser:       {adminOnly: true, fn: d.selAdminReadUser},
		SelAdminReadUtility:    {adminOnly: true, fn: d.selAdminReadUtility},
		SelAdminPayUser:        {adminOnly: true, fn: d.selAdminPayUser},
	}

	// The transition table: (current step, text event) -> handler.
	// Selection-driven steps keep their entry so stray typing re-prompts
	// instead of resetting the flow.
	d.texts = map[dialog.Step]textHandler{
		dialog.StepAwaitingUtilityChoice:       d.textChooseFromMenu,
		dialog.StepAwaitingReadingValue:        d.textReadingValue,
		dialog.StepAwaitingPaymentAmount:       d.textPaymentAmount,
		dialog.StepAdminAddUtilityName:         d.textUtilityName,
		dialog.StepAdminAwaitingTariffUtility:  d.textChooseFromMenu,
		dialog.StepAdminAwaitingTariffValue:    d.textTariffValue,
		dialog.StepAdminChoosingUserForReading: d.textChooseFromMenu,
		dialog.StepAdminAwaitingReadingValue:   d.textAdminReadingValue,
		dialog.StepAdminChoosingUserForPayment: d.textChooseFromMenu,
		dialog.StepAdminAwaitingPaymentValue:   d.textAdminPaymentValue,
		dialog.StepAdminDeletingTariff:         d.textChooseFromMenu,
	}

	d.adminSteps = map[dialog.Step]bool{
		dialog.StepAdminAddUtilityName:         true,
		dialog.StepAdminAwaitingTariffUtility:  true,
		dialog.StepAdminAwaitingTariffValue:    true,
		dialog.StepAdminChoosingUserForReading: true,
		dialog.StepAdminAwaitingReadingValue:   true,
		dialog.StepAdminChoosingUserForPayment: true,
		dialog.StepAdminAwaitingPaymentValue:   true,
		dialog.StepAdminDeletingTariff:         true,
	}

	return d
}

// HandleCommand processes a slash command event.
func (d *Dispatcher) HandleCommand(ctx context.Context, chatID int64, name string, args []string) Response {
	d.incEvent("command")
	return d.withUser(ctx, chatID, func(actor *userdomain.User) Response {
		cmd, ok := d.commands[strings.ToLower(name)]
		if !ok {
			return d.help(actor)
		}
		if cmd.adminOnly && !actor.IsAdmin {
			return Response{Text: msgAdminOnly}
		}
		return cmd.fn(ctx, actor, args)
	})
}

// HandleSelection processes a menu selection event. The selector encodes an
// action kind and entity ids, e.g. "util:123".
func (d *Dispatcher) HandleSelection(ctx context.Context, chatID int64, data string) Response {
	d.incEvent("selection")
	return d.withUser(ctx, chatID, func(actor *userdomain.User) Response {
		kind, arg := splitSelector(data)
		route, ok := d.selections[kind]
		if !ok {
			return d.help(actor)
		}
		if route.adminOnly && !actor.IsAdmin {
			return Response{Text: msgAdminOnly}
		}
		return route.fn(ctx, actor, arg)
	})
}

// HandleText processes a free-text event against the current dialogue step.
func (d *Dispatcher) HandleText(ctx context.Context, chatID int64, text string) Response {
	d.incEvent("text")
	return d.withUser(ctx, chatID, func(actor *userdomain.User) Response {
		state, err := d.states.Get(ctx, actor.ID)
		if err != nil {
			return d.failStorage(err)
		}
		if state == nil {
			return d.help(actor)
		}

		step := state.Step()
		if d.adminSteps[step] && !actor.IsAdmin {
			// Only the state being attempted is cleared.
			if err := d.states.Clear(ctx, actor.ID); err != nil {
				return d.failStorage(err)
			}
			return Response{Text: msgAdminOnly}
		}

		handler, ok := d.texts[step]
		if !ok {
			return d.help(actor)
		}
		return handler(ctx, actor, state, text)
	})
}

// withUser runs fn inside the caller's critical section with the actor row
// resolved (created on first contact).
func (d *Dispatcher) withUser(ctx context.Context, chatID int64, fn func(actor *userdomain.User) Response) Response {
	key := strconv.FormatInt(chatID, 10)
	d.userLocks.Lock(key)
	defer d.userLocks.Unlock(key)

	actor, err := d.users.GetOrCreate(ctx, chatID)
	if err != nil {
		return d.failStorage(err)
	}
	return fn(actor)
}

func (d *Dispatcher) failStorage(err error) Response {
	d.log.Error("storage failure", zap.Error(err))
	if d.metrics != nil {
		d.metrics.IncStorageFailure()
	}
	return Response{Text: msgInternalError}
}

func (d *Dispatcher) incEvent(kind string) {
	if d.metrics != nil {
		d.metrics.IncEvent(kind)
	}
}

func (d *Dispatcher) rejectInput(step dialog.Step) {
	if d.metrics != nil {
		d.metrics.IncRejectedInput(string(step))
	}
}

func parseID(raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func splitSelector(data string) (kind, arg string) {
	if i := strings.Index(data, ":"); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, ""
}

var Module = fx.Module("dispatcher",
	fx.Provide(New),
)
