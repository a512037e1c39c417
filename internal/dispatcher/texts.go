package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/utilibot/utilibot/internal/billing/domain"
	"github.com/utilibot/utilibot/internal/dialog"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
)

// parseDecimal accepts both "." and "," as the decimal separator.
func parseDecimal(text string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	return decimal.NewFromString(normalized)
}

func (d *Dispatcher) textChooseFromMenu(_ context.Context, _ *userdomain.User, _ dialog.State, _ string) Response {
	return Response{Text: msgChooseFromMenu}
}

func (d *Dispatcher) textReadingValue(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response {
	st, ok := state.(dialog.AwaitingReadingValue)
	if !ok {
		return d.help(actor)
	}
	return d.submitReading(ctx, actor, actor, st.UtilityID, text, state.Step())
}

func (d *Dispatcher) textAdminReadingValue(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response {
	st, ok := state.(dialog.AdminAwaitingReadingValue)
	if !ok {
		return d.help(actor)
	}
	target, err := d.users.GetByID(ctx, st.TargetUserID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			if err := d.states.Clear(ctx, actor.ID); err != nil {
				return d.failStorage(err)
			}
			return Response{Text: msgUserNotFound}
		}
		return d.failStorage(err)
	}
	return d.submitReading(ctx, actor, target, st.UtilityID, text, state.Step())
}

// submitReading parses and records a reading for the target user. The actor
// stays in the value step on recoverable input errors and leaves the flow on
// success or on terminal errors.
func (d *Dispatcher) submitReading(ctx context.Context, actor, target *userdomain.User, utilityID snowflake.ID, text string, step dialog.Step) Response {
	value, err := parseDecimal(text)
	if err != nil || value.IsNegative() {
		d.rejectInput(step)
		return Response{Text: msgInvalidReading}
	}

	utility, err := d.utilities.GetByID(ctx, utilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			if err := d.states.Clear(ctx, actor.ID); err != nil {
				return d.failStorage(err)
			}
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}

	outcome, err := d.billing.RecordReading(ctx, billingdomain.RecordReadingRequest{
		UserID:    target.ID,
		UtilityID: utility.ID,
		Value:     value,
		Timestamp: d.clock.Now(),
	})
	if err != nil {
		return d.readingError(ctx, actor, target, utility, step, err)
	}

	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: d.readingOutcomeText(actor, target, utility, outcome)}
}

func (d *Dispatcher) readingError(ctx context.Context, actor, target *userdomain.User, utility *utilitydomain.Utility, step dialog.Step, err error) Response {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidValue):
		d.rejectInput(step)
		return Response{Text: msgInvalidReading}
	case errors.Is(err, billingdomain.ErrMeterDecreased):
		d.rejectInput(step)
		previous, lcErr := d.billing.LastConfirmed(ctx, target.ID, utility.ID)
		if lcErr != nil || previous == nil {
			return Response{Text: "A meter reading cannot be lower than the previous one. Enter the value again:"}
		}
		return Response{Text: fmtMeterDecreased(previous.Value)}
	case errors.Is(err, billingdomain.ErrNoTariff):
		if err := d.states.Clear(ctx, actor.ID); err != nil {
			return d.failStorage(err)
		}
		return Response{Text: msgNoTariff}
	case errors.Is(err, billingdomain.ErrDuplicateReading):
		if err := d.states.Clear(ctx, actor.ID); err != nil {
			return d.failStorage(err)
		}
		return Response{Text: msgDuplicateReading}
	default:
		return d.failStorage(err)
	}
}

func (d *Dispatcher) readingOutcomeText(actor, target *userdomain.User, utility *utilitydomain.Utility, outcome billingdomain.Outcome) string {
	prefix := ""
	if actor.ID != target.ID {
		prefix = fmt.Sprintf("For user %d: ", target.TelegramID)
	}
	switch outcome.Kind {
	case billingdomain.OutcomeBaseline:
		return prefix + fmt.Sprintf("First reading for %s recorded (%s %s). It sets the starting point; nothing was billed.",
			utility.Name, outcome.Reading.Value.String(), utility.Unit)
	case billingdomain.OutcomeNoChange:
		return prefix + fmt.Sprintf("Reading for %s accepted. No consumption since the last reading, nothing was billed.", utility.Name)
	default:
		c := outcome.Charge
		return prefix + fmt.Sprintf("Reading for %s recorded. Consumption %s %s, charged %s.",
			utility.Name, c.Consumption.String(), utility.Unit, c.Amount.StringFixed(2))
	}
}

func (d *Dispatcher) textPaymentAmount(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response {
	amount, err := parseDecimal(text)
	if err != nil || !amount.IsPositive() {
		d.rejectInput(state.Step())
		return Response{Text: msgInvalidPayment}
	}
	payment, err := d.payments.Record(ctx, actor.ID, amount, d.clock.Now(), "")
	if err != nil {
		return d.failStorage(err)
	}
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("Payment of %s recorded.", payment.Amount.StringFixed(2))}
}

func (d *Dispatcher) textAdminPaymentValue(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response {
	st, ok := state.(dialog.AdminAwaitingPaymentValue)
	if !ok {
		return d.help(actor)
	}
	amount, err := parseDecimal(text)
	if err != nil || !amount.IsPositive() {
		d.rejectInput(state.Step())
		return Response{Text: msgInvalidPayment}
	}

	target, err := d.users.GetByID(ctx, st.TargetUserID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			if err := d.states.Clear(ctx, actor.ID); err != nil {
				return d.failStorage(err)
			}
			return Response{Text: msgUserNotFound}
		}
		return d.failStorage(err)
	}

	payment, err := d.payments.Record(ctx, target.ID, amount, d.clock.Now(), "recorded by administrator")
	if err != nil {
		return d.failStorage(err)
	}
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("Payment of %s recorded for user %d.", payment.Amount.StringFixed(2), target.TelegramID)}
}

func (d *Dispatcher) textUtilityName(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response {
	name := strings.TrimSpace(text)
	if name == "" {
		d.rejectInput(state.Step())
		return Response{Text: msgEmptyUtilityName}
	}
	utility, err := d.utilities.Create(ctx, name, utilitydomain.DefaultUnit)
	if err != nil {
		switch {
		case errors.Is(err, utilitydomain.ErrDuplicateName):
			d.rejectInput(state.Step())
			return Response{Text: fmtDuplicateUtility(name)}
		case errors.Is(err, utilitydomain.ErrInvalidName):
			d.rejectInput(state.Step())
			return Response{Text: msgEmptyUtilityName}
		default:
			return d.failStorage(err)
		}
	}
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("Utility %q added. Set its tariff with /set_tariff.", utility.Name)}
}

func (d *Dispatcher) textTariffValue(ctx context.Context, actor *userdomain.User, state dialog.State, text string) Response {
	st, ok := state.(dialog.AdminAwaitingTariffValue)
	if !ok {
		return d.help(actor)
	}
	rate, err := parseDecimal(text)
	if err != nil || !rate.IsPositive() {
		d.rejectInput(state.Step())
		return Response{Text: msgInvalidTariff}
	}

	utility, err := d.utilities.GetByID(ctx, st.UtilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			if err := d.states.Clear(ctx, actor.ID); err != nil {
				return d.failStorage(err)
			}
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}

	tariff, err := d.tariffs.Set(ctx, utility.ID, rate, d.clock.Now())
	if err != nil {
		return d.failStorage(err)
	}
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("Tariff for %s set: %s per %s, effective immediately.",
		utility.Name, tariff.Rate.String(), utility.Unit)}
}
