package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/utilibot/utilibot/internal/dialog"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
)

func (d *Dispatcher) cmdStart(ctx context.Context, actor *userdomain.User, _ []string) Response {
	// /start also cancels whatever flow was in flight.
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	greeting := "Hi! I track meter readings and payments for shared utilities.\n\n"
	if actor.IsAdmin {
		greeting = "Hi! You are an administrator.\n\n"
	}
	help := d.help(actor)
	help.Text = greeting + help.Text
	return help
}

func (d *Dispatcher) cmdSubmitReading(ctx context.Context, actor *userdomain.User, _ []string) Response {
	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(utilities) == 0 {
		return Response{Text: msgNoUtilities}
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AwaitingUtilityChoice{}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: msgChooseUtility, Options: utilityOptions(utilities, SelUtility)}
}

func (d *Dispatcher) cmdAddPayment(ctx context.Context, actor *userdomain.User, _ []string) Response {
	if err := d.states.Set(ctx, actor.ID, dialog.AwaitingPaymentAmount{}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: msgEnterPayment}
}

func (d *Dispatcher) cmdBalance(ctx context.Context, actor *userdomain.User, _ []string) Response {
	balance, err := d.ledger.Balance(ctx, actor.ID)
	if err != nil {
		return d.failStorage(err)
	}
	switch {
	case balance.Net.IsPositive():
		return Response{Text: fmt.Sprintf("You are in credit: %s.", balance.Net.StringFixed(2))}
	case balance.Net.IsNegative():
		return Response{Text: fmt.Sprintf("You owe %s.", balance.Net.Neg().StringFixed(2))}
	default:
		return Response{Text: "Your balance is settled: 0.00."}
	}
}

func (d *Dispatcher) cmdAddUtility(ctx context.Context, actor *userdomain.User, _ []string) Response {
	if err := d.states.Set(ctx, actor.ID, dialog.AdminAddUtilityName{}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: msgEnterUtilityName}
}

func (d *Dispatcher) cmdSetTariff(ctx context.Context, actor *userdomain.User, _ []string) Response {
	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(utilities) == 0 {
		return Response{Text: "There are no utilities yet. Add one with /add_utility first."}
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AdminAwaitingTariffUtility{}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: msgChooseUtility, Options: utilityOptions(utilities, SelTariffUtility)}
}

func (d *Dispatcher) cmdDeleteUtility(ctx context.Context, _ *userdomain.User, _ []string) Response {
	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(utilities) == 0 {
		return Response{Text: "There are no utilities to delete."}
	}
	return Response{
		Text:    "Choose a utility to delete. Utilities with recorded readings or charges cannot be deleted.",
		Options: utilityOptions(utilities, SelDeleteUtility),
	}
}

func (d *Dispatcher) cmdDeleteTariff(ctx context.Context, _ *userdomain.User, _ []string) Response {
	options, err := d.tariffUtilityOptions(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(options) == 0 {
		return Response{Text: "There are no tariffs to delete."}
	}
	return Response{Text: "Choose a utility whose tariff you want to delete:", Options: options}
}

func (d *Dispatcher) cmdListUtilities(ctx context.Context, _ *userdomain.User, _ []string) Response {
	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(utilities) == 0 {
		return Response{Text: "No utilities are configured."}
	}
	var b strings.Builder
	b.WriteString("Utilities:\n")
	for _, u := range utilities {
		fmt.Fprintf(&b, "• %s (%s)\n", u.Name, u.Unit)
	}
	return Response{Text: b.String()}
}

func (d *Dispatcher) cmdListTariffs(ctx context.Context, _ *userdomain.User, _ []string) Response {
	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	var b strings.Builder
	b.WriteString("Current tariffs:\n")
	found := false
	for _, u := range utilities {
		tariff, err := d.tariffs.Latest(ctx, u.ID)
		if err != nil {
			return d.failStorage(err)
		}
		if tariff == nil {
			continue
		}
		found = true
		fmt.Fprintf(&b, "• %s: %s per %s (effective %s)\n",
			u.Name, tariff.Rate.String(), u.Unit, fmtDay(tariff.EffectiveFrom))
	}
	if !found {
		return Response{Text: "No tariffs are set for any utility."}
	}
	return Response{Text: b.String()}
}

func (d *Dispatcher) cmdListUsers(ctx context.Context, _ *userdomain.User, _ []string) Response {
	balances, err := d.ledger.ListBalances(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(balances) == 0 {
		return Response{Text: "No users yet."}
	}
	var b strings.Builder
	b.WriteString("Users:\n")
	for _, ub := range balances {
		fmt.Fprintf(&b, "• ID %d | balance %s\n", ub.TelegramID, signedAmount(ub.Net))
	}
	return Response{Text: b.String()}
}

func (d *Dispatcher) cmdUserBalance(ctx context.Context, _ *userdomain.User, args []string) Response {
	if len(args) == 0 {
		return Response{Text: msgUsageUserBalance}
	}
	telegramID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return Response{Text: msgUsageUserBalance}
	}
	target, err := d.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return Response{Text: fmt.Sprintf("No user with chat id %d.", telegramID)}
		}
		return d.failStorage(err)
	}

	statement, err := d.ledger.Statement(ctx, target.ID, 5)
	if err != nil {
		return d.failStorage(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User %d\n", target.TelegramID)
	fmt.Fprintf(&b, "Charged: %s | Paid: %s | Balance: %s\n",
		statement.Balance.TotalCharged.StringFixed(2),
		statement.Balance.TotalPaid.StringFixed(2),
		signedAmount(statement.Balance.Net))
	if len(statement.Charges) > 0 {
		b.WriteString("\nRecent charges:\n")
		for _, c := range statement.Charges {
			fmt.Fprintf(&b, "• %s — %s (%s)\n", c.UtilityName, c.Amount.StringFixed(2), fmtDay(c.PeriodEnd))
		}
	}
	if len(statement.Payments) > 0 {
		b.WriteString("\nRecent payments:\n")
		for _, p := range statement.Payments {
			fmt.Fprintf(&b, "• %s (%s)\n", p.Amount.StringFixed(2), fmtDay(p.Timestamp))
		}
	}
	return Response{Text: b.String()}
}

func (d *Dispatcher) cmdAdminSubmitReading(ctx context.Context, actor *userdomain.User, _ []string) Response {
	others, err := d.users.ListOthers(ctx, actor.ID)
	if err != nil {
		return d.failStorage(err)
	}
	if len(others) == 0 {
		return Response{Text: msgNoOtherUsers}
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AdminChoosingUserForReading{}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: msgChooseUser, Options: userOptions(others, SelAdminReadUser)}
}

func (d *Dispatcher) cmdAdminAddPayment(ctx context.Context, actor *userdomain.User, _ []string) Response {
	others, err := d.users.ListOthers(ctx, actor.ID)
	if err != nil {
		return d.failStorage(err)
	}
	if len(others) == 0 {
		return Response{Text: msgNoOtherUsers}
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AdminChoosingUserForPayment{}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: msgChooseUser, Options: userOptions(others, SelAdminPayUser)}
}

// tariffUtilityOptions lists only utilities that still have tariffs, as
// targets for tariff deletion.
func (d *Dispatcher) tariffUtilityOptions(ctx context.Context) ([]Option, error) {
	ids, err := d.tariffs.UtilityIDsWithTariffs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	withTariff := make(map[snowflake.ID]bool, len(ids))
	for _, id := range ids {
		withTariff[id] = true
	}

	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return nil, err
	}
	var options []Option
	for _, u := range utilities {
		if withTariff[u.ID] {
			options = append(options, Option{Label: u.Name, Data: selector(SelDeleteTariffUtility, u.ID)})
		}
	}
	return options, nil
}

func utilityOptions(utilities []utilitydomain.Utility, kind string) []Option {
	options := make([]Option, 0, len(utilities))
	for _, u := range utilities {
		options = append(options, Option{Label: u.Name, Data: selector(kind, u.ID)})
	}
	return options
}

func userOptions(users []userdomain.User, kind string) []Option {
	options := make([]Option, 0, len(users))
	for _, u := range users {
		options = append(options, Option{
			Label: fmt.Sprintf("ID %d", u.TelegramID),
			Data:  selector(kind, u.ID),
		})
	}
	return options
}

func selector(kind string, ids ...snowflake.ID) string {
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, kind)
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ":")
}
