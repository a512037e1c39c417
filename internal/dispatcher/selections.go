package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/utilibot/utilibot/internal/dialog"
	tariffdomain "github.com/utilibot/utilibot/internal/tariff/domain"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
	utilitydomain "github.com/utilibot/utilibot/internal/utility/domain"
)

func (d *Dispatcher) selUtilityForReading(ctx context.Context, actor *userdomain.User, arg string) Response {
	utilityID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgUtilityNotFound}
	}
	utility, err := d.utilities.GetByID(ctx, utilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AwaitingReadingValue{UtilityID: utility.ID}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("%s selected. %s", utility.Name, msgEnterReading)}
}

func (d *Dispatcher) selUtilityForTariff(ctx context.Context, actor *userdomain.User, arg string) Response {
	utilityID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgUtilityNotFound}
	}
	utility, err := d.utilities.GetByID(ctx, utilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AdminAwaitingTariffValue{UtilityID: utility.ID}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("%s selected. %s", utility.Name, msgEnterTariff)}
}

func (d *Dispatcher) selDeleteUtility(ctx context.Context, _ *userdomain.User, arg string) Response {
	utilityID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgUtilityNotFound}
	}
	utility, err := d.utilities.GetByID(ctx, utilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}
	if err := d.utilities.Delete(ctx, utility.ID); err != nil {
		switch {
		case errors.Is(err, utilitydomain.ErrUtilityInUse):
			return Response{Text: fmt.Sprintf("%q cannot be deleted: readings or charges already reference it.", utility.Name)}
		case errors.Is(err, utilitydomain.ErrUtilityNotFound):
			return Response{Text: msgUtilityNotFound}
		default:
			return d.failStorage(err)
		}
	}
	return Response{Text: fmt.Sprintf("Utility %q deleted.", utility.Name)}
}

func (d *Dispatcher) selChooseTariffToDelete(ctx context.Context, actor *userdomain.User, arg string) Response {
	utilityID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgUtilityNotFound}
	}
	utility, err := d.utilities.GetByID(ctx, utilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}
	tariffs, err := d.tariffs.ListByUtility(ctx, utility.ID)
	if err != nil {
		return d.failStorage(err)
	}
	if len(tariffs) == 0 {
		return Response{Text: fmt.Sprintf("%q has no tariffs.", utility.Name)}
	}

	options := make([]Option, 0, len(tariffs)+1)
	for _, t := range tariffs {
		options = append(options, Option{
			Label: fmt.Sprintf("%s (from %s)", t.Rate.String(), fmtDay(t.EffectiveFrom)),
			Data:  selector(SelDeleteTariff, t.ID),
		})
	}
	options = append(options, Option{Label: "« Back", Data: SelBackToTariffUtility})

	if err := d.states.Set(ctx, actor.ID, dialog.AdminDeletingTariff{UtilityID: utility.ID}); err != nil {
		return d.failStorage(err)
	}
	return Response{
		Text:    fmt.Sprintf("Choose a tariff of %q to delete:", utility.Name),
		Options: options,
	}
}

func (d *Dispatcher) selDeleteTariff(ctx context.Context, actor *userdomain.User, arg string) Response {
	tariffID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgTariffNotFound}
	}
	tariff, err := d.tariffs.GetByID(ctx, tariffID)
	if err != nil {
		if errors.Is(err, tariffdomain.ErrTariffNotFound) {
			return Response{Text: msgTariffNotFound}
		}
		return d.failStorage(err)
	}
	lastRemaining, err := d.tariffs.Delete(ctx, tariff.ID)
	if err != nil {
		if errors.Is(err, tariffdomain.ErrTariffNotFound) {
			return Response{Text: msgTariffNotFound}
		}
		return d.failStorage(err)
	}
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}

	text := fmt.Sprintf("Tariff %s (from %s) deleted.", tariff.Rate.String(), fmtDay(tariff.EffectiveFrom))
	if lastRemaining {
		text += "\n\nThat was the last tariff for this utility. New readings will be rejected until a tariff is set."
	}
	return Response{Text: text}
}

func (d *Dispatcher) selBackToTariffUtilities(ctx context.Context, actor *userdomain.User, _ string) Response {
	if err := d.states.Clear(ctx, actor.ID); err != nil {
		return d.failStorage(err)
	}
	options, err := d.tariffUtilityOptions(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(options) == 0 {
		return Response{Text: "There are no tariffs to delete."}
	}
	return Response{Text: "Choose a utility whose tariff you want to delete:", Options: options}
}

func (d *Dispatcher) selAdminReadUser(ctx context.Context, _ *userdomain.User, arg string) Response {
	targetID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgUserNotFound}
	}
	target, err := d.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return Response{Text: msgUserNotFound}
		}
		return d.failStorage(err)
	}
	utilities, err := d.utilities.List(ctx)
	if err != nil {
		return d.failStorage(err)
	}
	if len(utilities) == 0 {
		return Response{Text: msgNoUtilities}
	}
	options := make([]Option, 0, len(utilities))
	for _, u := range utilities {
		options = append(options, Option{
			Label: u.Name,
			Data:  selector(SelAdminReadUtility, target.ID, u.ID),
		})
	}
	return Response{
		Text:    fmt.Sprintf("User %d. %s", target.TelegramID, msgChooseUtility),
		Options: options,
	}
}

func (d *Dispatcher) selAdminReadUtility(ctx context.Context, actor *userdomain.User, arg string) Response {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return d.help(actor)
	}
	targetID, ok := parseID(parts[0])
	if !ok {
		return Response{Text: msgUserNotFound}
	}
	utilityID, ok := parseID(parts[1])
	if !ok {
		return Response{Text: msgUtilityNotFound}
	}

	target, err := d.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return Response{Text: msgUserNotFound}
		}
		return d.failStorage(err)
	}
	utility, err := d.utilities.GetByID(ctx, utilityID)
	if err != nil {
		if errors.Is(err, utilitydomain.ErrUtilityNotFound) {
			return Response{Text: msgUtilityNotFound}
		}
		return d.failStorage(err)
	}

	state := dialog.AdminAwaitingReadingValue{TargetUserID: target.ID, UtilityID: utility.ID}
	if err := d.states.Set(ctx, actor.ID, state); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("%s for user %d. %s", utility.Name, target.TelegramID, msgEnterReading)}
}

func (d *Dispatcher) selAdminPayUser(ctx context.Context, actor *userdomain.User, arg string) Response {
	targetID, ok := parseID(arg)
	if !ok {
		return Response{Text: msgUserNotFound}
	}
	target, err := d.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return Response{Text: msgUserNotFound}
		}
		return d.failStorage(err)
	}
	if err := d.states.Set(ctx, actor.ID, dialog.AdminAwaitingPaymentValue{TargetUserID: target.ID}); err != nil {
		return d.failStorage(err)
	}
	return Response{Text: fmt.Sprintf("User %d. %s", target.TelegramID, msgEnterPayment)}
}
