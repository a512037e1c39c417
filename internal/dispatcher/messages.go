package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	userdomain "github.com/utilibot/utilibot/internal/user/domain"
)

// Selector kinds. The kind is the part of the selection payload before the
// first colon; the remainder carries entity ids.
const (
	SelUtility             = "util"
	SelTariffUtility       = "tariff_util"
	SelDeleteUtility       = "del_util"
	SelDeleteTariffUtility = "del_t_util"
	SelDeleteTariff        = "del_t"
	SelBackToTariffUtility = "back_to_del_tariff_util"
	SelAdminReadUser       = "admin_read_user"
	SelAdminReadUtility    = "admin_read_util"
	SelAdminPayUser        = "admin_pay_user"
)

const (
	msgAdminOnly      = "This action is available to administrators only."
	msgInternalError  = "Something went wrong, please try again."
	msgChooseFromMenu = "Please use the buttons above to make a choice."

	msgChooseUtility = "Choose a utility:"
	msgChooseUser    = "Choose a user:"
	msgNoUtilities   = "No utilities are configured yet. An administrator can add one with /add_utility."
	msgNoOtherUsers  = "No other participants have talked to the bot yet."

	msgEnterReading   = "Enter the meter reading (a non-negative number, e.g. 1234.5):"
	msgInvalidReading = "That does not look like a valid reading. Enter a non-negative number:"
	msgEnterPayment   = "Enter the payment amount (e.g. 1500.50):"
	msgInvalidPayment = "That does not look like a valid amount. Enter a positive number:"
	msgEnterTariff    = "Enter the rate per unit (e.g. 6.50):"
	msgInvalidTariff  = "That does not look like a valid rate. Enter a positive number:"

	msgEnterUtilityName = "Enter a name for the new utility (e.g. Electricity):"
	msgEmptyUtilityName = "The name cannot be empty. Enter a name:"

	msgUtilityNotFound = "That utility no longer exists."
	msgTariffNotFound  = "That tariff no longer exists."
	msgUserNotFound    = "That user no longer exists."

	msgNoTariff         = "No tariff is configured for this utility, so the reading was not recorded. Ask an administrator to set one with /set_tariff."
	msgDuplicateReading = "A reading for this utility at this moment is already recorded."

	msgUsageUserBalance = "Usage: /user_balance <chat id>"
)

func fmtMeterDecreased(previous decimal.Decimal) string {
	return fmt.Sprintf("A meter reading cannot be lower than the previous one (%s). Enter the value again:", previous.String())
}

func fmtDuplicateUtility(name string) string {
	return fmt.Sprintf("A utility named %q already exists. Enter a different name:", name)
}

func fmtDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// signedAmount renders a balance with an explicit sign, so zero and positive
// balances read as "+0.00" and "+12.50" in overview lists.
func signedAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s
}

func (d *Dispatcher) help(actor *userdomain.User) Response {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/submit_reading — submit a meter reading\n")
	b.WriteString("/add_payment — record a payment\n")
	b.WriteString("/balance — show your balance\n")
	if actor.IsAdmin {
		b.WriteString("\nAdministration:\n")
		b.WriteString("/add_utility — add a utility\n")
		b.WriteString("/set_tariff — set a tariff\n")
		b.WriteString("/delete_utility — delete a utility\n")
		b.WriteString("/delete_tariff — delete a tariff\n")
		b.WriteString("/list_utilities — list utilities\n")
		b.WriteString("/list_tariffs — list current tariffs\n")
		b.WriteString("/list_users — list users and balances\n")
		b.WriteString("/user_balance — show a user's statement\n")
		b.WriteString("/admin_submit_reading — submit a reading for a user\n")
		b.WriteString("/admin_add_payment — record a payment for a user\n")
	}
	return Response{Text: b.String()}
}
