// Package dialog persists the position of each user inside a multi-step
// conversation. The transport delivers every message as an independent
// request, so this store is the only memory the dialogue has between hops.
package dialog

import (
	"github.com/bwmarrin/snowflake"
)

type Step string

const (
	StepAwaitingUtilityChoice       Step = "awaiting_utility_choice"
	StepAwaitingReadingValue        Step = "awaiting_reading_value"
	StepAwaitingPaymentAmount       Step = "awaiting_payment_amount"
	StepAdminAddUtilityName         Step = "admin_add_utility_name"
	StepAdminAwaitingTariffUtility  Step = "admin_awaiting_utility_for_tariff"
	StepAdminAwaitingTariffValue    Step = "admin_awaiting_tariff_value"
	StepAdminChoosingUserForReading Step = "admin_choosing_user_for_reading"
	StepAdminAwaitingReadingValue   Step = "admin_awaiting_reading_value"
	StepAdminChoosingUserForPayment Step = "admin_choosing_user_for_payment"
	StepAdminAwaitingPaymentValue   Step = "admin_awaiting_payment_value"
	StepAdminDeletingTariff         Step = "admin_deleting_tariff"
)

// State is one variant per dialogue step. Each variant declares exactly the
// context it needs, so a step can never observe a half-filled bag of keys.
type State interface {
	Step() Step
}

type AwaitingUtilityChoice struct{}

func (AwaitingUtilityChoice) Step() Step { return StepAwaitingUtilityChoice }

type AwaitingReadingValue struct {
	UtilityID snowflake.ID `json:"utility_id"`
}

func (AwaitingReadingValue) Step() Step { return StepAwaitingReadingValue }

type AwaitingPaymentAmount struct{}

func (AwaitingPaymentAmount) Step() Step { return StepAwaitingPaymentAmount }

type AdminAddUtilityName struct{}

func (AdminAddUtilityName) Step() Step { return StepAdminAddUtilityName }

type AdminAwaitingTariffUtility struct{}

func (AdminAwaitingTariffUtility) Step() Step { return StepAdminAwaitingTariffUtility }

type AdminAwaitingTariffValue struct {
	UtilityID snowflake.ID `json:"utility_id"`
}

func (AdminAwaitingTariffValue) Step() Step { return StepAdminAwaitingTariffValue }

type AdminChoosingUserForReading struct{}

func (AdminChoosingUserForReading) Step() Step { return StepAdminChoosingUserForReading }

type AdminAwaitingReadingValue struct {
	TargetUserID snowflake.ID `json:"target_user_id"`
	UtilityID    snowflake.ID `json:"utility_id"`
}

func (AdminAwaitingReadingValue) Step() Step { return StepAdminAwaitingReadingValue }

type AdminChoosingUserForPayment struct{}

func (AdminChoosingUserForPayment) Step() Step { return StepAdminChoosingUserForPayment }

type AdminAwaitingPaymentValue struct {
	TargetUserID snowflake.ID `json:"target_user_id"`
}

func (AdminAwaitingPaymentValue) Step() Step { return StepAdminAwaitingPaymentValue }

type AdminDeletingTariff struct {
	UtilityID snowflake.ID `json:"utility_id"`
}

func (AdminDeletingTariff) Step() Step { return StepAdminDeletingTariff }

// stateFactories maps step names back to their concrete variant so a stored
// record can be rehydrated. Unknown step names decode to nil (treated idle).
var stateFactories = map[Step]func() State{
	StepAwaitingUtilityChoice:       func() State { return &AwaitingUtilityChoice{} },
	StepAwaitingReadingValue:        func() State { return &AwaitingReadingValue{} },
	StepAwaitingPaymentAmount:       func() State { return &AwaitingPaymentAmount{} },
	StepAdminAddUtilityName:         func() State { return &AdminAddUtilityName{} },
	StepAdminAwaitingTariffUtility:  func() State { return &AdminAwaitingTariffUtility{} },
	StepAdminAwaitingTariffValue:    func() State { return &AdminAwaitingTariffValue{} },
	StepAdminChoosingUserForReading: func() State { return &AdminChoosingUserForReading{} },
	StepAdminAwaitingReadingValue:   func() State { return &AdminAwaitingReadingValue{} },
	StepAdminChoosingUserForPayment: func() State { return &AdminChoosingUserForPayment{} },
	StepAdminAwaitingPaymentValue:   func() State { return &AdminAwaitingPaymentValue{} },
	StepAdminDeletingTariff:         func() State { return &AdminDeletingTariff{} },
}
