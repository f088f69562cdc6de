package valueobject

import "github.com/ignatzorin/centaur-backend/internal/pkg/apperror"

// transitionTable описывает допустимые переходы конечного автомата статусов.
type transitionTable[S ~string] map[S][]S

func (t transitionTable[S]) allows(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t transitionTable[S]) known(s S) bool {
	_, ok := t[s]
	return ok
}

// OrderStatus - статус заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusAccepted   OrderStatus = "accepted"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusDisputed   OrderStatus = "disputed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = transitionTable[OrderStatus]{
	OrderStatusPending:    {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:   {OrderStatusInProgress, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusDisputed:   {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) IsValid() bool { return orderTransitions.known(s) }

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return orderTransitions.allows(s, next)
}

// IsPayable сообщает, можно ли оплачивать заказ в этом статусе.
func (s OrderStatus) IsPayable() bool {
	return s == OrderStatusPending || s == OrderStatusAccepted
}

func NewOrderStatus(status string) (OrderStatus, error) {
	s := OrderStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("некорректный статус заказа")
	}
	return s, nil
}

// EscrowStatus - состояние удерживаемых средств по заказу.
// Переходы монотонны: released никогда не возвращается в held или
// partial_release, refunded терминален.
type EscrowStatus string

const (
	EscrowStatusPending        EscrowStatus = "pending"
	EscrowStatusHeld           EscrowStatus = "held"
	EscrowStatusPartialRelease EscrowStatus = "partial_release"
	EscrowStatusReleased       EscrowStatus = "released"
	EscrowStatusRefunded       EscrowStatus = "refunded"
)

var escrowTransitions = transitionTable[EscrowStatus]{
	EscrowStatusPending:        {EscrowStatusHeld, EscrowStatusRefunded},
	EscrowStatusHeld:           {EscrowStatusPartialRelease, EscrowStatusReleased, EscrowStatusRefunded},
	EscrowStatusPartialRelease: {EscrowStatusPartialRelease, EscrowStatusReleased, EscrowStatusRefunded},
	EscrowStatusReleased:       {},
	EscrowStatusRefunded:       {},
}

func (s EscrowStatus) IsValid() bool { return escrowTransitions.known(s) }

func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	return escrowTransitions.allows(s, next)
}

// IsTerminal сообщает, что средства уже окончательно распределены.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// HoldsFunds сообщает, что у платформы есть удерживаемые средства.
func (s EscrowStatus) HoldsFunds() bool {
	return s == EscrowStatusHeld || s == EscrowStatusPartialRelease
}

// AfterRelease возвращает статус после выплаты продавцу: released, если
// выплачена вся сумма, иначе partial_release.
func AfterRelease(releasedTotal, orderTotal float64) EscrowStatus {
	if RoundMoney(releasedTotal) >= RoundMoney(orderTotal) {
		return EscrowStatusReleased
	}
	return EscrowStatusPartialRelease
}

// MilestoneStatus - статус этапа заказа.
type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusSubmitted MilestoneStatus = "submitted"
	MilestoneStatusApproved  MilestoneStatus = "approved"
	MilestoneStatusPaid      MilestoneStatus = "paid"
)

var milestoneTransitions = transitionTable[MilestoneStatus]{
	MilestoneStatusPending:   {MilestoneStatusSubmitted},
	MilestoneStatusSubmitted: {MilestoneStatusApproved, MilestoneStatusPaid, MilestoneStatusPending},
	MilestoneStatusApproved:  {MilestoneStatusPaid},
	MilestoneStatusPaid:      {},
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	return milestoneTransitions.allows(s, next)
}

// RetainerStatus - статус ретейнера.
type RetainerStatus string

const (
	RetainerStatusPending   RetainerStatus = "pending"
	RetainerStatusActive    RetainerStatus = "active"
	RetainerStatusPaused    RetainerStatus = "paused"
	RetainerStatusCancelled RetainerStatus = "cancelled"
)

var retainerTransitions = transitionTable[RetainerStatus]{
	RetainerStatusPending:   {RetainerStatusActive, RetainerStatusCancelled},
	RetainerStatusActive:    {RetainerStatusPaused, RetainerStatusCancelled},
	RetainerStatusPaused:    {RetainerStatusActive, RetainerStatusCancelled},
	RetainerStatusCancelled: {},
}

func (s RetainerStatus) CanTransitionTo(next RetainerStatus) bool {
	return retainerTransitions.allows(s, next)
}

// TimesheetStatus - статус недельной записи табеля.
type TimesheetStatus string

const (
	TimesheetStatusDraft     TimesheetStatus = "draft"
	TimesheetStatusSubmitted TimesheetStatus = "submitted"
	TimesheetStatusApproved  TimesheetStatus = "approved"
	TimesheetStatusDisputed  TimesheetStatus = "disputed"
	TimesheetStatusPaid      TimesheetStatus = "paid"
)

var timesheetTransitions = transitionTable[TimesheetStatus]{
	TimesheetStatusDraft:     {TimesheetStatusSubmitted},
	TimesheetStatusSubmitted: {TimesheetStatusApproved, TimesheetStatusDisputed},
	TimesheetStatusApproved:  {TimesheetStatusPaid},
	TimesheetStatusDisputed:  {},
	TimesheetStatusPaid:      {},
}

func (s TimesheetStatus) CanTransitionTo(next TimesheetStatus) bool {
	return timesheetTransitions.allows(s, next)
}

// SlotStatus - статус дня в календаре доступности.
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusBlocked   SlotStatus = "blocked"
)

// IsSettable сообщает, можно ли выставить статус вручную (booked выставляется
// только бронированием).
func (s SlotStatus) IsSettable() bool {
	return s == SlotStatusAvailable || s == SlotStatusBlocked
}

// Toggle возвращает противоположный ручной статус.
func (s SlotStatus) Toggle() SlotStatus {
	if s == SlotStatusAvailable {
		return SlotStatusBlocked
	}
	return SlotStatusAvailable
}

// OTJTStatus - статус записи часов обучения.
type OTJTStatus string

const (
	OTJTStatusPending  OTJTStatus = "pending"
	OTJTStatusApproved OTJTStatus = "approved"
	OTJTStatusRejected OTJTStatus = "rejected"
	OTJTStatusQueried  OTJTStatus = "queried"
)

var otjtTransitions = transitionTable[OTJTStatus]{
	OTJTStatusPending:  {OTJTStatusApproved, OTJTStatusRejected, OTJTStatusQueried},
	OTJTStatusQueried:  {OTJTStatusPending},
	OTJTStatusApproved: {},
	OTJTStatusRejected: {},
}

func (s OTJTStatus) CanTransitionTo(next OTJTStatus) bool {
	return otjtTransitions.allows(s, next)
}

// IsReviewDecision сообщает, является ли статус решением наставника.
func (s OTJTStatus) IsReviewDecision() bool {
	return s == OTJTStatusApproved || s == OTJTStatusRejected || s == OTJTStatusQueried
}
