package models

// Платформенные роли пользователя
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Роли участника внутри foundry
const (
	FoundryRoleFounder    = "Founder"
	FoundryRoleExecutive  = "Executive"
	FoundryRoleMember     = "Member"
	FoundryRoleApprentice = "Apprentice"
)

// Источники записи в календаре доступности
const (
	SlotSourceManual  = "manual"
	SlotSourceBulk    = "bulk"
	SlotSourceBooking = "booking"
)

// Статусы обучения (apprenticeship enrollment)
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusPaused    = "paused"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusWithdrawn = "withdrawn"
)

// ValidPlatformRoles список допустимых платформенных ролей
var ValidPlatformRoles = map[string]struct{}{
	RoleMember: {},
	RoleAdmin:  {},
}
