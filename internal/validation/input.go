package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinDisplayNameLength = 2
	MaxDisplayNameLength = 100
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxReasonLength      = 2000
	MaxNotesLength       = 500
	MaxAmount            = 1000000.0
	MaxHourlyRate        = 10000.0
	MaxWeeklyHours       = 168.0
	MaxBulkDates         = 366
	MaxCalendarRangeDays = 366
	MinPasswordLength    = 8
)

const DateLayout = "2006-01-02"

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return fmt.Errorf("некорректный формат email")
	}
	if len(local) == 0 || len(local) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domain) == 0 || len(domain) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(local) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domain) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}
	return nil
}

// ValidatePassword требует не менее 8 символов, заглавную и строчную букву и цифру.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", MinPasswordLength)
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("пароль должен содержать хотя бы одну заглавную букву")
	case !hasLower:
		return fmt.Errorf("пароль должен содержать хотя бы одну строчную букву")
	case !hasNumber:
		return fmt.Errorf("пароль должен содержать хотя бы одну цифру")
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateTitle проверяет заголовок заказа, этапа или ретейнера.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("заголовок обязателен")
	}
	return ValidateLength("заголовок", title, MinTitleLength, MaxTitleLength)
}

// ValidateOptionalText проверяет необязательное текстовое поле.
func ValidateOptionalText(fieldName string, value *string, max int) error {
	if value == nil {
		return nil
	}
	return ValidateLength(fieldName, strings.TrimSpace(*value), 0, max)
}

// ValidateAmount проверяет денежную сумму.
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("сумма должна быть положительной")
	}
	if amount > MaxAmount {
		return fmt.Errorf("сумма не может превышать %.0f", MaxAmount)
	}
	return nil
}

// ValidateHourlyRate проверяет почасовую ставку.
func ValidateHourlyRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("почасовая ставка должна быть положительной")
	}
	if rate > MaxHourlyRate {
		return fmt.Errorf("почасовая ставка не может превышать %.0f", MaxHourlyRate)
	}
	return nil
}

// ValidateWeeklyHours проверяет часы за неделю.
func ValidateWeeklyHours(hours float64) error {
	if hours <= 0 {
		return fmt.Errorf("количество часов должно быть положительным")
	}
	if hours > MaxWeeklyHours {
		return fmt.Errorf("в неделе не больше %.0f часов", MaxWeeklyHours)
	}
	return nil
}

// ParseDate разбирает дату в формате YYYY-MM-DD (UTC).
func ParseDate(fieldName, value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s должна быть в формате ГГГГ-ММ-ДД", fieldName)
	}
	return d, nil
}

// ParseDates разбирает список дат, убирая повторы и сохраняя порядок.
func ParseDates(values []string) ([]time.Time, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("список дат пуст")
	}
	if len(values) > MaxBulkDates {
		return nil, fmt.Errorf("за раз можно изменить не более %d дат", MaxBulkDates)
	}
	seen := make(map[string]struct{}, len(values))
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := ParseDate("дата", v)
		if err != nil {
			return nil, err
		}
		key := d.Format(DateLayout)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, d)
	}
	return dates, nil
}

// ValidateDateRange проверяет диапазон дат календаря.
func ValidateDateRange(from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("конец диапазона раньше начала")
	}
	if to.Sub(from) > MaxCalendarRangeDays*24*time.Hour {
		return fmt.Errorf("диапазон не может быть длиннее %d дней", MaxCalendarRangeDays)
	}
	return nil
}

// WeekStart возвращает понедельник недели, в которую попадает дата.
func WeekStart(d time.Time) time.Time {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// DateOnly отбрасывает время и часовой пояс.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
