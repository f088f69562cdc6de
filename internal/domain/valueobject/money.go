package valueobject

import (
	"fmt"
	"math"
	"strings"

	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
)

type Money struct {
	Amount   float64
	Currency string
}

func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.Validation("сумма не может быть отрицательной")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "GBP"
	}
	if len(currency) != 3 {
		return Money{}, apperror.Validation("код валюты должен состоять из трёх букв")
	}
	return Money{Amount: RoundMoney(amount), Currency: currency}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%s %.2f", m.Currency, m.Amount)
}

// RoundMoney округляет сумму до копеек.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// PlatformFee рассчитывает комиссию платформы с суммы выплаты.
func PlatformFee(amount, percent float64) float64 {
	if percent <= 0 {
		return 0
	}
	return RoundMoney(amount * percent / 100)
}
