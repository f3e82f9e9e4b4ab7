package sidebar

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DateLayout повторяет формат en-IN: "15 Oct 2026, 02:30 pm".
const DateLayout = "2 Jan 2006, 03:04 pm"

// Formatter форматирует суммы и даты для карточек.
type Formatter struct {
	printer  *message.Printer
	location *time.Location
}

// NewFormatter создаёт форматтер для локали en-IN. loc == nil означает UTC.
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{
		printer:  message.NewPrinter(language.MustParse("en-IN")),
		location: loc,
	}
}

// Currency возвращает сумму в рупиях с двумя знаками после точки и индийской
// группировкой разрядов: 123456.5 -> "₹1,23,456.50".
func (f *Formatter) Currency(amount float64) string {
	return f.printer.Sprintf("₹%.2f", amount)
}

// Date возвращает дату создания заказа в часовом поясе форматтера.
func (f *Formatter) Date(t time.Time) string {
	return t.In(f.location).Format(DateLayout)
}
