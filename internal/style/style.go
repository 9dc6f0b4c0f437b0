// Пакет style — единое оформление вывода CLI на lipgloss.
package style

import "github.com/charmbracelet/lipgloss"

var (
	// Success — успешный результат
	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")). // зелёный
		Bold(true)

	// Warning — предупреждение
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("11")). // жёлтый
		Bold(true)

	// Error — ошибка
	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")). // красный
		Bold(true)

	// Info — имена пакетов, версии, URL
	Info = lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")) // синий

	// Dim — второстепенная информация и подсказки
	Dim = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")) // серый

	// Tag — теги пакетов
	Tag = lipgloss.NewStyle().
		Foreground(lipgloss.Color("13")) // пурпурный

	Bold = lipgloss.NewStyle().
		Bold(true)

	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
)

// Tags форматирует теги как "#a #b".
func Tags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += Tag.Render("#" + t)
	}
	return out
}
