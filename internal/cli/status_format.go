// Package cli provides status formatting helpers.
package cli

import (
	"fmt"
	"strings"

	"github.com/tealeaf2/taskgantt/internal/models"
)

func formatTaskStatus(status models.Status) string {
	label, color := statusLabelForTask(status)
	return colorize(formatStatusLabel(label, string(status)), color)
}

func formatSeverity(severity models.Severity) string {
	switch severity {
	case models.SeverityHigh:
		return colorize(string(severity), colorRed)
	case models.SeverityMedium:
		return colorize(string(severity), colorYellow)
	case models.SeverityLow:
		return colorize(string(severity), colorGreen)
	default:
		return string(severity)
	}
}

func statusLabelForTask(status models.Status) (string, string) {
	switch status {
	case models.StatusDone:
		return "OK", colorGreen
	case models.StatusInProgress:
		return "BUSY", colorCyan
	case models.StatusBlocked:
		return "ERR", colorRed
	case models.StatusTodo:
		return "WAIT", colorYellow
	default:
		return "WARN", colorMagenta
	}
}

func formatStatusLabel(label, status string) string {
	normalized := strings.TrimSpace(status)
	if normalized != "" {
		normalized = strings.ReplaceAll(normalized, "_", " ")
	}
	if normalized == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, normalized)
}
