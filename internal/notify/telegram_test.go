package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	t.Run("TitleAndMessage", func(t *testing.T) {
		got := formatMessage(Notification{Title: "Termin hinzugefügt", Message: "01.01.2025 10:00-11:00 Studio A"})
		assert.Equal(t, "Termin hinzugefügt\n01.01.2025 10:00-11:00 Studio A", got)
	})

	t.Run("TitleOnly", func(t *testing.T) {
		got := formatMessage(Notification{Title: "Sync fehlgeschlagen"})
		assert.Equal(t, "Sync fehlgeschlagen", got)
	})

	t.Run("HighPriority", func(t *testing.T) {
		got := formatMessage(Notification{Title: "Termin abgesagt", Priority: PriorityHigh})
		assert.Equal(t, "❗ Termin abgesagt", got)
	})
}
