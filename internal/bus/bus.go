package bus

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification — сообщение пользователю. ChatID == 0 значит "чат неизвестен",
// такие уведомления только логируются.
type Notification struct {
	ChatID int64
	Level  Level
	Text   string
}
