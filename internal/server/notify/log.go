package notify

import (
	"context"
	"log/slog"
)

// LogDispatcher пишет уведомления в лог вместо отправки.
// Тело сообщения содержит секрет и выводится только при showBody
type LogDispatcher struct {
	logger   *slog.Logger
	showBody bool
}

// NewLogDispatcher создает диспетчер для локальной разработки
func NewLogDispatcher(logger *slog.Logger, showBody bool) *LogDispatcher {
	return &LogDispatcher{logger: logger, showBody: showBody}
}

// Send логирует сообщение
func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	attrs := []any{
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	}
	if d.showBody {
		attrs = append(attrs, slog.String("body", msg.Body))
	}

	d.logger.InfoContext(ctx, "notification dispatched", attrs...)
	return nil
}
