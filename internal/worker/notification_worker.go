package worker

import (
	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to the event
// dispatcher. Handlers run synchronously on the publishing goroutine.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification handlers registered")
	}
}
