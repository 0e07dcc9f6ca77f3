package worker

import (
	"github.com/adworks/ad-portal/internal/service"
)

// StartNotificationWorker subscribes the notification service to session
// events. The returned function detaches it.
func StartNotificationWorker(notifications *service.NotificationService) func() {
	if notifications == nil {
		return func() {}
	}
	return notifications.RegisterHandlers()
}
