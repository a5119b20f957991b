// internal/app/system/mailer/notify.go
package mailer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sendTimeout bounds one notification.
const sendTimeout = 30 * time.Second

// Notifier sends share notifications in the background. A nil *Notifier
// is valid and does nothing.
type Notifier struct {
	sender  Sender
	appName string
	appURL  string
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier. appURL, when set, is linked from the
// message.
func NewNotifier(sender Sender, appName, appURL string, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, appName: appName, appURL: appURL, logger: logger}
}

// ShareGranted tells email that sharedBy shared an item with them.
func (n *Notifier) ShareGranted(sharedBy, email, kind, itemName string) {
	if n == nil {
		return
	}
	msg := ShareEmail(ShareEmailData{
		AppName:  n.appName,
		SharedBy: sharedBy,
		ItemKind: kind,
		ItemName: itemName,
		OpenURL:  n.appURL,
	})
	msg.To = email

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.sender.Send(ctx, msg); err != nil {
			n.logger.Warn("share notification failed", zap.String("to", email), zap.Error(err))
		}
	}()
}

// Wait blocks until pending notifications finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
