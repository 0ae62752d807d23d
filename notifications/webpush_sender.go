package notifications

import (
	"context"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/motionapp/motion-server/models"
)

// pushTTL is how long the push service keeps an undelivered notification, in seconds.
const pushTTL = 24 * 60 * 60

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// WebPushSender encrypts payloads per RFC 8291 and signs requests with VAPID.
type WebPushSender struct {
	vapid  VAPIDConfig
	client *http.Client
}

func NewWebPushSender(vapid VAPIDConfig, client *http.Client) *WebPushSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebPushSender{vapid: vapid, client: client}
}

func (w *WebPushSender) Send(ctx context.Context, sub *models.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.vapid.Subject,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             pushTTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
