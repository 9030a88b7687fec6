// Package notify delivers plate alerts to vehicle owners.
package notify

import (
	"context"

	"gate-service/internal/domain/anpr"
)

// Sink sends owner-facing messages. Callers treat every call as fire and
// forget: failures are logged, never retried.
type Sink interface {
	Notify(ctx context.Context, owner anpr.Owner, plate, imageRef string) error
	NotifyTimeout(ctx context.Context, owner anpr.Owner, plate string) error
}

// Noop discards every message.
type Noop struct{}

func (Noop) Notify(context.Context, anpr.Owner, string, string) error { return nil }
func (Noop) NotifyTimeout(context.Context, anpr.Owner, string) error  { return nil }

func alertText(plate, imageRef string) string {
	text := "🚘 Kendaraan dengan plat: *" + plate + "* terdeteksi.\nIzinkan masuk?\n" +
		"Balas /izinkan " + plate + " atau /tolak " + plate
	if imageRef != "" {
		text += "\n" + imageRef
	}
	return text
}

func timeoutText(plate string) string {
	return "⏰ Deteksi plat *" + plate + "* sudah hangus karena tidak ada respon selama 1 menit.\n" +
		"Silakan tunggu deteksi berikutnya untuk mengirim feedback."
}
