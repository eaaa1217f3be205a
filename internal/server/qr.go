package server

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320 // mobile-friendly size

// QRHandler renders a PNG QR code for the join URL of the lobby named by
// the ":id" route parameter, generalizing the teacher's per-game
// `qrHandler` (celebrity.go) to any lobby id.
func QRHandler(prefix string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		lobbyID := ps.ByName("id")
		if lobbyID == "" {
			http.Error(w, "missing lobby id", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(prefix, "/") + "/lobbies/" + lobbyID

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
