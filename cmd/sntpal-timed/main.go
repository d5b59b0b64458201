package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AndrewLester/sntpal/internal/ntp"
	"github.com/AndrewLester/sntpal/internal/templates"
	"github.com/AndrewLester/sntpal/pkg/sntp"
)

// sntpal-timed is the HTTP time service backing the http transport. It
// answers /sync with the server's receive and transmit timestamps as
// decimal 64-bit NTP values.
func main() {
	port := os.Getenv("TIMED_PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"Region": os.Getenv("FLY_REGION"),
			"Time":   time.Now().UTC().Format(time.RFC3339),
		}

		// Set these headers to bump performance.now() precision to 5 microseconds
		headerMap := w.Header()
		headerMap.Add("Cross-Origin-Opener-Policy", "same-origin")
		headerMap.Add("Cross-Origin-Embedder-Policy", "require-corp")
		w.WriteHeader(200)

		templates.TemplateExecutor.ExecuteTemplate(w, "index.tmpl.html", data)
	})

	http.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		var syncRequest sntp.SyncRequest
		err := json.NewDecoder(r.Body).Decode(&syncRequest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		recv := strconv.FormatUint(systemTime(), 10)

		syncResponse := sntp.SyncResponse{
			Orig: syncRequest.Orig,
			Recv: recv,
			Xmt:  "",
		}

		encoder := json.NewEncoder(w)

		syncResponse.Xmt = strconv.FormatUint(systemTime(), 10)
		encoder.Encode(syncResponse)
	})

	log.Println("listening on", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func systemTime() uint64 {
	return ntp.FromUnixMilli(time.Now().UnixMilli()).Encoded()
}
