package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// latin1 encodes a UTF-8 fixture the way the real page is served.
func latin1(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return out
}

const newsPage = `<html><head><title>TMP Murcia - Últimas noticias</title></head><body>
<table>
<tr><td><a href="Cuerpo.asp?codigo=501">Línea 44: desvío por obras en Gran Vía</a></td></tr>
<tr><td><a href="Cuerpo.asp?codigo=502">Cambio de horarios en festivos</a></td></tr>
<tr><td><a href="Cuerpo.asp?codigo=503&x=1">LÍNEA 11 suprime paradas en Alcantarilla</a></td></tr>
<tr><td><a href="otra.asp?codigo=999">No es una alerta</a></td></tr>
<tr><td><a href="Cuerpo.asp?codigo=501">Línea 44: desvío por obras en Gran Vía</a></td></tr>
</table>
</body></html>`

func TestParseAlerts(t *testing.T) {
	now := time.Now()
	alerts, err := ParseAlerts(bytes.NewReader(latin1(t, newsPage)), DefaultURL, now)
	if err != nil {
		t.Fatalf("ParseAlerts() error = %v", err)
	}

	if len(alerts) != 3 {
		t.Fatalf("ParseAlerts() returned %d alerts, want 3", len(alerts))
	}

	first := alerts[0]
	if first.ID != "501" {
		t.Errorf("first alert ID = %q, want %q", first.ID, "501")
	}
	if first.Line != "44" {
		t.Errorf("first alert line = %q, want %q", first.Line, "44")
	}
	if first.Title != "Línea 44: desvío por obras en Gran Vía" {
		t.Errorf("first alert title = %q (latin-1 decode broken?)", first.Title)
	}
	if first.URL != "https://tmpmurcia.es/Cuerpo.asp?codigo=501" {
		t.Errorf("first alert URL = %q", first.URL)
	}
	if !first.DetectedAt.Equal(now) {
		t.Errorf("first alert DetectedAt = %v, want %v", first.DetectedAt, now)
	}

	if !alerts[1].General() {
		t.Errorf("alert %q should be general", alerts[1].Title)
	}
	if alerts[1].ID != "502" {
		t.Errorf("second alert ID = %q, want %q", alerts[1].ID, "502")
	}

	// Extra query params after the codigo must not leak into the ID
	if alerts[2].ID != "503" {
		t.Errorf("third alert ID = %q, want %q", alerts[2].ID, "503")
	}
	if alerts[2].Line != "11" {
		t.Errorf("third alert line = %q, want %q", alerts[2].Line, "11")
	}
}

func TestParseAlertsEmptyPage(t *testing.T) {
	_, err := ParseAlerts(bytes.NewReader([]byte("<html><body><p>mantenimiento</p></body></html>")), DefaultURL, time.Now())
	if err == nil {
		t.Fatal("ParseAlerts() on a page without alerts should fail")
	}
}

func TestExtractLine(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Línea 44: desvío por obras", "44"},
		{"LINEA 11 corte temporal", "11"},
		{"línea  6 refuerzo de servicio", "6"},
		{"Cambio de horarios en festivos", ""},
		{"Nueva línea de atención telefónica", ""},
		{"Desvío Línea 30 y Línea 44", "30"},
	}

	for _, tt := range tests {
		if got := ExtractLine(tt.title); got != tt.want {
			t.Errorf("ExtractLine(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestFetchAlerts(t *testing.T) {
	page := latin1(t, newsPage)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	s := New(srv.Client(), srv.URL, testLogger())
	alerts, err := s.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts() error = %v", err)
	}
	if len(alerts) != 3 {
		t.Errorf("FetchAlerts() returned %d alerts, want 3", len(alerts))
	}
}

func TestFetchAlertsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	// 4xx is unrecoverable, so this fails fast instead of burning retries
	s := New(srv.Client(), srv.URL, testLogger())
	if _, err := s.FetchAlerts(context.Background()); err == nil {
		t.Fatal("FetchAlerts() should fail on HTTP 404")
	}
}
