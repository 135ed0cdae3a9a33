package notifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/models"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int {
	return m.pid
}

func (m *mockProcess) PPid() int {
	return 0
}

func (m *mockProcess) Executable() string {
	return m.executable
}

func withConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := userConfigDirFunc
	userConfigDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { userConfigDirFunc = old })
	return dir
}

func withProcess(t *testing.T, executable string) {
	t.Helper()
	old := findProcessFunc
	findProcessFunc = func(pid int) (ps.Process, error) {
		if executable == "" {
			return nil, nil
		}
		return &mockProcess{pid: pid, executable: executable}, nil
	}
	t.Cleanup(func() { findProcessFunc = old })
}

func TestGetTrayAppConfigDir(t *testing.T) {
	tempDir := withConfigDir(t)

	expectedDefault := filepath.Join(tempDir, constants.TrayAppIdentifier)
	dir, err := GetTrayAppConfigDir()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if dir != expectedDefault {
		t.Errorf("expected %s, got %s", expectedDefault, dir)
	}

	if err := os.MkdirAll(expectedDefault, 0755); err != nil {
		t.Fatal(err)
	}
	customDir := "/custom/habitsync/dir"
	settingsJSON := fmt.Sprintf(`{"settings": {"lockfile_dir": "%s"}}`, customDir)
	if err := os.WriteFile(filepath.Join(expectedDefault, "settings.json"), []byte(settingsJSON), 0644); err != nil {
		t.Fatal(err)
	}

	dir, err = GetTrayAppConfigDir()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if dir != customDir {
		t.Errorf("expected %s, got %s", customDir, dir)
	}
}

func TestGetTrayAppConfigDirIgnoresBadSettings(t *testing.T) {
	tempDir := withConfigDir(t)
	trayDir := filepath.Join(tempDir, constants.TrayAppIdentifier)
	if err := os.MkdirAll(trayDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(trayDir, "settings.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	dir, err := GetTrayAppConfigDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != trayDir {
		t.Errorf("expected %s, got %s", trayDir, dir)
	}
}

func TestFindAndValidateTrayProcess(t *testing.T) {
	lockfilePath := filepath.Join(t.TempDir(), constants.NotifierLockfileName)

	_, _, err := findAndValidateTrayProcess(lockfilePath)
	if !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("expected ErrTrayNotRunning for missing lockfile, got %v", err)
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"two part format", "8080|12345", "malformed"},
		{"garbage", "invalid", "malformed"},
		{"empty secret", "8080|12345|", "secret"},
		{"empty port", "|12345|testsecret123", "port"},
		{"non numeric port", "http|12345|testsecret123", "port"},
		{"port out of range", "99999|12345|testsecret123", "range"},
		{"bad pid", "8080|abc|testsecret123", "process ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(lockfilePath, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, _, err := findAndValidateTrayProcess(lockfilePath)
			if err == nil {
				t.Fatalf("expected error for %q", tt.content)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got: %v", tt.want, err)
			}
		})
	}

	if err := os.WriteFile(lockfilePath, []byte("8080|12345|testsecret123\n"), 0644); err != nil {
		t.Fatal(err)
	}

	withProcess(t, "")
	if _, _, err := findAndValidateTrayProcess(lockfilePath); !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("expected ErrTrayNotRunning for missing process, got %v", err)
	}

	withProcess(t, "other-app")
	if _, _, err := findAndValidateTrayProcess(lockfilePath); err == nil {
		t.Error("expected error for wrong executable")
	}

	withProcess(t, constants.TrayExecutableName)
	port, secret, err := findAndValidateTrayProcess(lockfilePath)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if port != "8080" {
		t.Errorf("expected port 8080, got %s", port)
	}
	if secret != "testsecret123" {
		t.Errorf("expected secret testsecret123, got %s", secret)
	}
}

func setupTrayServer(t *testing.T, secret string) (port string, received chan WebhookPayload) {
	t.Helper()
	received = make(chan WebhookPayload, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get(constants.TraySecretHeader) != secret {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			return
		}
		var payload WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload.Text == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	parts := strings.Split(server.URL, ":")
	return parts[len(parts)-1], received
}

func TestSend(t *testing.T) {
	port, _ := setupTrayServer(t, "test-secret")
	n := New()

	if err := n.send(port, "test-secret", WebhookPayload{Text: "hello"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := n.send(port, "", WebhookPayload{Text: "hello"}); err == nil {
		t.Error("expected error for missing secret")
	}
	if err := n.send(port, "wrong-secret", WebhookPayload{Text: "hello"}); err == nil {
		t.Error("expected error for wrong secret")
	}
	if err := n.send(port, "test-secret", WebhookPayload{Text: "fail"}); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestReportLoss(t *testing.T) {
	tempDir := withConfigDir(t)
	w := models.PendingWrite{
		ID:         "w1",
		Operation:  models.OpToggle,
		Collection: models.CollectionCompletions,
		RetryCount: 3,
	}

	// No lockfile means the tray app is not running; the loss is only logged.
	if err := New().ReportLoss(w, errors.New("boom")); err != nil {
		t.Fatalf("expected nil error without tray app, got %v", err)
	}

	port, received := setupTrayServer(t, "s3cret")
	trayDir := filepath.Join(tempDir, constants.TrayAppIdentifier)
	if err := os.MkdirAll(trayDir, 0755); err != nil {
		t.Fatal(err)
	}
	lock := fmt.Sprintf("%s|%d|s3cret", port, os.Getpid())
	if err := os.WriteFile(filepath.Join(trayDir, constants.NotifierLockfileName), []byte(lock), 0644); err != nil {
		t.Fatal(err)
	}
	withProcess(t, constants.TrayExecutableName)

	if err := New().ReportLoss(w, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case payload := <-received:
		if payload.Text != "Unsynced change lost: toggle on completions after 3 attempts" {
			t.Errorf("unexpected text %q", payload.Text)
		}
		if payload.DurationMs != constants.NotificationDurationMs {
			t.Errorf("expected duration %d, got %d", constants.NotificationDurationMs, payload.DurationMs)
		}
	default:
		t.Fatal("expected a notification to be delivered")
	}
}

func TestLossMessage(t *testing.T) {
	w := models.PendingWrite{Operation: models.OpAdd, Collection: models.CollectionHabits, RetryCount: 1}
	if got := LossMessage(w); got != "Unsynced change lost: add on habits after 1 attempt" {
		t.Errorf("unexpected message %q", got)
	}
}
