//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/securenotes/apiserver/config"
	"github.com/securenotes/apiserver/internal/db"
	"github.com/securenotes/apiserver/internal/server"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, serverCancel, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		serverCancel()
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	serverCancel()
	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestNoteLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)

	owner := newClient(t)
	email := fmt.Sprintf("owner_%d@example.com", time.Now().UnixNano())
	if err := registerUser(t, owner, baseURL, email, "testpass123!"); err != nil {
		t.Fatalf("register user: %v", err)
	}

	note, err := createNote(t, owner, baseURL, "groceries", "milk, eggs")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if note.ID == 0 {
		t.Fatalf("expected note ID to be set")
	}
	if note.Color != "#ffffff" {
		t.Fatalf("unexpected default color: %q", note.Color)
	}

	if _, err := transition(t, owner, baseURL, note.ID, "archive"); err != nil {
		t.Fatalf("archive note: %v", err)
	}
	archived, err := listNotes(t, owner, baseURL, "/notes/archived")
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived note, got %d", len(archived))
	}

	trashed, err := transition(t, owner, baseURL, note.ID, "trash")
	if err != nil {
		t.Fatalf("trash note: %v", err)
	}
	if !trashed.IsTrashed || trashed.TrashedAt == nil {
		t.Fatalf("expected trashed note with timestamp, got %+v", trashed)
	}

	active, err := listNotes(t, owner, baseURL, "/notes/")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("trashed note still listed as active")
	}

	restored, err := transition(t, owner, baseURL, note.ID, "restore")
	if err != nil {
		t.Fatalf("restore note: %v", err)
	}
	if restored.IsTrashed || restored.IsArchived {
		t.Fatalf("restore should return the note to active, got %+v", restored)
	}

	if err := deleteNote(t, owner, baseURL, note.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	remaining, err := listNotes(t, owner, baseURL, "/notes/")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no notes after permanent delete, got %d", len(remaining))
	}
}

func TestOtherUsersCannotTouchNotes(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)

	owner := newClient(t)
	suffix := time.Now().UnixNano()
	if err := registerUser(t, owner, baseURL, fmt.Sprintf("alice_%d@example.com", suffix), "testpass123!"); err != nil {
		t.Fatalf("register owner: %v", err)
	}
	note, err := createNote(t, owner, baseURL, "secret", "do not read")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	intruder := newClient(t)
	if err := registerUser(t, intruder, baseURL, fmt.Sprintf("mallory_%d@example.com", suffix), "testpass123!"); err != nil {
		t.Fatalf("register intruder: %v", err)
	}

	resp, err := doRequest(intruder, http.MethodPut, fmt.Sprintf("%s/notes/%d/trash", baseURL, note.ID), nil)
	if err != nil {
		t.Fatalf("trash as intruder: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}

	notes, err := listNotes(t, intruder, baseURL, "/notes/")
	if err != nil {
		t.Fatalf("list as intruder: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("intruder can see someone else's notes")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)

	client := newClient(t)
	email := fmt.Sprintf("reset_%d@example.com", time.Now().UnixNano())
	if err := registerUser(t, client, baseURL, email, "oldpassword1"); err != nil {
		t.Fatalf("register user: %v", err)
	}

	resp, err := doRequest(client, http.MethodPost, baseURL+"/auth/forgot", map[string]string{"email": email})
	if err != nil {
		t.Fatalf("forgot request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot status %d", resp.StatusCode)
	}

	token, err := lookupResetToken(email)
	if err != nil {
		t.Fatalf("lookup reset token: %v", err)
	}

	resp, err = doRequest(client, http.MethodPost, baseURL+"/auth/reset/"+token, map[string]string{"password": "newpassword1"})
	if err != nil {
		t.Fatalf("reset request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status %d", resp.StatusCode)
	}

	// The old password no longer works, the new one does.
	fresh := newClient(t)
	resp, err = doRequest(fresh, http.MethodPost, baseURL+"/auth/login", map[string]string{"email": email, "password": "oldpassword1"})
	if err != nil {
		t.Fatalf("login with old password: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for old password, got %d", resp.StatusCode)
	}

	resp, err = doRequest(fresh, http.MethodPost, baseURL+"/auth/login", map[string]string{"email": email, "password": "newpassword1"})
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for new password, got %d", resp.StatusCode)
	}
}

type noteResponse struct {
	ID         int        `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Color      string     `json:"color"`
	IsArchived bool       `json:"is_archived"`
	IsTrashed  bool       `json:"is_trashed"`
	TrashedAt  *time.Time `json:"trashed_at"`
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func doRequest(client *http.Client, method, url string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func registerUser(t *testing.T, client *http.Client, baseURL, email, password string) error {
	t.Helper()

	resp, err := doRequest(client, http.MethodPost, baseURL+"/auth/register", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func createNote(t *testing.T, client *http.Client, baseURL, title, content string) (noteResponse, error) {
	t.Helper()

	resp, err := doRequest(client, http.MethodPost, baseURL+"/notes/", map[string]string{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return noteResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return noteResponse{}, fmt.Errorf("create note status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed noteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return noteResponse{}, err
	}
	return parsed, nil
}

func transition(t *testing.T, client *http.Client, baseURL string, id int, action string) (noteResponse, error) {
	t.Helper()

	resp, err := doRequest(client, http.MethodPut, fmt.Sprintf("%s/notes/%d/%s", baseURL, id, action), nil)
	if err != nil {
		return noteResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return noteResponse{}, fmt.Errorf("%s status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed noteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return noteResponse{}, err
	}
	return parsed, nil
}

func listNotes(t *testing.T, client *http.Client, baseURL, path string) ([]noteResponse, error) {
	t.Helper()

	resp, err := doRequest(client, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed []noteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func deleteNote(t *testing.T, client *http.Client, baseURL string, id int) error {
	t.Helper()

	resp, err := doRequest(client, http.MethodDelete, fmt.Sprintf("%s/notes/%d/permanent", baseURL, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func lookupResetToken(email string) (string, error) {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var token sql.NullString
	err = conn.QueryRowContext(ctx, "SELECT reset_token FROM users WHERE email = $1", email).Scan(&token)
	if err != nil {
		return "", err
	}
	if !token.Valid || token.String == "" {
		return "", fmt.Errorf("no reset token stored for %s", email)
	}
	return token.String, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, context.CancelFunc, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "securenotes")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "securenotes_db")
	_ = os.Setenv("DB_USE_SSL", "false")

	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.LoadConfig()
	srv, err := server.New(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	go func() {
		_ = srv.Run(ctx)
	}()

	return srv, cancel, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
