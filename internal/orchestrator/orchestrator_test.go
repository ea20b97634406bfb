package orchestrator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/auth"
	"github.com/meetbot/platform/internal/canonical"
	"github.com/meetbot/platform/internal/circuitbreaker"
	"github.com/meetbot/platform/internal/container"
	"github.com/meetbot/platform/internal/lockstore"
)

// fakeLauncher is a test double for Launcher, letting request/stop-bot
// tests exercise the launch-success and launch-failure branches without a
// real Docker daemon.
type fakeLauncher struct {
	containerID string
	launchErr   error
	stopErr     error
}

func (f *fakeLauncher) Launch(ctx context.Context, connectionID uuid.UUID, spec container.LaunchSpec) (string, error) {
	if f.launchErr != nil {
		return "", f.launchErr
	}
	return f.containerID, nil
}

func (f *fakeLauncher) Stop(ctx context.Context, containerID string) error {
	return f.stopErr
}

const testToken = "tok-12345678-abcdef"

func hashTestToken() string {
	sum := sha256.Sum256([]byte(testToken))
	return hex.EncodeToString(sum[:])
}

func newTestOrchestrator(t *testing.T, driver Launcher) (*Orchestrator, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })
	wrapper := circuitbreaker.NewRedisWrapper(redisClient, zaptest.NewLogger(t))

	identity := auth.NewService(sqlxDB, zaptest.NewLogger(t))
	locks := lockstore.New(wrapper)

	orch := New(identity, locks, driver, sqlxDB, zaptest.NewLogger(t), Config{
		BotImageName:     "meetbot/worker:latest",
		DockerNetwork:    "meetbot-net",
		TranscriptionURL: "http://ingestor:8081",
		LockTTL:          time.Minute,
	})
	return orch, mock, mr
}

// expectNewMeeting arranges the findOrCreateMeeting lookup-then-insert
// sequence for a triple with no existing requested/active meeting.
func expectNewMeeting(mock sqlmock.Sqlmock, tenantID uuid.UUID, meetingID int64) {
	mock.ExpectQuery("SELECT (.+) FROM meetings").
		WillReturnError(sql.ErrNoRows)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "platform", "native_meeting_id", "meeting_url", "status", "created_at", "updated_at"}).
		AddRow(meetingID, tenantID.String(), "zoom", "123456789", "https://zoom.us/j/123456789", "requested", time.Now(), time.Now())
	mock.ExpectQuery("INSERT INTO meetings").WillReturnRows(rows)
}

func expectTokenResolved(mock sqlmock.Sqlmock, tenantID uuid.UUID) {
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "token_hash", "token_prefix", "created_at", "revoked_at"}).
		AddRow(uuid.New(), tenantID, hashTestToken(), testToken[:8], time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM api_tokens").WithArgs(testToken[:8]).WillReturnRows(rows)
}

func TestRequestBot_UnauthenticatedRejectsEmptyToken(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, nil)

	_, err := orch.RequestBot(context.Background(), "", canonical.Zoom, "https://zoom.us/j/123456789", "")
	if apperr.KindOf(err) != apperr.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", apperr.KindOf(err))
	}
}

func TestRequestBot_CredentialRejectsMalformedToken(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, nil)

	_, err := orch.RequestBot(context.Background(), "short", canonical.Zoom, "https://zoom.us/j/123456789", "")
	if apperr.KindOf(err) != apperr.Credential {
		t.Fatalf("expected Credential, got %v", apperr.KindOf(err))
	}
}

func TestRequestBot_ValidationOnMalformedURL(t *testing.T) {
	orch, mock, _ := newTestOrchestrator(t, nil)
	tenantID := uuid.New()
	expectTokenResolved(mock, tenantID)

	_, err := orch.RequestBot(context.Background(), testToken, canonical.Zoom, "https://meet.google.com/abc-defg-hij", "")
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected Validation, got %v", apperr.KindOf(err))
	}
}

func TestRequestBot_ConflictWhenTripleAlreadyLocked(t *testing.T) {
	orch, mock, _ := newTestOrchestrator(t, nil)
	tenantID := uuid.New()
	expectTokenResolved(mock, tenantID)

	triple := canonical.Triple{Platform: canonical.Zoom, NativeMeetingID: "123456789", Token: testToken}
	if ok, err := orch.locks.TryLock(context.Background(), triple, time.Minute); err != nil || !ok {
		t.Fatalf("failed to pre-seed lock: ok=%v err=%v", ok, err)
	}

	_, err := orch.RequestBot(context.Background(), testToken, canonical.Zoom, "https://zoom.us/j/123456789", "")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("expected Conflict, got %v", apperr.KindOf(err))
	}
}

func TestStopBot_NotFoundWhenNoMapping(t *testing.T) {
	orch, mock, _ := newTestOrchestrator(t, nil)
	tenantID := uuid.New()
	expectTokenResolved(mock, tenantID)

	result, err := orch.StopBot(context.Background(), testToken, canonical.Zoom, "123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "not_found" {
		t.Errorf("expected not_found, got %q", result.Status)
	}
}

func TestRequestBot_LaunchesAndMapsContainerOnSuccess(t *testing.T) {
	launcher := &fakeLauncher{containerID: "container-xyz789"}
	orch, mock, _ := newTestOrchestrator(t, launcher)
	tenantID := uuid.New()
	expectTokenResolved(mock, tenantID)
	expectNewMeeting(mock, tenantID, 42)
	mock.ExpectExec("UPDATE meetings SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := orch.RequestBot(context.Background(), testToken, canonical.Zoom, "https://zoom.us/j/123456789", "meetbot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "started" {
		t.Errorf("expected started, got %q", result.Status)
	}
	if result.ContainerID != "container-xyz789" {
		t.Errorf("expected container-xyz789, got %q", result.ContainerID)
	}
	if result.MeetingID != 42 {
		t.Errorf("expected meeting id 42, got %d", result.MeetingID)
	}

	triple := canonical.Triple{Platform: canonical.Zoom, NativeMeetingID: "123456789", Token: testToken}
	containerID, found, err := orch.locks.GetMapping(context.Background(), triple)
	if err != nil || !found {
		t.Fatalf("expected a stored mapping, found=%v err=%v", found, err)
	}
	if containerID != "container-xyz789" {
		t.Errorf("expected mapping container-xyz789, got %q", containerID)
	}
}

func TestRequestBot_ReleasesLockAndMarksFailedOnLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{launchErr: apperr.New(apperr.LaunchFailed, "container create failed")}
	orch, mock, _ := newTestOrchestrator(t, launcher)
	tenantID := uuid.New()
	expectTokenResolved(mock, tenantID)
	expectNewMeeting(mock, tenantID, 42)
	mock.ExpectExec("UPDATE meetings SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orch.RequestBot(context.Background(), testToken, canonical.Zoom, "https://zoom.us/j/123456789", "meetbot")
	if apperr.KindOf(err) != apperr.LaunchFailed {
		t.Fatalf("expected LaunchFailed, got %v", apperr.KindOf(err))
	}

	triple := canonical.Triple{Platform: canonical.Zoom, NativeMeetingID: "123456789", Token: testToken}
	acquired, err := orch.locks.TryLock(context.Background(), triple, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected the lock to be released after launch failure, acquired=%v err=%v", acquired, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected the meeting to be marked failed: %v", err)
	}
}
