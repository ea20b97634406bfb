package readapi

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/auth"
)

const testToken = "tok-abcdefgh-1234"

func hashTestToken() string {
	sum := sha256.Sum256([]byte(testToken))
	return hex.EncodeToString(sum[:])
}

func newTestReadAPI(t *testing.T) (*ReadAPI, sqlmock.Sqlmock, uuid.UUID) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	identity := auth.NewService(sqlxDB, zaptest.NewLogger(t))
	tenantID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "token_hash", "token_prefix", "created_at", "revoked_at"}).
		AddRow(uuid.New(), tenantID, hashTestToken(), testToken[:8], time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM api_tokens").WithArgs(testToken[:8]).WillReturnRows(rows)

	return New(identity, sqlxDB), mock, tenantID
}

func TestListMeetings_ReturnsRowsScopedToTenant(t *testing.T) {
	r, mock, tenantID := newTestReadAPI(t)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "platform", "native_meeting_id", "meeting_url", "status", "created_at", "updated_at"}).
		AddRow(1, tenantID, "zoom", "123456789", "https://zoom.us/j/123456789", "active", time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM meetings").WithArgs(tenantID).WillReturnRows(rows)

	meetings, err := r.ListMeetings(context.Background(), testToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meetings) != 1 {
		t.Fatalf("expected 1 meeting, got %d", len(meetings))
	}
	if meetings[0].Platform != "zoom" {
		t.Errorf("expected platform zoom, got %q", meetings[0].Platform)
	}
}

func TestGetTranscript_NotFoundWhenNoMeetingMatchesTriple(t *testing.T) {
	r, mock, tenantID := newTestReadAPI(t)

	mock.ExpectQuery("SELECT (.+) FROM meetings").
		WithArgs(tenantID, "zoom", "999999999").
		WillReturnError(sql.ErrNoRows)

	_, err := r.GetTranscript(context.Background(), testToken, "zoom", "999999999")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", apperr.KindOf(err))
	}
}
