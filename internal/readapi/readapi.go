// Package readapi implements the tenant-scoped meeting list and transcript
// fetch operations against the relational store. ListMeetings is a single
// indexed query; GetTranscript issues two (the latest matching meeting, then
// its segments). Neither touches Redis.
package readapi

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/auth"
	dbpkg "github.com/meetbot/platform/internal/db"
)

type ReadAPI struct {
	identity *auth.Service
	db       *sqlx.DB
}

func New(identity *auth.Service, db *sqlx.DB) *ReadAPI {
	return &ReadAPI{identity: identity, db: db}
}

// ListMeetings returns the tenant's meetings, most recent first.
func (r *ReadAPI) ListMeetings(ctx context.Context, token string) ([]dbpkg.Meeting, error) {
	principal, err := r.identity.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var meetings []dbpkg.Meeting
	err = r.db.SelectContext(ctx, &meetings, `
		SELECT id, tenant_id, platform, native_meeting_id, meeting_url, status, created_at, updated_at
		FROM meetings
		WHERE tenant_id = $1
		ORDER BY created_at DESC`, principal.TenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "meeting list query failed", err)
	}
	return meetings, nil
}

// Transcript is the most recent Meeting matching a triple plus its segments.
type Transcript struct {
	Meeting  dbpkg.Meeting              `json:"meeting"`
	Segments []dbpkg.TranscriptSegment  `json:"segments"`
}

// GetTranscript returns the most recent meeting for (tenant, platform,
// native_id) plus its segments in ascending start_time order.
func (r *ReadAPI) GetTranscript(ctx context.Context, token, platform, nativeMeetingID string) (*Transcript, error) {
	principal, err := r.identity.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var meeting dbpkg.Meeting
	err = r.db.GetContext(ctx, &meeting, `
		SELECT id, tenant_id, platform, native_meeting_id, meeting_url, status, created_at, updated_at
		FROM meetings
		WHERE tenant_id = $1 AND platform = $2 AND native_meeting_id = $3
		ORDER BY created_at DESC
		LIMIT 1`, principal.TenantID, platform, nativeMeetingID)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "no meeting found for that triple")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "meeting lookup failed", err)
	}

	var segments []dbpkg.TranscriptSegment
	err = r.db.SelectContext(ctx, &segments, `
		SELECT id, meeting_id, start_time, end_time, text, language, created_at
		FROM transcript_segments
		WHERE meeting_id = $1
		ORDER BY start_time ASC`, meeting.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "segment query failed", err)
	}

	return &Transcript{Meeting: meeting, Segments: segments}, nil
}
