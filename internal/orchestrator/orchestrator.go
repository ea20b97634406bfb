// Package orchestrator implements request-bot and stop-bot, composing
// identity resolution, meeting-id canonicalization, the lock/mapping store,
// and the container driver.
package orchestrator

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/auth"
	"github.com/meetbot/platform/internal/canonical"
	"github.com/meetbot/platform/internal/container"
	dbpkg "github.com/meetbot/platform/internal/db"
	"github.com/meetbot/platform/internal/lockstore"
)

// Config carries the tunables request-bot needs to build a launch spec.
type Config struct {
	BotImageName     string
	DockerNetwork    string
	TranscriptionURL string
	LockTTL          time.Duration
}

// Launcher is the container lifecycle boundary RequestBot/StopBot depend on,
// matching the teacher's interface-at-boundary idiom (internal/health.Checker)
// so a fake can exercise the launch-success and launch-failure branches
// without a real Docker daemon. *container.Driver satisfies it.
type Launcher interface {
	Launch(ctx context.Context, connectionID uuid.UUID, spec container.LaunchSpec) (string, error)
	Stop(ctx context.Context, containerID string) error
}

// Orchestrator implements the Bot Orchestrator's two operations.
type Orchestrator struct {
	identity *auth.Service
	locks    *lockstore.Store
	driver   Launcher
	db       *sqlx.DB
	logger   *zap.Logger
	cfg      Config
}

func New(identity *auth.Service, locks *lockstore.Store, driver Launcher, db *sqlx.DB, logger *zap.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{identity: identity, locks: locks, driver: driver, db: db, logger: logger, cfg: cfg}
}

// StartResult is the successful response shape for request-bot.
type StartResult struct {
	Status      string `json:"status"`
	MeetingID   int64  `json:"meeting_id"`
	ContainerID string `json:"container_id"`
}

// RequestBot implements §4.5 request-bot.
func (o *Orchestrator) RequestBot(ctx context.Context, token string, platform canonical.Platform, meetingURL, botName string) (*StartResult, error) {
	principal, err := o.identity.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	nativeID, err := canonical.Extract(platform, meetingURL)
	if err != nil {
		return nil, err
	}

	triple := canonical.Triple{Platform: platform, NativeMeetingID: nativeID, Token: token}

	acquired, err := o.locks.TryLock(ctx, triple, o.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		o.logger.Warn("triple lock conflict", zap.String("triple", triple.String()))
		return nil, apperr.New(apperr.Conflict, "triple already locked: "+triple.String())
	}

	meeting, err := o.findOrCreateMeeting(ctx, principal.TenantID.String(), platform, nativeID, meetingURL)
	if err != nil {
		_ = o.locks.Release(ctx, triple)
		return nil, err
	}

	connectionID := uuid.New()
	containerID, err := o.driver.Launch(ctx, connectionID, container.LaunchSpec{
		Platform:         string(platform),
		MeetingURL:       meetingURL,
		Token:            token,
		BotName:          botName,
		TranscriptionURL: o.cfg.TranscriptionURL,
		Image:            o.cfg.BotImageName,
		Network:          o.cfg.DockerNetwork,
	})
	if err != nil {
		_ = o.locks.Release(ctx, triple)
		_ = o.setMeetingStatus(ctx, meeting.ID, dbpkg.MeetingFailed)
		return nil, err
	}

	if err := o.locks.PutMapping(ctx, triple, containerID); err != nil {
		return nil, err
	}
	if err := o.setMeetingStatus(ctx, meeting.ID, dbpkg.MeetingActive); err != nil {
		return nil, err
	}

	o.logger.Info("bot started", zap.Int64("meeting_id", meeting.ID), zap.String("container_id", containerID))
	return &StartResult{Status: "started", MeetingID: meeting.ID, ContainerID: containerID}, nil
}

// StopResult is the response shape for stop-bot.
type StopResult struct {
	Status      string `json:"status"`
	MeetingID   int64  `json:"meeting_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
}

// StopBot implements §4.5 stop-bot.
func (o *Orchestrator) StopBot(ctx context.Context, token string, platform canonical.Platform, nativeMeetingID string) (*StopResult, error) {
	principal, err := o.identity.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	triple := canonical.Triple{Platform: platform, NativeMeetingID: nativeMeetingID, Token: token}

	containerID, found, err := o.locks.GetMapping(ctx, triple)
	if err != nil {
		return nil, err
	}
	if !found {
		_ = o.locks.Release(ctx, triple)
		return &StopResult{Status: "not_found"}, nil
	}

	stopErr := o.driver.Stop(ctx, containerID)
	_ = o.locks.Release(ctx, triple)

	meetingID, _ := o.latestMeetingID(ctx, principal.TenantID.String(), platform, nativeMeetingID)
	if meetingID != 0 {
		_ = o.setMeetingStatus(ctx, meetingID, dbpkg.MeetingEnded)
	}

	status := "stopped"
	if stopErr != nil {
		o.logger.Warn("bot stop failed", zap.String("container_id", containerID), zap.Error(stopErr))
		status = "stop_failed"
	} else {
		o.logger.Info("bot stopped", zap.String("container_id", containerID))
	}

	return &StopResult{Status: status, MeetingID: meetingID, ContainerID: containerID}, nil
}

func (o *Orchestrator) findOrCreateMeeting(ctx context.Context, tenantID string, platform canonical.Platform, nativeID, meetingURL string) (*dbpkg.Meeting, error) {
	var m dbpkg.Meeting
	err := o.db.GetContext(ctx, &m, `
		SELECT id, tenant_id, platform, native_meeting_id, meeting_url, status, created_at, updated_at
		FROM meetings
		WHERE tenant_id = $1 AND platform = $2 AND native_meeting_id = $3 AND status IN ('requested', 'active')
		ORDER BY created_at DESC
		LIMIT 1`, tenantID, string(platform), nativeID)
	if err == nil {
		return &m, nil
	}
	if err != sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "meeting lookup failed", err)
	}

	err = o.db.GetContext(ctx, &m, `
		INSERT INTO meetings (tenant_id, platform, native_meeting_id, meeting_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'requested', now(), now())
		RETURNING id, tenant_id, platform, native_meeting_id, meeting_url, status, created_at, updated_at`,
		tenantID, string(platform), nativeID, meetingURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "meeting insert failed", err)
	}
	return &m, nil
}

func (o *Orchestrator) setMeetingStatus(ctx context.Context, meetingID int64, status dbpkg.MeetingStatus) error {
	_, err := o.db.ExecContext(ctx, `UPDATE meetings SET status = $1, updated_at = now() WHERE id = $2`, status, meetingID)
	if err != nil {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "meeting status update failed", err)
	}
	return nil
}

func (o *Orchestrator) latestMeetingID(ctx context.Context, tenantID string, platform canonical.Platform, nativeID string) (int64, error) {
	var id int64
	err := o.db.GetContext(ctx, &id, `
		SELECT id FROM meetings
		WHERE tenant_id = $1 AND platform = $2 AND native_meeting_id = $3
		ORDER BY created_at DESC LIMIT 1`, tenantID, string(platform), nativeID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.BackingStoreUnavailable, "meeting lookup failed", err)
	}
	return id, nil
}
