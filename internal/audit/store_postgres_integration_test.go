//go:build integration

package audit_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otpguard/internal/audit"
	platformpg "otpguard/internal/platform/postgres"
	"otpguard/pkg/testutil/containers"
)

const eventsDDL = `
CREATE TABLE IF NOT EXISTS security_events (
    id            TEXT        PRIMARY KEY,
    kind          TEXT        NOT NULL,
    identity      TEXT        NOT NULL DEFAULT '',
    purpose       TEXT        NOT NULL DEFAULT '',
    requesting_ip TEXT        NOT NULL DEFAULT '',
    device        TEXT        NOT NULL DEFAULT '',
    request_id    TEXT        NOT NULL DEFAULT '',
    detail        TEXT        NOT NULL DEFAULT '',
    occurred_at   TIMESTAMPTZ NOT NULL
)`

const eventsIndexDDL = `
CREATE INDEX IF NOT EXISTS security_events_identity_idx
    ON security_events (identity, occurred_at DESC)`

type PostgresAuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	db    *sql.DB
	store *audit.PostgresStore
}

func TestPostgresAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditStoreSuite))
}

func (s *PostgresAuditStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(s.pg.Exec(context.Background(), eventsDDL))
	s.Require().NoError(s.pg.Exec(context.Background(), eventsIndexDDL))

	db, err := platformpg.Open(s.pg.URL)
	s.Require().NoError(err)
	s.db = db
	s.T().Cleanup(func() { _ = db.Close() })

	s.store = audit.NewPostgresStore(db)
}

func (s *PostgresAuditStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Exec(context.Background(), `TRUNCATE security_events`))
}

func (s *PostgresAuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		err := s.store.Append(ctx, audit.Event{
			ID:         fmt.Sprintf("evt-%d", i),
			Kind:       audit.KindVerifyFailed,
			Identity:   "alice@example.com",
			OccurredAt: base.Add(time.Duration(i) * time.Second),
		})
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		ID:         "evt-other",
		Kind:       audit.KindCodeIssued,
		Identity:   "bob@example.com",
		OccurredAt: base,
	}))

	events, err := s.store.ListByIdentity(ctx, "alice@example.com", 0)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal("evt-2", events[0].ID, "newest first")
	s.Equal("evt-0", events[2].ID)

	events, err = s.store.ListByIdentity(ctx, "alice@example.com", 2)
	s.Require().NoError(err)
	s.Len(events, 2)

	events, err = s.store.ListByIdentity(ctx, "nobody@example.com", 0)
	s.Require().NoError(err)
	s.Empty(events)
}
