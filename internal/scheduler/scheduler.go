package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"studylog/internal/database"
	"studylog/internal/pipeline"
)

const (
	HourlyCheckSpec       = "0 * * * *"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	checkStudiesTimeout   = 15 * time.Minute
)

// Scheduler periodically runs the pipeline for every study's members.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron
	db   *database.Database
	svc  *pipeline.Service
	log  *slog.Logger
}

func New(
	ctx context.Context,
	db *database.Database,
	svc *pipeline.Service,
	log *slog.Logger,
) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:  ctx,
		cron: c,
		db:   db,
		svc:  svc,
		log:  log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlyCheckSpec, s.checkStudies); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) checkStudies() {
	ctx, cancel := context.WithTimeout(s.ctx, checkStudiesTimeout)
	defer cancel()

	studies, err := s.db.GetStudies(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load studies",
			"error", err)

		return
	}

	for i := range studies {
		study := &studies[i]

		if ctx.Err() != nil {
			s.log.InfoContext(ctx, "Scheduler context is done",
				"error", ctx.Err())

			return
		}

		members, membersErr := s.db.GetStudyMembers(ctx, study.ID)
		if membersErr != nil {
			s.log.ErrorContext(ctx, "Failed to load study members",
				"error", membersErr,
				"studyID", study.ID)

			continue
		}

		results := s.svc.CheckStudy(ctx, study, members)

		var succeeded int
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}

		s.log.InfoContext(ctx, "Study check is finished",
			"studyID", study.ID,
			"memberCount", len(members),
			"succeeded", succeeded)
	}
}
