package pipeline

import (
	"context"
	"runtime"
	"sync"

	"studylog/internal/domain"
)

const checkMembersMaxConcurrencyGrowthFactor = 4

// CheckStudy fans out one pipeline run per member and awaits all of them.
// Each member's failure is isolated; one failing run never cancels siblings.
// Results come back in member order.
func (s *Service) CheckStudy(
	ctx context.Context,
	study *domain.Study,
	members []domain.Member,
) []domain.MemberResult {
	results := make([]domain.MemberResult, len(members))

	concurrency := min(runtime.NumCPU()*checkMembersMaxConcurrencyGrowthFactor, len(members))
	if concurrency < 1 {
		concurrency = 1
	}
	semCh := make(chan struct{}, concurrency)

	var wg sync.WaitGroup

	for i, member := range members {
		wg.Add(1)
		semCh <- struct{}{}

		go func(resultIndex int, copiedMember domain.Member) {
			defer wg.Done()
			defer func() { <-semCh }()

			results[resultIndex] = s.checkMember(ctx, &copiedMember, study)
		}(i, member)
	}

	wg.Wait()

	return results
}

func (s *Service) checkMember(
	ctx context.Context,
	member *domain.Member,
	study *domain.Study,
) domain.MemberResult {
	post, err := s.ProcessNewPost(ctx, member, study)
	if err != nil {
		// A duplicate guid is a benign "nothing new" outcome; it is
		// still reported as a failure entry so the batch caller sees it,
		// but logged at a lower level than genuine faults.
		if domain.IsDuplicatePost(err) {
			s.log.InfoContext(ctx, "Member's latest post is already processed",
				"memberID", member.ID,
				"studyID", study.ID)
		} else {
			s.log.ErrorContext(ctx, "Failed to process member's blog",
				"error", err,
				"memberID", member.ID,
				"studyID", study.ID)
		}

		return domain.MemberResult{MemberID: member.ID, Success: false, Err: err}
	}

	return domain.MemberResult{MemberID: member.ID, Success: true, Post: post}
}
