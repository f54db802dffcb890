package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey returns the hash key holding questionID -> option index for an attempt.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// ExamDetailKey returns the key caching a published exam with its questions.
func (r *CacheKeyStruct) ExamDetailKey(examID string) string {
	return fmt.Sprintf("exam:%s:detail", examID)
}

var CacheKey = NewCacheKeyStruct()
