// Package classify assigns one of the owner's categories to a message.
package classify

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/vdavid/mailpilot/internal/agent"
	"github.com/vdavid/mailpilot/internal/metrics"
	"github.com/vdavid/mailpilot/internal/models"
	"go.uber.org/zap"
)

// MaxBodyRunes bounds the body prefix sent to the classifier.
const MaxBodyRunes = 2000

type Outcome string

const (
	OutcomeMatched      Outcome = "matched"
	OutcomeFallback     Outcome = "fallback"
	OutcomeUnavailable  Outcome = "unavailable"
	OutcomeNoCategories Outcome = "no_categories"
)

// Capability is the external classification service.
type Capability interface {
	Classify(ctx context.Context, req agent.ClassifyRequest) (*agent.ClassifyResponse, error)
}

type Input struct {
	Subject string
	Body    string
	Sender  string
	OwnerID string
}

// Result carries the chosen category, or nil when none could be assigned.
// Returned is the raw name the capability answered with.
type Result struct {
	Category *models.Category
	Outcome  Outcome
	Returned string
}

type Classifier struct {
	capability Capability
	logger     *zap.Logger
}

func NewClassifier(capability Capability, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{capability: capability, logger: logger}
}

// Classify never returns an error: an unavailable capability leaves the
// message uncategorized and an unknown answer falls back to the first category.
func (c *Classifier) Classify(ctx context.Context, in Input, categories []models.Category) Result {
	result := c.classify(ctx, in, categories)
	metrics.RecordClassification(string(result.Outcome))
	return result
}

func (c *Classifier) classify(ctx context.Context, in Input, categories []models.Category) Result {
	if len(categories) == 0 {
		return Result{Outcome: OutcomeNoCategories}
	}

	resp, err := c.capability.Classify(ctx, agent.ClassifyRequest{
		Subject:    in.Subject,
		Body:       Truncate(in.Body, MaxBodyRunes),
		Sender:     in.Sender,
		Categories: models.CategoryNames(categories),
	})
	if err != nil {
		c.logger.Warn("classification unavailable", zap.String("owner_id", in.OwnerID), zap.Error(err))
		return Result{Outcome: OutcomeUnavailable}
	}

	if category := match(resp.Category, categories); category != nil {
		return Result{Category: category, Outcome: OutcomeMatched, Returned: resp.Category}
	}

	fallback := &categories[0]
	c.logger.Warn("classifier returned unknown category, using fallback",
		zap.String("owner_id", in.OwnerID),
		zap.String("returned", resp.Category),
		zap.String("fallback", fallback.Name),
	)
	return Result{Category: fallback, Outcome: OutcomeFallback, Returned: resp.Category}
}

// match looks for an exact name first, then a case-insensitive one.
func match(name string, categories []models.Category) *models.Category {
	name = strings.TrimSpace(name)
	for i := range categories {
		if categories[i].Name == name {
			return &categories[i]
		}
	}
	for i := range categories {
		if strings.EqualFold(categories[i].Name, name) {
			return &categories[i]
		}
	}
	return nil
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
