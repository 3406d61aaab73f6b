package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jobscout/ingest/internal/core"
)

// Env is the set of fields a filter expression can reference.
type Env struct {
	ID          string
	SourceID    string
	Title       string
	URL         string
	Description string
	Content     string
	Author      string
	Categories  []string
	Extra       map[string]string
	AgeHours    float64
}

// Rule keeps listings for which a boolean expression holds, e.g.
//
//	Title != "" && !("internship" in Categories)
type Rule struct {
	expression string
	program    *vm.Program
}

func NewRule(expression string) (*Rule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("filter expression is required")
	}
	program, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}
	return &Rule{expression: expression, program: program}, nil
}

func (r *Rule) String() string {
	return r.expression
}

// Match reports whether the listing satisfies the rule.
func (r *Rule) Match(listing core.Listing) (bool, error) {
	result, err := expr.Run(r.program, envFor(listing))
	if err != nil {
		return false, err
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not return bool", r.expression)
	}
	return matched, nil
}

// Apply returns the listings the rule keeps. A listing whose evaluation fails
// is kept and logged.
func (r *Rule) Apply(ctx context.Context, listings []core.Listing) []core.Listing {
	if r == nil {
		return listings
	}
	logger := core.LoggerFromContext(ctx)
	kept := make([]core.Listing, 0, len(listings))
	for _, listing := range listings {
		matched, err := r.Match(listing)
		if err != nil {
			logger.Warn("filter evaluation failed",
				slog.String("listing_id", listing.ID),
				slog.String("filter", r.expression),
				slog.String("error", err.Error()),
			)
			kept = append(kept, listing)
			continue
		}
		if matched {
			kept = append(kept, listing)
		}
	}
	return kept
}

func envFor(listing core.Listing) Env {
	env := Env{
		ID:          listing.ID,
		SourceID:    listing.SourceID,
		Title:       listing.Title,
		URL:         listing.URL,
		Description: listing.Description,
		Content:     listing.Content,
		Author:      listing.Author,
		Categories:  listing.Categories,
		Extra:       listing.Extra,
	}
	if env.Categories == nil {
		env.Categories = []string{}
	}
	if env.Extra == nil {
		env.Extra = map[string]string{}
	}
	if !listing.PublishedAt.IsZero() && !listing.FetchedAt.IsZero() {
		env.AgeHours = listing.FetchedAt.Sub(listing.PublishedAt).Hours()
	}
	return env
}
