// Package routing implements the registration-code grammar parser and the
// classification of an inbound chat turn into one of the three conversation
// tracks (§4.4). It is the one place in the engine where a request is
// rejected before any LLM call is made.
package routing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/utjfc/reg-agent/internal/adapters"
	"github.com/utjfc/reg-agent/pkg/models"
)

// codePattern is the registration-code grammar (§6): case-insensitive team
// and age group, case-sensitive season, optional player-name suffix.
var codePattern = regexp.MustCompile(`(?i)^(100|200)-([A-Za-z0-9_]+)-[Uu](\d+)-([0-9A-Za-z]+)(?:-([A-Za-z]+)-([A-Za-z]+))?$`)

// Classification errors (§4.4, §8): all are input errors surfaced to the
// user immediately with no session mutation beyond the new turn.
var (
	ErrInvalidSeason        = errors.New("routing: season does not match the current season")
	ErrUnknownTeam          = errors.New("routing: team/age group not recognised")
	ErrMissingPlayerName    = errors.New("routing: re-registration code must include a player name")
	ErrUnexpectedPlayerName = errors.New("routing: new-registration code must not include a player name")
)

// Metadata is parsed from a registration code and injected into the
// session on a successful classification (§3 Session, §4.4).
type Metadata struct {
	Team           string
	AgeGroup       string
	Season         string
	ChildFirstName string
	ChildLastName  string
}

// Result is the outcome of classifying one inbound message.
type Result struct {
	Route    models.RegistrationRoute
	Metadata Metadata
}

// Classifier reads the first line of an inbound message and routes it to
// one of the three conversation tracks, cross-checking the team/age-group
// pair against the DB adapter. A message that doesn't match the
// registration-code grammar always routes to the Orchestrator with no
// error and no metadata.
type Classifier struct {
	db            adapters.DB
	currentSeason string
}

// NewClassifier builds a Classifier bound to the configured current season
// marker (§7 Configuration surface).
func NewClassifier(db adapters.DB, currentSeason string) *Classifier {
	return &Classifier{db: db, currentSeason: currentSeason}
}

// Classify implements the four-step validation of §4.4, in order, before
// any LLM call is made.
func (c *Classifier) Classify(ctx context.Context, message string) (Result, error) {
	firstLine := strings.TrimSpace(firstLineOf(message))

	match := codePattern.FindStringSubmatch(firstLine)
	if match == nil {
		return Result{Route: models.RouteOrchestrator}, nil
	}

	prefix := match[1]
	team := strings.ToLower(match[2])
	ageGroup := "u" + match[3]
	season := match[4]
	firstName := match[5]
	lastName := match[6]

	if season != c.currentSeason {
		return Result{}, fmt.Errorf("%w: got %q, want %q", ErrInvalidSeason, season, c.currentSeason)
	}

	teamRecord, err := c.db.LookupTeam(ctx, team, ageGroup)
	if err != nil {
		if errors.Is(err, adapters.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s/%s", ErrUnknownTeam, team, ageGroup)
		}
		return Result{}, err
	}
	if !teamRecord.Supported {
		return Result{}, fmt.Errorf("%w: %s/%s", ErrUnknownTeam, team, ageGroup)
	}

	hasName := firstName != "" && lastName != ""
	switch prefix {
	case "100":
		if !hasName {
			return Result{}, ErrMissingPlayerName
		}
	case "200":
		if hasName {
			return Result{}, ErrUnexpectedPlayerName
		}
	}

	metadata := Metadata{Team: team, AgeGroup: ageGroup, Season: season, ChildFirstName: firstName, ChildLastName: lastName}
	if prefix == "100" {
		return Result{Route: models.RouteReRegistration, Metadata: metadata}, nil
	}
	return Result{Route: models.RouteNewRegistration, Metadata: metadata}, nil
}

func firstLineOf(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return message[:idx]
	}
	return message
}
