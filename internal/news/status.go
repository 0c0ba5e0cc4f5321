package news

import (
	"fmt"
	"strings"
)

type ArticleStatus string

const (
	ArticleActive   ArticleStatus = "active"
	ArticleStale    ArticleStatus = "stale"
	ArticleArchived ArticleStatus = "archived"
)

var articleStatusRank = map[ArticleStatus]int{
	ArticleActive:   0,
	ArticleStale:    1,
	ArticleArchived: 2,
}

func (s ArticleStatus) Valid() bool {
	_, ok := articleStatusRank[s]
	return ok
}

// CanTransitionTo reports whether s may move to next. Transitions only go forward.
func (s ArticleStatus) CanTransitionTo(next ArticleStatus) bool {
	from, okFrom := articleStatusRank[s]
	to, okTo := articleStatusRank[next]
	return okFrom && okTo && to > from
}

type ClusterStatus string

const (
	ClusterActive   ClusterStatus = "active"
	ClusterTrending ClusterStatus = "trending"
	ClusterStale    ClusterStatus = "stale"
	ClusterArchived ClusterStatus = "archived"
)

var clusterStatusRank = map[ClusterStatus]int{
	ClusterActive:   0,
	ClusterTrending: 1,
	ClusterStale:    2,
	ClusterArchived: 3,
}

func (s ClusterStatus) Valid() bool {
	_, ok := clusterStatusRank[s]
	return ok
}

func (s ClusterStatus) CanTransitionTo(next ClusterStatus) bool {
	from, okFrom := clusterStatusRank[s]
	to, okTo := clusterStatusRank[next]
	return okFrom && okTo && to > from
}

func ParseClusterStatus(raw string) (ClusterStatus, error) {
	status := ClusterStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown cluster status %q", raw)
	}
	return status, nil
}

type TrustLevel string

const (
	TrustLow      TrustLevel = "low"
	TrustMedium   TrustLevel = "medium"
	TrustHigh     TrustLevel = "high"
	TrustVerified TrustLevel = "verified"
)

func (l TrustLevel) Valid() bool {
	switch l {
	case TrustLow, TrustMedium, TrustHigh, TrustVerified:
		return true
	default:
		return false
	}
}

func ParseTrustLevel(raw string) (TrustLevel, error) {
	level := TrustLevel(strings.ToLower(strings.TrimSpace(raw)))
	if !level.Valid() {
		return "", fmt.Errorf("unknown trust level %q", raw)
	}
	return level, nil
}

// TrustLevelForScore maps a 0-1 trust score onto its level band.
func TrustLevelForScore(score float64) TrustLevel {
	switch {
	case score >= 0.9:
		return TrustVerified
	case score >= 0.7:
		return TrustHigh
	case score >= 0.4:
		return TrustMedium
	default:
		return TrustLow
	}
}

type InteractionType string

const (
	InteractionView  InteractionType = "view"
	InteractionClick InteractionType = "click"
	InteractionShare InteractionType = "share"
	InteractionLike  InteractionType = "like"
)

func ParseInteractionType(raw string) (InteractionType, error) {
	kind := InteractionType(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case InteractionView, InteractionClick, InteractionShare, InteractionLike:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown interaction type %q", raw)
	}
}

// StoryNature is the closed taxonomy written by the enrichment pipeline.
type StoryNature string

const (
	NaturePolicyChange          StoryNature = "policy_change"
	NatureScandal               StoryNature = "scandal"
	NatureCourtJudgement        StoryNature = "court_judgement"
	NaturePoliticalMove         StoryNature = "political_move"
	NatureEconomicDevelopment   StoryNature = "economic_development"
	NatureTechnologyAdvancement StoryNature = "technology_advancement"
	NatureHealthDevelopment     StoryNature = "health_development"
	NatureEnvironmentalIssue    StoryNature = "environmental_issue"
	NatureSecurityIncident      StoryNature = "security_incident"
	NatureInternationalRelation StoryNature = "international_relation"
	NatureOther                 StoryNature = "other"
)

func ParseStoryNature(raw string) (StoryNature, error) {
	nature := StoryNature(strings.ToLower(strings.TrimSpace(raw)))
	switch nature {
	case NaturePolicyChange, NatureScandal, NatureCourtJudgement, NaturePoliticalMove,
		NatureEconomicDevelopment, NatureTechnologyAdvancement, NatureHealthDevelopment,
		NatureEnvironmentalIssue, NatureSecurityIncident, NatureInternationalRelation, NatureOther:
		return nature, nil
	default:
		return "", fmt.Errorf("unknown story nature %q", raw)
	}
}
