package feed

import (
	"math"
	"strings"

	"horse.fit/newsfeed/internal/news"
)

const (
	basePersonalization = 0.5
	countryBonus        = 0.2
	cityBonus           = 0.15
	categoryBonus       = 0.15
	engagementCap       = 0.3
	engagementDivisor   = 10.0
	topicSpread         = 0.2
	longReadSeconds     = 30
	longReadBonus       = 1.0

	baseWeight            = 0.7
	personalizationWeight = 0.3
)

var interactionWeights = map[news.InteractionType]float64{
	news.InteractionView:  1,
	news.InteractionClick: 2,
	news.InteractionShare: 3,
	news.InteractionLike:  3,
}

// signals is everything personalization reads for one user.
type signals struct {
	profile      news.UserProfile
	interactions []news.Interaction
	topics       []news.TopicPreference
}

// personalizationScore returns the user's affinity for cluster in [0,1].
func personalizationScore(in signals, cluster news.StoryCluster) float64 {
	score := basePersonalization

	if containsFold(cluster.RegionTags, in.profile.LocationCountry) {
		score += countryBonus
	}
	if containsFold(cluster.RegionTags, in.profile.LocationCity) {
		score += cityBonus
	}
	if containsFold(in.profile.PreferredCategories, cluster.Category) {
		score += categoryBonus
	}

	score += engagementTerm(in.interactions, cluster.Category)
	score += topicTerm(in.topics, cluster)

	return math.Max(0, math.Min(1, score))
}

// engagementTerm averages weighted interactions in the cluster's category.
func engagementTerm(interactions []news.Interaction, category string) float64 {
	category = strings.TrimSpace(category)
	if category == "" {
		return 0
	}
	var total float64
	matched := 0
	for _, interaction := range interactions {
		if !strings.EqualFold(strings.TrimSpace(interaction.Category), category) {
			continue
		}
		weight := interactionWeights[interaction.Type]
		if interaction.ReadDurationSeconds > longReadSeconds {
			weight += longReadBonus
		}
		total += weight
		matched++
	}
	if matched == 0 {
		return 0
	}
	return math.Min(engagementCap, (total/float64(matched))/engagementDivisor)
}

// topicTerm shifts the score by up to 0.1 either way for every learned topic
// keyword found in the cluster title or description.
func topicTerm(topics []news.TopicPreference, cluster news.StoryCluster) float64 {
	if len(topics) == 0 {
		return 0
	}
	title := strings.ToLower(cluster.Title)
	description := strings.ToLower(cluster.Description)

	var term float64
	for _, topic := range topics {
		keyword := strings.ToLower(strings.TrimSpace(topic.Keyword))
		if keyword == "" {
			continue
		}
		if !strings.Contains(title, keyword) && !strings.Contains(description, keyword) {
			continue
		}
		preference := math.Max(0, math.Min(1, topic.PreferenceScore))
		term += (preference - 0.5) * topicSpread
	}
	return term
}

// rankScore blends the cluster base score with personalization on the 0-100 scale.
func rankScore(baseScore, personalization float64) float64 {
	return baseWeight*baseScore + personalizationWeight*(personalization*100)
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), target) {
			return true
		}
	}
	return false
}
