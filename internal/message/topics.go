package message

import "strings"

// Topics the tournament server publishes to or listens on.
const (
	TopicUsers       = "users"
	TopicTournaments = "tournaments"

	UserTopicPrefix  = "user/"
	TeamTopicPrefix  = "team/"
	ScoreTopicPrefix = "score/"
	GameTopicPrefix  = "games/"
)

// UserTopic is where the server acknowledges clientID's registration.
func UserTopic(clientID string) string { return UserTopicPrefix + clientID }

// TeamTopic is where puzzle updates for teamID are published.
func TeamTopic(teamID string) string { return TeamTopicPrefix + teamID }

func ScoreTopic(id string) string { return ScoreTopicPrefix + id }

// GameTopic joins a team's game topic with an optional action, e.g.
// GameTopic("7", "starPower") is "games/7/starPower".
func GameTopic(teamID string, action ...string) string {
	parts := append([]string{strings.TrimSuffix(GameTopicPrefix, "/"), teamID}, action...)
	return strings.Join(parts, "/")
}
