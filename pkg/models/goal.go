// Package models contains domain models for goalmatch.
package models

// Goal is one free-text goal belonging to a grant within a recipient's scope.
// Rows are validated at the persistence boundary: ID is always set and Name is
// never blank by the time a Goal reaches the matching engine.
type Goal struct {
	Name       string `json:"name"`
	ID         int64  `json:"id"`
	GrantID    int64  `json:"grantId"`
	IsTemplate bool   `json:"isTemplate,omitempty"`
}

// Match is an unordered pair of distinct goals with a similarity score.
// Each unordered pair appears at most once in a result set.
type Match struct {
	Goal1      Goal    `json:"goal1"`
	Goal2      Goal    `json:"goal2"`
	Similarity float64 `json:"similarity"`
}

// ClusterMember is a goal matched to a cluster anchor.
type ClusterMember struct {
	Name       string  `json:"name"`
	ID         int64   `json:"id"`
	GrantID    int64   `json:"grantId"`
	Similarity float64 `json:"similarity"`
}

// Cluster groups an anchor goal with its matched goals. A goal id appears as
// a member of at most one cluster per run (greedy single assignment).
type Cluster struct {
	Name    string          `json:"name"`
	Matches []ClusterMember `json:"matches"`
	ID      int64           `json:"id"`
	GrantID int64           `json:"grantId"`
}

// SimilarGoal is one nearest-neighbor result: a corpus goal and its
// similarity to the query text. Results are returned in corpus order.
type SimilarGoal struct {
	Goal       Goal    `json:"goal"`
	Similarity float64 `json:"similarity"`
}
