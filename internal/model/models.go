// Package model defines shared data structures for the lead engine.
package model

import "time"

// ProductStatus mirrors products.status.
type ProductStatus string

const (
	ProductActive ProductStatus = "active"
	ProductPaused ProductStatus = "paused"
)

// Product mirrors the products table row relevant to discovery. The engine
// never writes it.
type Product struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Features    []string
	Benefits    []string
	PainPoints  []string
	Communities []string // subreddit names without the r/ prefix
	Status      ProductStatus
}

// JobStatus mirrors monitoring_jobs.status.
type JobStatus string

const (
	JobActive JobStatus = "active"
	JobPaused JobStatus = "paused"
	JobError  JobStatus = "error"
)

// JobKindCommunityMonitoring is the only job kind today.
const JobKindCommunityMonitoring = "reddit_monitoring"

// Job is one durable monitoring task per (user, product, kind).
type Job struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	ProductID       string     `json:"productId"`
	Kind            string     `json:"kind"`
	Status          JobStatus  `json:"status"`
	IntervalMinutes int        `json:"intervalMinutes"`
	NextRun         time.Time  `json:"nextRun"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	RunCount        int        `json:"runCount"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
}

// Interval returns the job's rescheduling interval.
func (j Job) Interval() time.Duration {
	return time.Duration(j.IntervalMinutes) * time.Minute
}

// Candidate is a post fetched from the discussion platform. It lives only
// for the duration of one execution.
type Candidate struct {
	ExternalID  string    `json:"externalId"`
	Community   string    `json:"community"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	NumComments int       `json:"numComments"`
	CreatedAt   time.Time `json:"createdAt"`
	SearchTerm  string    `json:"searchTerm"`
}

// AIAnalysis is the oracle's verdict on a candidate.
type AIAnalysis struct {
	QualityScore int      `json:"qualityScore"`
	Confidence   float64  `json:"confidence"`
	Reasons      []string `json:"reasons"`
	SampleReply  string   `json:"sampleReply"`
}

// ScoredCandidate is a Candidate plus its heuristic score and, when the AI
// stage succeeded, its analysis.
type ScoredCandidate struct {
	Candidate
	HeuristicScore int         `json:"heuristicScore"`
	AI             *AIAnalysis `json:"ai,omitempty"`
}

// LeadStatus mirrors leads.status. Only users move a lead past LeadNew.
type LeadStatus string

const (
	LeadNew           LeadStatus = "new"
	LeadContacted     LeadStatus = "contacted"
	LeadInterested    LeadStatus = "interested"
	LeadNotInterested LeadStatus = "not_interested"
	LeadConverted     LeadStatus = "converted"
)

// Lead is a persisted ScoredCandidate, unique per (UserID, ExternalID).
type Lead struct {
	ID             string      `json:"id"`
	UserID         string      `json:"userId"`
	ProductID      string      `json:"productId"`
	ExternalID     string      `json:"externalId"`
	Title          string      `json:"title"`
	Body           string      `json:"body"`
	Community      string      `json:"community"`
	Author         string      `json:"author"`
	URL            string      `json:"url"`
	Score          int         `json:"score"`
	NumComments    int         `json:"numComments"`
	RelevanceScore int         `json:"relevanceScore"`
	SearchTerm     string      `json:"searchTerm"`
	AI             *AIAnalysis `json:"ai,omitempty"`
	Status         LeadStatus  `json:"status"`
	PostedAt       time.Time   `json:"postedAt"`
	CreatedAt      time.Time   `json:"createdAt"`
}
