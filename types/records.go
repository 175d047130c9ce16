package types

import (
	"time"
)

// FeaturedType is a manual sort override applied ahead of recency in the
// main feed.
type FeaturedType string

const (
	FeaturedCover FeaturedType = "cover"
	Featured1     FeaturedType = "featured1"
	Featured2     FeaturedType = "featured2"
	Featured3     FeaturedType = "featured3"
	FeaturedNone  FeaturedType = ""
)

// Rank maps featured types onto sort priority. Lower sorts first;
// unfeatured records share the lowest rank and fall back to date order.
func (f FeaturedType) Rank() int {
	switch f {
	case FeaturedCover:
		return 1
	case Featured1:
		return 2
	case Featured2:
		return 3
	case Featured3:
		return 4
	default:
		return 99
	}
}

type NewsRecord struct {
	ID              string       `json:"id" validate:"required"`
	Title           string       `json:"title" validate:"required"`
	Subtitle        string       `json:"subtitle"`
	Body            string       `json:"body"`
	Category        string       `json:"category" validate:"required"`
	Tags            []string     `json:"tags"`
	Author          string       `json:"author"`
	Date            string       `json:"date" validate:"required"`
	Timestamp       int64        `json:"timestamp" validate:"required"`
	Image           string       `json:"image"`
	SecondaryImages []string     `json:"secondaryImages"`
	Views           int64        `json:"views"`
	Likes           int64        `json:"likes"`
	Comments        int64        `json:"comments"`
	FeaturedType    FeaturedType `json:"featuredType"`
}

type AdvertisementRecord struct {
	ID        string     `json:"id" validate:"required"`
	Title     string     `json:"title"`
	Image     string     `json:"image" validate:"required"`
	Link      string     `json:"link"`
	Category  string     `json:"category"`
	Priority  int        `json:"priority"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	IsActive  *bool      `json:"isActive,omitempty"`
}

// Active reports whether the creative may be served at the given instant:
// the kill switch is not flipped off and now falls inside the optional
// active window.
func (a *AdvertisementRecord) Active(now time.Time) bool {
	if a.IsActive != nil && !*a.IsActive {
		return false
	}
	if a.StartDate != nil && now.Before(*a.StartDate) {
		return false
	}
	if a.EndDate != nil && now.After(*a.EndDate) {
		return false
	}
	return true
}

// Placement slots for advertisement buckets. AdBucketAll is synthetic and
// always contains every active creative.
const (
	AdBucketHeader      = "header"
	AdBucketSidebar     = "sidebar"
	AdBucketBetweenNews = "between_news"
	AdBucketFooter      = "footer"
	AdBucketAll         = "all"
)

// NewsPage is the unit the fetch layer returns: one page plus the cursor
// needed to continue and the full-page heuristic for more content.
type NewsPage struct {
	Records []NewsRecord `json:"records"`
	Cursor  int64        `json:"cursor"`
	HasMore bool         `json:"hasMore"`
}

// BatchPayload is the home page bootstrap payload, cached as a single
// composite entry under the news policy.
type BatchPayload struct {
	News      NewsPage                         `json:"news"`
	Ads       map[string][]AdvertisementRecord `json:"ads"`
	Timestamp time.Time                        `json:"timestamp"`
}

type CurrencyRate struct {
	Name   string  `json:"name"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
	Change float64 `json:"change"`
}
