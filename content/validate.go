package content

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

// coercer turns raw store documents into typed records. Records failing
// strict validation are kept in their default-filled form, never dropped;
// one malformed upstream document must not shrink a feed.
type coercer struct {
	validate *validator.Validate
	logger   types.Logger
	now      func() time.Time
}

func newCoercer(logger types.Logger, now func() time.Time) *coercer {
	return &coercer{
		validate: validator.New(),
		logger:   logger,
		now:      now,
	}
}

func (c *coercer) newsRecord(doc map[string]interface{}) types.NewsRecord {
	record := types.NewsRecord{
		ID:              stringField(doc, "id"),
		Title:           stringField(doc, "title"),
		Subtitle:        stringField(doc, "subtitle"),
		Body:            stringField(doc, "body"),
		Category:        stringField(doc, "category"),
		Tags:            stringSliceField(doc, "tags"),
		Author:          stringField(doc, "author"),
		Date:            stringField(doc, "date"),
		Timestamp:       int64Field(doc, "timestamp"),
		Image:           stringField(doc, "image"),
		SecondaryImages: stringSliceField(doc, "secondaryImages"),
		Views:           int64Field(doc, "views"),
		Likes:           int64Field(doc, "likes"),
		Comments:        int64Field(doc, "comments"),
		FeaturedType:    types.FeaturedType(stringField(doc, "featuredType")),
	}

	if err := c.validate.Struct(&record); err != nil {
		c.logger.Warn("News record failed validation, serving with defaults",
			zap.String("id", record.ID), zap.Error(err))
		c.fillNewsDefaults(&record)
	}

	return record
}

func (c *coercer) fillNewsDefaults(record *types.NewsRecord) {
	now := c.now()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Title == "" {
		record.Title = "Sin título"
	}
	if record.Category == "" {
		record.Category = "Sociedad"
	}
	if record.Date == "" {
		record.Date = now.Format("2006-01-02")
	}
	if record.Timestamp == 0 {
		record.Timestamp = now.UnixMilli()
	}
}

func (c *coercer) adRecord(doc map[string]interface{}) types.AdvertisementRecord {
	record := types.AdvertisementRecord{
		ID:        stringField(doc, "id"),
		Title:     stringField(doc, "title"),
		Image:     stringField(doc, "image"),
		Link:      stringField(doc, "link"),
		Category:  stringField(doc, "category"),
		Priority:  int(int64Field(doc, "priority")),
		StartDate: timeField(doc, "startDate"),
		EndDate:   timeField(doc, "endDate"),
		IsActive:  boolField(doc, "isActive"),
	}

	if err := c.validate.Struct(&record); err != nil {
		c.logger.Warn("Advertisement record failed validation, serving with defaults",
			zap.String("id", record.ID), zap.Error(err))
		if record.ID == "" {
			record.ID = uuid.New().String()
		}
		if record.Category == "" {
			record.Category = types.AdBucketSidebar
		}
	}

	return record
}

func stringField(doc map[string]interface{}, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func stringSliceField(doc map[string]interface{}, key string) []string {
	raw, ok := doc[key].([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func int64Field(doc map[string]interface{}, key string) int64 {
	switch v := doc[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	default:
		return 0
	}
}

func boolField(doc map[string]interface{}, key string) *bool {
	if v, ok := doc[key].(bool); ok {
		return &v
	}
	return nil
}

func timeField(doc map[string]interface{}, key string) *time.Time {
	switch v := doc[key].(type) {
	case time.Time:
		return &v
	case string:
		if v == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return &parsed
			}
		}
		return nil
	case int64:
		parsed := time.UnixMilli(v)
		return &parsed
	case float64:
		parsed := time.UnixMilli(int64(v))
		return &parsed
	default:
		return nil
	}
}
