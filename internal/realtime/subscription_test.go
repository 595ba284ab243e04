package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexabase-io/nexabase/internal/records"
)

func TestSubscriptionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     SubscriptionData
		wantErr bool
	}{
		{"collection", SubscriptionData{ID: "s1", Collection: "articles", Type: SubCollection}, false},
		{"record", SubscriptionData{ID: "s1", Collection: "articles", Type: SubRecord, RecordID: 3}, false},
		{"query", SubscriptionData{ID: "s1", Collection: "articles", Type: SubQuery, Filters: map[string]string{"status": "eq:published"}}, false},
		{"missing id", SubscriptionData{Collection: "articles", Type: SubCollection}, true},
		{"missing collection", SubscriptionData{ID: "s1", Type: SubCollection}, true},
		{"record without id", SubscriptionData{ID: "s1", Collection: "articles", Type: SubRecord}, true},
		{"query without filters", SubscriptionData{ID: "s1", Collection: "articles", Type: SubQuery}, true},
		{"query bad operator", SubscriptionData{ID: "s1", Collection: "articles", Type: SubQuery, Filters: map[string]string{"status": "between:1"}}, true},
		{"unknown type", SubscriptionData{ID: "s1", Collection: "articles", Type: "wildcard"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadSubscription)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchesCollection(t *testing.T) {
	sub := SubscriptionData{ID: "s1", Collection: "articles", Type: SubCollection}

	assert.True(t, sub.Matches(records.Event{Collection: "articles", Action: records.ActionCreated, RecordID: 1}))
	assert.False(t, sub.Matches(records.Event{Collection: "comments", Action: records.ActionCreated, RecordID: 1}))
}

func TestMatchesRecord(t *testing.T) {
	sub := SubscriptionData{ID: "s1", Collection: "articles", Type: SubRecord, RecordID: 7}

	assert.True(t, sub.Matches(records.Event{Collection: "articles", Action: records.ActionUpdated, RecordID: 7}))
	assert.False(t, sub.Matches(records.Event{Collection: "articles", Action: records.ActionUpdated, RecordID: 8}))
}

func TestMatchesQueryFilters(t *testing.T) {
	sub := SubscriptionData{
		ID:         "s1",
		Collection: "articles",
		Type:       SubQuery,
		Filters:    map[string]string{"status": "eq:published", "views": "gte:10"},
	}

	match := records.Event{
		Collection: "articles",
		Action:     records.ActionUpdated,
		RecordID:   1,
		Record:     records.Record{"status": "published", "views": int64(25)},
	}
	assert.True(t, sub.Matches(match))

	wrongStatus := match
	wrongStatus.Record = records.Record{"status": "draft", "views": int64(25)}
	assert.False(t, sub.Matches(wrongStatus))

	lowViews := match
	lowViews.Record = records.Record{"status": "published", "views": int64(3)}
	assert.False(t, sub.Matches(lowViews))
}

// Deletes carry no new payload; query filters evaluate the pre-image so
// subscribers see the removal of records that used to match.
func TestMatchesQueryDeleteUsesOldRecord(t *testing.T) {
	sub := SubscriptionData{
		ID:         "s1",
		Collection: "articles",
		Type:       SubQuery,
		Filters:    map[string]string{"status": "eq:published"},
	}

	e := records.Event{
		Collection: "articles",
		Action:     records.ActionDeleted,
		RecordID:   4,
		OldRecord:  records.Record{"status": "published"},
	}
	assert.True(t, sub.Matches(e))

	e.OldRecord = records.Record{"status": "draft"}
	assert.False(t, sub.Matches(e))

	e.OldRecord = nil
	assert.False(t, sub.Matches(e))
}

func TestEvalPredicate(t *testing.T) {
	tests := []struct {
		actual interface{}
		op     string
		value  string
		want   bool
	}{
		{"hello world", "like", "WORLD", true},
		{"hello world", "notlike", "WORLD", false},
		{"hello", "like", "%ell%", true},
		{int64(5), "in", "1;5;9", true},
		{int64(5), "notin", "1;5;9", false},
		{int64(5), "in", "1;2", false},
		{nil, "isnull", "", true},
		{nil, "isnotnull", "", false},
		{"x", "isnotnull", "", true},
		{nil, "eq", "anything", false},
		{true, "eq", "true", true},
		{false, "ne", "true", true},
		{float64(3.5), "lt", "4", true},
		{"banana", "gt", "apple", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, evalPredicate(tt.actual, tt.op, tt.value),
			"%v %s %s", tt.actual, tt.op, tt.value)
	}
}
