package database

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryQuery_Whitelist(t *testing.T) {
	tests := []struct {
		dimension string
		column    string
	}{
		{"user", "user_id"},
		{"model", "model"},
		{"provider", "provider"},
		{"kind", "routing_kind"},
		{"variant", "variant"},
	}
	for _, tt := range tests {
		t.Run(tt.dimension, func(t *testing.T) {
			q, err := summaryQuery(tt.dimension)
			require.NoError(t, err)
			assert.Contains(t, q, "GROUP BY "+tt.column)
			assert.Contains(t, q, "'"+tt.dimension+"' AS dimension")
			assert.Contains(t, q, "FROM express_requests")
		})
	}
}

func TestSummaryQuery_RejectsUnknown(t *testing.T) {
	for _, d := range []string{"", "agent", "user_id; DROP TABLE budgets", "MODEL"} {
		_, err := summaryQuery(d)
		assert.ErrorIs(t, err, ErrUnsupportedDimension, d)
	}
}

func TestDimensions_MatchWhitelist(t *testing.T) {
	dims := Dimensions()
	assert.Len(t, dims, len(summaryDimensions))
	for _, d := range dims {
		assert.Contains(t, summaryDimensions, d)
	}
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "://not a dsn")
	assert.Error(t, err)
}

func columnSet(cols string) map[string]bool {
	out := make(map[string]bool)
	for _, c := range strings.Split(cols, ",") {
		out[strings.TrimSpace(c)] = true
	}
	return out
}

// Every db tag must be selected or RowToStructByName fails at runtime.
func TestSelectedColumnsCoverModels(t *testing.T) {
	tests := []struct {
		name  string
		typ   reflect.Type
		query string
	}{
		{"request", reflect.TypeOf(models.RequestRecord{}), requestColumns},
		{"budget", reflect.TypeOf(models.Budget{}), budgetColumns},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := columnSet(tt.query)
			require.Len(t, cols, tt.typ.NumField())
			for i := 0; i < tt.typ.NumField(); i++ {
				tag := tt.typ.Field(i).Tag.Get("db")
				assert.True(t, cols[tag], "column %q not selected", tag)
			}
		})
	}

	q, err := summaryQuery("model")
	require.NoError(t, err)
	summary := reflect.TypeOf(models.CostSummary{})
	for i := 0; i < summary.NumField(); i++ {
		assert.Contains(t, q, "AS "+summary.Field(i).Tag.Get("db"))
	}
}
