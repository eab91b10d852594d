package salesforce

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadRecords(n int) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"LastName": fmt.Sprintf("Lead%d", i),
			"Company":  "Acme",
		}
	}
	return records
}

func TestBulkInsertLeads_Empty(t *testing.T) {
	c := &mockClient{
		insertCollectionFn: func(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
			t.Fatal("no call expected for empty input")
			return nil, nil
		},
	}

	results, err := BulkInsertLeads(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestBulkInsertLeads_SplitsBatches(t *testing.T) {
	var batchSizes []int
	c := &mockClient{
		insertCollectionFn: func(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
			assert.Equal(t, "Lead", sObjectName)
			batchSizes = append(batchSizes, len(records))
			results := make([]CollectionResult, len(records))
			for i := range results {
				results[i] = CollectionResult{Success: true}
			}
			return results, nil
		},
	}

	results, err := BulkInsertLeads(context.Background(), c, leadRecords(450))
	require.NoError(t, err)
	assert.Len(t, results, 450)
	assert.Equal(t, []int{200, 200, 50}, batchSizes)
}

func TestBulkInsertLeads_ApiErrorKeepsPriorResults(t *testing.T) {
	call := 0
	c := &mockClient{
		insertCollectionFn: func(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
			call++
			if call == 2 {
				return nil, fmt.Errorf("boom")
			}
			results := make([]CollectionResult, len(records))
			for i := range results {
				results[i] = CollectionResult{Success: true}
			}
			return results, nil
		},
	}

	results, err := BulkInsertLeads(context.Background(), c, leadRecords(300))
	require.Error(t, err)
	assert.Len(t, results, 200)
}

func TestBulkInsertLeads_ReportsPerRecordFailures(t *testing.T) {
	c := &mockClient{
		insertCollectionFn: func(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
			return []CollectionResult{
				{ID: "00Q1", Success: true},
				{Success: false, Errors: []string{"REQUIRED_FIELD_MISSING"}},
			}, nil
		},
	}

	results, err := BulkInsertLeads(context.Background(), c, leadRecords(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[1].Success)
}
