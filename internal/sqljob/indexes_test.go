package sqljob

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeIndexesComplete(t *testing.T) {
	idx := []IndexDescriptor{{Name: "ix_ra_dec", Columns: []string{"ra", "decl"}}}
	s := summarizeIndexes("db", "t", map[string][]IndexDescriptor{
		"worker01": idx,
		"worker02": idx,
	})
	require.Equal(t, COMPLETE, s.Status)
}

func TestSummarizeIndexesIncompleteWhenSomeWorkerHasNone(t *testing.T) {
	idx := []IndexDescriptor{{Name: "ix_ra_dec", Columns: []string{"ra", "decl"}}}
	s := summarizeIndexes("db", "t", map[string][]IndexDescriptor{
		"worker01": idx,
		"worker02": nil,
	})
	require.Equal(t, INCOMPLETE, s.Status)
}

func TestSummarizeIndexesInconsistentWhenWorkersDisagree(t *testing.T) {
	s := summarizeIndexes("db", "t", map[string][]IndexDescriptor{
		"worker01": {{Name: "ix_a", Columns: []string{"a"}}},
		"worker02": {{Name: "ix_b", Columns: []string{"b"}}},
	})
	require.Equal(t, INCONSISTENT, s.Status)
}

func TestSummarizeIndexesEmptyIsIncomplete(t *testing.T) {
	s := summarizeIndexes("db", "t", nil)
	require.Equal(t, INCOMPLETE, s.Status)
}
