package sqljob

// IndexStatus summarizes whether a secondary index exists and agrees
// across the workers holding replicas of a table.
type IndexStatus int

const (
	COMPLETE IndexStatus = iota
	INCOMPLETE
	INCONSISTENT
)

func (s IndexStatus) String() string {
	switch s {
	case COMPLETE:
		return "COMPLETE"
	case INCOMPLETE:
		return "INCOMPLETE"
	case INCONSISTENT:
		return "INCONSISTENT"
	default:
		return "UNKNOWN"
	}
}

// IndexDescriptor names one index as reported by a worker.
type IndexDescriptor struct {
	Name    string
	Columns []string
	Unique  bool
}

// indexesRequest/indexesResult are the msgpack bodies exchanged for
// OpSqlCreateIndexes/OpSqlDropIndexes/OpSqlGetIndexes.
type indexesRequest struct {
	Database string
	Table    string
	Indexes  []IndexDescriptor
}

type indexesResult struct {
	Indexes []IndexDescriptor
}

// IndexSummary is the czar-side reduction of GetIndexes responses from
// every worker holding a replica of database.table: COMPLETE if every
// worker reports the same index set, INCOMPLETE if some worker reports
// none, INCONSISTENT if workers disagree.
type IndexSummary struct {
	Database  string
	Table     string
	Status    IndexStatus
	PerWorker map[string][]IndexDescriptor
}

func summarizeIndexes(database, table string, perWorker map[string][]IndexDescriptor) IndexSummary {
	s := IndexSummary{Database: database, Table: table, PerWorker: perWorker}
	if len(perWorker) == 0 {
		s.Status = INCOMPLETE
		return s
	}
	var reference []IndexDescriptor
	first := true
	consistent := true
	anyEmpty := false
	for _, idx := range perWorker {
		if len(idx) == 0 {
			anyEmpty = true
			continue
		}
		if first {
			reference = idx
			first = false
			continue
		}
		if !sameIndexSet(reference, idx) {
			consistent = false
		}
	}
	switch {
	case !consistent:
		s.Status = INCONSISTENT
	case anyEmpty:
		s.Status = INCOMPLETE
	default:
		s.Status = COMPLETE
	}
	return s
}

func sameIndexSet(a, b []IndexDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	byName := make(map[string]IndexDescriptor, len(a))
	for _, d := range a {
		byName[d.Name] = d
	}
	for _, d := range b {
		ref, ok := byName[d.Name]
		if !ok || ref.Unique != d.Unique || len(ref.Columns) != len(d.Columns) {
			return false
		}
		for i := range ref.Columns {
			if ref.Columns[i] != d.Columns[i] {
				return false
			}
		}
	}
	return true
}
