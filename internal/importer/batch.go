// Package importer uploads import records to the remote importer in ordered
// batches and waits for each batch to finish before sending the next.
package importer

import (
	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/record"
)

// Batch is a contiguous slice of records sent in one request.
type Batch struct {
	Index    int
	FileName string
	Records  []record.Record
}

// envelope is the request body of ImportResources.
type envelope struct {
	FileNameInCloud string          `json:"fileNameInCloud"`
	Resources       []record.Record `json:"resources"`
}

func (b Batch) envelope() envelope {
	return envelope{FileNameInCloud: b.FileName, Resources: b.Records}
}

// Partition splits records into consecutive batches of at most size records.
// A size outside 1..config.MaxBatchSize is replaced by config.MaxBatchSize.
// No records yields no batches.
func Partition(fileName string, records []record.Record, size int) []Batch {
	if size <= 0 || size > config.MaxBatchSize {
		size = config.MaxBatchSize
	}

	batches := make([]Batch, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, Batch{
			Index:    len(batches),
			FileName: fileName,
			Records:  records[start:end],
		})
	}
	return batches
}
