package collections

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	insertedRecords = metrics.GetOrCreateCounter(`kstore_collection_inserted_records_total`)
	appendedBytes   = metrics.GetOrCreateCounter(`kstore_collection_appended_bytes_total`)
	spills          = metrics.GetOrCreateCounter(`kstore_collection_spills_total`)
	flushes         = metrics.GetOrCreateCounter(`kstore_collection_flushes_total`)
	ioErrors        = metrics.GetOrCreateCounter(`kstore_collection_io_errors_total`)
)

// WriteMetrics writes all kstore counters in Prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
