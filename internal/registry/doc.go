// Package registry owns the durable species registry: a CSV file keyed by
// slug holding the canonical chinese, english and scientific names plus a
// wikipedia page.
//
// The file starts with a comment header. Older registries omit the
// chinese_name column; Read detects this from the header and Write always
// emits the five-column layout. Reconcile folds freshly fetched sighting
// records into a Registry without ever overwriting a non-blank field, and
// Writer serialises read-modify-write cycles across goroutines and
// processes.
package registry
