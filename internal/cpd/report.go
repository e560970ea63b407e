package cpd

// EntryStatus is the per-entry outcome of a stage or verify run.
type EntryStatus string

const (
	StatusCopied   EntryStatus = "copied"
	StatusFailed   EntryStatus = "failed"
	StatusMatch    EntryStatus = "match"
	StatusMismatch EntryStatus = "mismatch"
)

// EntryResult is the itemized outcome for one manifest entry.
type EntryResult struct {
	Entry  Entry
	Kind   EntryKind
	Status EntryStatus
	Files  int   // files written (stage) or compared (verify)
	Bytes  int64 // bytes written (stage only)
	Detail string
}

// Report collects per-entry results for a whole run. Every entry gets a
// result; partial success is always visible, never silent.
type Report struct {
	Results []EntryResult
}

// Add appends a result to the report.
func (r *Report) Add(res EntryResult) {
	r.Results = append(r.Results, res)
}

// Failed reports whether any entry failed or mismatched.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusMismatch {
			return true
		}
	}
	return false
}

// FailedCount returns the number of failed or mismatched entries.
func (r *Report) FailedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusMismatch {
			n++
		}
	}
	return n
}
